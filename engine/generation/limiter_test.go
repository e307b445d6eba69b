package generation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	t.Run("Should cap concurrent calls", func(t *testing.T) {
		l := NewLimiter(2, 0)
		var active, peak atomic.Int32
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := l.Acquire(t.Context())
				if !assert.NoError(t, err) {
					return
				}
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				release()
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, peak.Load(), int32(2))
		snap := l.Snapshot()
		assert.Equal(t, int64(10), snap.TotalRequests)
		assert.Zero(t, snap.ActiveRequests)
		assert.Zero(t, snap.WaitingRequests)
	})

	t.Run("Should apply the requests per minute budget", func(t *testing.T) {
		l := NewLimiter(0, 60)
		release, err := l.Acquire(t.Context())
		require.NoError(t, err)
		release()
		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx)
		assert.Error(t, err)
	})

	t.Run("Should free the slot when waiting is canceled", func(t *testing.T) {
		l := NewLimiter(1, 0)
		release, err := l.Acquire(t.Context())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err = l.Acquire(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		release()
		release()
		again, err := l.Acquire(t.Context())
		require.NoError(t, err)
		again()
	})

	t.Run("Should not limit when nil", func(t *testing.T) {
		var l *Limiter
		release, err := l.Acquire(t.Context())
		require.NoError(t, err)
		release()
		assert.Equal(t, LimiterSnapshot{}, l.Snapshot())
	})

	t.Run("Should derive the burst from the per second rate", func(t *testing.T) {
		assert.Equal(t, 1, computeBurst(0.5))
		assert.Equal(t, 2, computeBurst(1.5))
		assert.Equal(t, 1, computeBurst(0))
	})
}
