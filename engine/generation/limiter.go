package generation

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter applies backpressure to generation calls: a concurrency cap shared
// by all workers plus an optional requests-per-minute budget. A nil Limiter
// does not limit.
type Limiter struct {
	sem         *semaphore.Weighted
	rateLimiter *rate.Limiter
	metrics     limiterMetrics
}

// LimiterSnapshot exposes limiter counters.
type LimiterSnapshot struct {
	ActiveRequests  int32
	WaitingRequests int32
	TotalRequests   int64
}

type limiterMetrics struct {
	activeRequests  atomic.Int32
	waitingRequests atomic.Int32
	totalRequests   atomic.Int64
}

// NewLimiter creates a limiter. Non-positive values disable the matching
// limit.
func NewLimiter(concurrency, requestsPerMinute int) *Limiter {
	l := &Limiter{}
	if concurrency > 0 {
		l.sem = semaphore.NewWeighted(int64(concurrency))
	}
	if requestsPerMinute > 0 {
		perSecond := float64(requestsPerMinute) / 60.0
		l.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), computeBurst(perSecond))
	}
	return l
}

func computeBurst(perSecond float64) int {
	if perSecond <= 0 {
		return 1
	}
	return int(math.Ceil(perSecond))
}

// Acquire blocks until a slot and a request token are available. The
// returned release must be called once the call completes.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	l.metrics.totalRequests.Add(1)
	l.metrics.waitingRequests.Add(1)
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			l.metrics.waitingRequests.Add(-1)
			return nil, err
		}
	}
	if l.rateLimiter != nil {
		if err := l.rateLimiter.Wait(ctx); err != nil {
			l.metrics.waitingRequests.Add(-1)
			if l.sem != nil {
				l.sem.Release(1)
			}
			return nil, err
		}
	}
	l.metrics.waitingRequests.Add(-1)
	l.metrics.activeRequests.Add(1)
	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		l.metrics.activeRequests.Add(-1)
		if l.sem != nil {
			l.sem.Release(1)
		}
	}, nil
}

// Snapshot returns the current counters.
func (l *Limiter) Snapshot() LimiterSnapshot {
	if l == nil {
		return LimiterSnapshot{}
	}
	return LimiterSnapshot{
		ActiveRequests:  l.metrics.activeRequests.Load(),
		WaitingRequests: l.metrics.waitingRequests.Load(),
		TotalRequests:   l.metrics.totalRequests.Load(),
	}
}
