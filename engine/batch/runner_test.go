package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/compozy/productgen/engine/generation"
	"github.com/compozy/productgen/engine/normalize"
	"github.com/compozy/productgen/engine/preprocess"
	"github.com/compozy/productgen/engine/product"
	"github.com/compozy/productgen/engine/sink"
)

// The provider SDKs start an opencensus worker at init time.
var leakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

type generatorFunc func(ctx context.Context, in generation.Input) (*generation.Outcome, error)

func (f generatorFunc) Generate(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
	return f(ctx, in)
}

type failingSink struct{}

func (failingSink) Submit(_ context.Context, rec *product.Record) (*sink.Receipt, error) {
	return nil, &sink.Error{Sink: "test", Slug: rec.Slug, StatusCode: 422}
}

func (failingSink) Close() error { return nil }

func accept(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
	res, err := normalize.New(nil).Normalize(ctx, map[string]any{"name": in.Text})
	if err != nil {
		return nil, err
	}
	return &generation.Outcome{Result: res, Attempts: 1}, nil
}

func newPreprocessor(t *testing.T) *preprocess.Default {
	t.Helper()
	pre, err := preprocess.New(preprocess.Options{})
	require.NoError(t, err)
	return pre
}

func newRunner(t *testing.T, gen Generator, dst sink.Sink, opts Options) *Runner {
	t.Helper()
	return NewRunner(newPreprocessor(t), gen, dst, NewMetrics(), opts)
}

func TestRunner_Run(t *testing.T) {
	t.Run("Should isolate a failing item from the rest of the batch", func(t *testing.T) {
		defer goleak.VerifyNone(t, leakOptions...)
		gen := generatorFunc(func(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
			if in.ItemID == "3" {
				return nil, &generation.Error{Kind: generation.KindSchemaViolation, Attempts: 3, Issues: []string{"bad"}}
			}
			return accept(ctx, in)
		})
		var out bytes.Buffer
		items := FromTexts("Product 1", "Product 2", "Product 3", "Product 4", "Product 5")
		report, err := newRunner(t, gen, sink.NewWriterSink(&out), Options{Concurrency: 3}).Run(t.Context(), items)
		require.NoError(t, err)
		assert.NotEmpty(t, report.RunID)
		assert.Equal(t, 5, report.Total)
		require.Len(t, report.Accepted, 4)
		require.Len(t, report.Rejected, 1)
		rej := report.Rejected[0]
		assert.Equal(t, "3", rej.ItemID)
		assert.Equal(t, StageGenerate, rej.Stage)
		assert.Equal(t, "GenerationError(SchemaViolation)", rej.Errors[0].Kind)
		assert.Equal(t, []int{0, 1, 3, 4}, []int{
			report.Accepted[0].Index, report.Accepted[1].Index, report.Accepted[2].Index, report.Accepted[3].Index,
		})
		assert.Equal(t, "product-1", report.Accepted[0].Slug)
		assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)
		assert.False(t, report.Complete())
	})

	t.Run("Should bound the number of items in flight", func(t *testing.T) {
		defer goleak.VerifyNone(t, leakOptions...)
		var active, peak atomic.Int32
		gen := generatorFunc(func(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return accept(ctx, in)
		})
		items := FromTexts("a", "b", "c", "d", "e", "f", "g", "h")
		report, err := newRunner(t, gen, sink.NewWriterSink(&bytes.Buffer{}), Options{Concurrency: 2}).Run(t.Context(), items)
		require.NoError(t, err)
		assert.Len(t, report.Accepted, 8)
		assert.LessOrEqual(t, peak.Load(), int32(2))
		assert.True(t, report.Complete())
	})

	t.Run("Should list every violation of a rejected record", func(t *testing.T) {
		gen := generatorFunc(func(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
			return nil, &normalize.ValidationError{Violations: []normalize.Violation{
				{Kind: normalize.KindDomainInvariant, Rule: normalize.RuleMissingRequiredField, Path: "/reviews/0/comments", Message: "comments is required"},
				{Kind: normalize.KindDomainInvariant, Rule: normalize.RuleInvalidRating, Path: "/reviews/0/rating", Message: "bad rating"},
			}}
		})
		report, err := newRunner(t, gen, sink.NewWriterSink(&bytes.Buffer{}), Options{Concurrency: 1}).Run(t.Context(), FromTexts("x"))
		require.NoError(t, err)
		require.Len(t, report.Rejected, 1)
		errs := report.Rejected[0].Errors
		require.Len(t, errs, 2)
		assert.Equal(t, string(normalize.RuleMissingRequiredField), errs[0].Rule)
		assert.Equal(t, "/reviews/0/comments", errs[0].Path)
	})

	t.Run("Should record preprocess and sink failures by stage", func(t *testing.T) {
		gen := generatorFunc(accept)
		items := FromTexts("  ", "Product")
		report, err := newRunner(t, gen, failingSink{}, Options{Concurrency: 2}).Run(t.Context(), items)
		require.NoError(t, err)
		require.Len(t, report.Rejected, 2)
		assert.Equal(t, StagePreprocess, report.Rejected[0].Stage)
		assert.Equal(t, "PreprocessError", report.Rejected[0].Errors[0].Kind)
		assert.Equal(t, StageSink, report.Rejected[1].Stage)
		assert.Equal(t, "SinkError", report.Rejected[1].Errors[0].Kind)
	})

	t.Run("Should skip every item when canceled before scheduling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		report, err := newRunner(t, generatorFunc(accept), sink.NewWriterSink(&bytes.Buffer{}), Options{Concurrency: 2}).
			Run(ctx, FromTexts("a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, 3, report.Skipped)
		assert.Empty(t, report.Accepted)
		assert.Empty(t, report.Rejected)
	})

	t.Run("Should let started items finish after cancellation", func(t *testing.T) {
		defer goleak.VerifyNone(t, leakOptions...)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		var entered sync.WaitGroup
		entered.Add(3)
		canceled := make(chan struct{})
		gen := generatorFunc(func(itemCtx context.Context, in generation.Input) (*generation.Outcome, error) {
			entered.Done()
			if in.ItemID == "1" {
				entered.Wait()
				cancel()
				close(canceled)
			}
			<-canceled
			if itemCtx.Err() != nil {
				return nil, itemCtx.Err()
			}
			return accept(itemCtx, in)
		})
		report, err := newRunner(t, gen, sink.NewWriterSink(&bytes.Buffer{}), Options{Concurrency: 3}).
			Run(ctx, FromTexts("a", "b", "c"))
		require.NoError(t, err)
		assert.Len(t, report.Accepted, 3)
		assert.Zero(t, report.Skipped)
	})

	t.Run("Should reject items that exceed their timeout", func(t *testing.T) {
		defer goleak.VerifyNone(t, leakOptions...)
		gen := generatorFunc(func(ctx context.Context, _ generation.Input) (*generation.Outcome, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		report, err := newRunner(t, gen, sink.NewWriterSink(&bytes.Buffer{}), Options{Concurrency: 1, ItemTimeout: 20 * time.Millisecond}).
			Run(t.Context(), FromTexts("slow"))
		require.NoError(t, err)
		require.Len(t, report.Rejected, 1)
		assert.Equal(t, "Timeout", report.Rejected[0].Errors[0].Kind)
	})

	t.Run("Should keep interim artifacts when asked", func(t *testing.T) {
		dir := t.TempDir()
		items := FromTexts("Trail Shoe")
		items[0].ID = "SKU 42/A"
		report, err := newRunner(t, generatorFunc(accept), sink.NewWriterSink(&bytes.Buffer{}), Options{
			Concurrency:   1,
			ArtifactsDir:  dir,
			KeepArtifacts: true,
		}).Run(t.Context(), items)
		require.NoError(t, err)
		itemDir := filepath.Join(dir, "runs", report.RunID, "0001-sku-42-a")
		source, err := os.ReadFile(filepath.Join(itemDir, sourceFile))
		require.NoError(t, err)
		assert.Equal(t, "Trail Shoe", string(source))
		assert.FileExists(t, filepath.Join(itemDir, productFile))
	})

	t.Run("Should remove interim artifacts by default", func(t *testing.T) {
		dir := t.TempDir()
		report, err := newRunner(t, generatorFunc(accept), sink.NewWriterSink(&bytes.Buffer{}), Options{
			Concurrency:  1,
			ArtifactsDir: dir,
		}).Run(t.Context(), FromTexts("Trail Shoe"))
		require.NoError(t, err)
		assert.NoDirExists(t, filepath.Join(dir, "runs", report.RunID))
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Run("Should export outcome counters", func(t *testing.T) {
		metrics := NewMetrics()
		gen := generatorFunc(func(ctx context.Context, in generation.Input) (*generation.Outcome, error) {
			if in.ItemID == "2" {
				return nil, errors.New("boom")
			}
			return accept(ctx, in)
		})
		runner := NewRunner(newPreprocessor(t), gen, sink.NewWriterSink(&bytes.Buffer{}), metrics, Options{Concurrency: 2})
		_, err := runner.Run(t.Context(), FromTexts("a", "b", "c"))
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "batch.prom")
		require.NoError(t, metrics.WriteTextfile(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `productgen_batch_items_total{outcome="accepted",stage=""} 2`)
		assert.Contains(t, string(data), `productgen_batch_items_total{outcome="rejected",stage="generate"} 1`)
	})
}

func TestReport_WriteFile(t *testing.T) {
	t.Run("Should write YAML or JSON by extension", func(t *testing.T) {
		report := &Report{RunID: "run-1", Total: 1, Accepted: []Accepted{{ItemID: "1", Slug: "x", Attempts: 1}}}
		dir := t.TempDir()
		require.NoError(t, report.WriteFile(filepath.Join(dir, "report.yaml")))
		data, err := os.ReadFile(filepath.Join(dir, "report.yaml"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "run_id: run-1")
		require.NoError(t, report.WriteFile(filepath.Join(dir, "nested", "report.json")))
		data, err = os.ReadFile(filepath.Join(dir, "nested", "report.json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"run_id": "run-1"`)
	})
}
