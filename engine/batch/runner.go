package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/productgen/engine/generation"
	"github.com/compozy/productgen/engine/preprocess"
	"github.com/compozy/productgen/engine/sink"
	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

var errItemTimeout = errors.New("item timed out")

// Preprocessor turns an item source into generation text.
type Preprocessor interface {
	Preprocess(ctx context.Context, src preprocess.Source) (string, error)
}

// Generator produces an accepted record from text.
type Generator interface {
	Generate(ctx context.Context, in generation.Input) (*generation.Outcome, error)
}

type Options struct {
	Concurrency int
	ItemTimeout time.Duration
	// ArtifactsDir enables interim files when set.
	ArtifactsDir  string
	KeepArtifacts bool
}

func OptionsFromConfig(cfg *config.BatchConfig) Options {
	return Options{
		Concurrency:   cfg.Concurrency,
		ItemTimeout:   cfg.ItemTimeout,
		ArtifactsDir:  cfg.ArtifactsDir,
		KeepArtifacts: cfg.KeepArtifacts,
	}
}

// Runner processes items with a bounded worker pool. A failing item never
// aborts the batch.
type Runner struct {
	pre     Preprocessor
	gen     Generator
	sink    sink.Sink
	metrics *Metrics
	opts    Options
}

func NewRunner(pre Preprocessor, gen Generator, dst sink.Sink, metrics *Metrics, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{pre: pre, gen: gen, sink: dst, metrics: metrics, opts: opts}
}

// Run processes items and returns the report. Canceling ctx stops scheduling;
// items already started finish under their own timeout and the rest are
// counted as skipped. The error is non-nil only when the run could not start.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(items),
		Accepted:  []Accepted{},
		Rejected:  []Rejection{},
	}
	log := logger.FromContext(ctx).With("run_id", report.RunID)
	ctx = logger.ContextWithLogger(ctx, log)
	var artifacts *Artifacts
	if r.opts.ArtifactsDir != "" {
		var err error
		if artifacts, err = NewArtifacts(r.opts.ArtifactsDir, report.RunID); err != nil {
			return nil, err
		}
	}
	log.Info("Batch started", "items", len(items), "concurrency", r.opts.Concurrency)
	g := &errgroup.Group{}
	g.SetLimit(r.opts.Concurrency)
	scheduled := 0
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		item := &items[i]
		scheduled++
		g.Go(func() error {
			r.process(ctx, item, report, artifacts)
			return nil
		})
	}
	_ = g.Wait()
	skipped := len(items) - scheduled
	if skipped > 0 {
		log.Warn("Batch canceled", "skipped", skipped)
	}
	r.metrics.observeSkipped(skipped)
	report.finish(skipped)
	if artifacts != nil {
		if r.opts.KeepArtifacts {
			report.ArtifactsDir = artifacts.Root()
		} else if err := artifacts.Remove(); err != nil {
			log.Warn("Failed to remove artifacts", "dir", artifacts.Root(), "error", err)
		}
	}
	log.Info("Batch finished",
		"accepted", len(report.Accepted),
		"rejected", len(report.Rejected),
		"skipped", report.Skipped,
	)
	return report, nil
}

func (r *Runner) process(parent context.Context, item *Item, report *Report, artifacts *Artifacts) {
	start := time.Now()
	ctx := context.WithoutCancel(parent)
	if r.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.opts.ItemTimeout, errItemTimeout)
		defer cancel()
	}
	log := logger.FromContext(ctx).With("item_id", item.ID, "index", item.Index)
	fail := func(stage Stage, err error) {
		if cause := context.Cause(ctx); cause != nil && errors.Is(cause, errItemTimeout) {
			err = fmt.Errorf("%w: %w", errItemTimeout, err)
		}
		log.Warn("Item rejected", "stage", stage, "error", err)
		report.reject(Rejection{Index: item.Index, ItemID: item.ID, Stage: stage, Errors: describe(err)})
		r.metrics.observeRejected(stage, time.Since(start))
	}

	text, err := r.pre.Preprocess(ctx, item.Source)
	if err != nil {
		fail(StagePreprocess, err)
		return
	}
	if artifacts != nil {
		if err := artifacts.WriteSource(item, text); err != nil {
			log.Warn("Failed to write source artifact", "error", err)
		}
	}
	outcome, err := r.gen.Generate(ctx, generation.Input{ItemID: item.ID, Text: text, Hints: item.Hints})
	if err != nil {
		fail(StageGenerate, err)
		return
	}
	rec := outcome.Result.Record
	if artifacts != nil {
		if data, err := json.MarshalIndent(rec, "", "  "); err == nil {
			if err := artifacts.WriteProduct(item, data); err != nil {
				log.Warn("Failed to write product artifact", "error", err)
			}
		}
	}
	receipt, err := r.sink.Submit(ctx, rec)
	if err != nil {
		fail(StageSink, err)
		return
	}
	accepted := Accepted{
		Index:     item.Index,
		ItemID:    item.ID,
		Slug:      rec.Slug,
		ReceiptID: receipt.ID,
		Attempts:  outcome.Attempts,
		Warnings:  outcome.Result.Warnings,
	}
	for _, c := range outcome.Result.Corrections {
		accepted.Corrections = append(accepted.Corrections, c.String())
	}
	report.accept(accepted)
	r.metrics.observeAccepted(time.Since(start), outcome.Attempts, len(outcome.Result.Corrections))
	log.Info("Item accepted", "slug", rec.Slug, "receipt", receipt.ID, "attempts", outcome.Attempts)
}
