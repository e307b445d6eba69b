package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/compozy/productgen/engine/batch"
	"github.com/compozy/productgen/engine/generation"
	llmadapter "github.com/compozy/productgen/engine/llm/adapter"
	"github.com/compozy/productgen/engine/preprocess"
	"github.com/compozy/productgen/engine/schema"
	"github.com/compozy/productgen/engine/sink"
	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

const (
	fetchTimeout   = 30 * time.Second
	fetchRetries   = 2
	fetchCacheSize = 256
)

func compileOptions(cfg *config.SchemaConfig) schema.CompileOptions {
	return schema.CompileOptions{
		Strict:        cfg.Strict,
		Name:          cfg.Name,
		MaxProperties: cfg.MaxProperties,
		MaxDepth:      cfg.MaxDepth,
	}
}

// compileSchema builds the compiled schema from the configured base schema
// and instructions, going through the artifact cache when one is configured.
func compileSchema(ctx context.Context, cfg *config.SchemaConfig) (*schema.Compiled, bool, error) {
	log := logger.FromContext(ctx)
	model, err := schema.LoadSource(cfg.BasePath)
	if err != nil {
		return nil, false, err
	}
	for _, w := range model.Warnings() {
		log.Warn("Base schema", "warning", w)
	}
	var raw []byte
	var instructions []schema.Instruction
	if cfg.InstructionsPath != "" {
		if raw, err = os.ReadFile(cfg.InstructionsPath); err != nil {
			return nil, false, fmt.Errorf("failed to read instructions: %w", err)
		}
		if instructions, err = schema.ParseInstructions(raw); err != nil {
			return nil, false, err
		}
	}
	var cache *schema.ArtifactCache
	if cfg.CacheDir != "" {
		cache = schema.NewArtifactCache(cfg.CacheDir)
	}
	compiled, hit, err := schema.CompileCached(ctx, cache, model, raw, instructions, compileOptions(cfg))
	if err != nil {
		return nil, false, err
	}
	log.Debug("Schema ready", "fingerprint", compiled.Fingerprint(), "cache_hit", hit)
	return compiled, hit, nil
}

// pipeline is the wired batch runner plus what must be closed after it.
type pipeline struct {
	runner  *batch.Runner
	metrics *batch.Metrics
	client  llmadapter.Client
	sink    sink.Sink
}

func newPipeline(ctx context.Context, cfg *config.Config, opts batch.Options, out io.Writer) (*pipeline, error) {
	compiled, _, err := compileSchema(ctx, &cfg.Schema)
	if err != nil {
		return nil, fatal(err)
	}
	client, err := llmadapter.NewClient(ctx, llmadapter.ProviderConfigFromConfig(&cfg.LLM))
	if err != nil {
		return nil, fatal(err)
	}
	limiter := generation.NewLimiter(cfg.LLM.MaxConcurrency, cfg.LLM.RequestsPerMinute)
	orch, err := generation.New(client, compiled, limiter, generation.ConfigFromLLM(&cfg.LLM))
	if err != nil {
		client.Close()
		return nil, fatal(err)
	}
	dst, err := sink.New(&cfg.Sink, out)
	if err != nil {
		client.Close()
		return nil, fatal(err)
	}
	pre, err := preprocess.New(preprocess.Options{
		Timeout:    fetchTimeout,
		RetryCount: fetchRetries,
		CacheSize:  fetchCacheSize,
	})
	if err != nil {
		dst.Close()
		client.Close()
		return nil, fatal(err)
	}
	metrics := batch.NewMetrics()
	return &pipeline{
		runner:  batch.NewRunner(pre, orch, dst, metrics, opts),
		metrics: metrics,
		client:  client,
		sink:    dst,
	}, nil
}

func (p *pipeline) Close() {
	p.sink.Close()
	p.client.Close()
}

// finishRun writes the report and metrics and maps the outcome to an exit
// code.
func finishRun(ctx context.Context, cfg *config.BatchConfig, p *pipeline, report *batch.Report, stderr io.Writer) error {
	log := logger.FromContext(ctx)
	if cfg.ReportPath != "" {
		if err := report.WriteFile(cfg.ReportPath); err != nil {
			log.Error("Failed to write report", "path", cfg.ReportPath, "error", err)
		}
	}
	if cfg.MetricsPath != "" {
		if err := p.metrics.WriteTextfile(cfg.MetricsPath); err != nil {
			log.Error("Failed to write metrics", "path", cfg.MetricsPath, "error", err)
		}
	}
	st := newStyles(stderr)
	summary := st.ok
	if !report.Complete() {
		summary = st.failed
	}
	fmt.Fprintln(stderr, summary.Render(report.Summary()))
	for _, rej := range report.Rejected {
		for _, e := range rej.Errors {
			fmt.Fprintf(stderr, "  item %s (%s): %s: %s\n", rej.ItemID, rej.Stage, st.failed.Render(e.Kind), e.Message)
		}
	}
	for _, inv := range report.Invalid {
		where := fmt.Sprintf("line %d", inv.Line)
		if inv.File != "" {
			where = fmt.Sprintf("%s:%d", inv.File, inv.Line)
		}
		fmt.Fprintf(stderr, "  %s skipped: %s (%s)\n", st.warn.Render(where), inv.Value, inv.Reason)
	}
	if report.ArtifactsDir != "" {
		fmt.Fprintln(stderr, st.detail.Render("Interim data kept in "+report.ArtifactsDir))
	}
	if report.Complete() {
		return nil
	}
	return &ExitError{Code: ExitPartial}
}
