package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	llmadapter "github.com/compozy/productgen/engine/llm/adapter"
	"github.com/compozy/productgen/engine/normalize"
	"github.com/compozy/productgen/engine/schema"
	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

// Hint is a column/value pair from tabular input passed along with the text.
type Hint struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Input is one item to generate a record for.
type Input struct {
	ItemID string
	Text   string
	Hints  []Hint
}

// Outcome is an accepted record plus what it took to produce it.
type Outcome struct {
	Result   *normalize.Result
	Raw      map[string]any
	Attempts int
	Usage    llmadapter.Usage
}

// Config holds the orchestration policy.
type Config struct {
	SchemaRetries    int
	RetryAttempts    int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	RetryJitter      time.Duration
	CallTimeout      time.Duration
	Temperature      float64
	MaxTokens        int
	MaxContentBytes  int
	SystemPrompt     string
}

// DefaultConfig mirrors the built-in configuration.
func DefaultConfig() Config {
	return ConfigFromLLM(&config.Default().LLM)
}

func ConfigFromLLM(cfg *config.LLMConfig) Config {
	return Config{
		SchemaRetries:    cfg.SchemaRetries,
		RetryAttempts:    cfg.RetryAttempts,
		RetryBackoffBase: cfg.RetryBackoffBase,
		RetryBackoffMax:  cfg.RetryBackoffMax,
		RetryJitter:      cfg.RetryJitter,
		CallTimeout:      cfg.Timeout,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		MaxContentBytes:  cfg.MaxContentBytes,
		SystemPrompt:     cfg.SystemPrompt,
	}
}

// Orchestrator turns free text into an accepted product record. It is safe
// for concurrent use; the limiter is shared by every caller.
type Orchestrator struct {
	client     llmadapter.Client
	compiled   *schema.Compiled
	normalizer *normalize.Normalizer
	limiter    *Limiter
	prompts    *Prompts
	cfg        Config
}

// New wires an orchestrator. limiter may be nil.
func New(client llmadapter.Client, compiled *schema.Compiled, limiter *Limiter, cfg Config) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("generation client is required")
	}
	if compiled == nil {
		return nil, errors.New("compiled schema is required")
	}
	prompts, err := NewPrompts(cfg.SystemPrompt)
	if err != nil {
		return nil, err
	}
	if cfg.SchemaRetries < 0 {
		cfg.SchemaRetries = 0
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 100 * time.Millisecond
	}
	return &Orchestrator{
		client:     client,
		compiled:   compiled,
		normalizer: normalize.New(compiled),
		limiter:    limiter,
		prompts:    prompts,
		cfg:        cfg,
	}, nil
}

// Compiled returns the schema the orchestrator generates against.
func (o *Orchestrator) Compiled() *schema.Compiled {
	return o.compiled
}

// Generate produces one record. Structurally invalid answers are retried with
// the issues fed back to the model; after SchemaRetries extra attempts a
// SchemaViolation *Error is returned. Domain rule violations are returned as
// *normalize.ValidationError without retrying.
func (o *Orchestrator) Generate(ctx context.Context, in Input) (*Outcome, error) {
	log := logger.FromContext(ctx).With("item_id", in.ItemID)
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if o.cfg.MaxContentBytes > 0 && len(text) > o.cfg.MaxContentBytes {
		log.Warn("Input truncated", "bytes", len(text), "limit", o.cfg.MaxContentBytes)
		text = truncateUTF8(text, o.cfg.MaxContentBytes)
	}
	system, err := o.prompts.System(&in)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	user, err := o.prompts.User(text, in.Hints)
	if err != nil {
		return nil, fmt.Errorf("failed to render user prompt: %w", err)
	}
	req := &llmadapter.Request{
		SystemPrompt: system,
		Messages:     []llmadapter.Message{{Role: llmadapter.RoleUser, Content: user}},
		Schema:       o.compiled.JSON(),
		SchemaName:   o.compiled.Name(),
		Strict:       o.compiled.Strict(),
		Options: llmadapter.CallOptions{
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		},
	}
	var usage llmadapter.Usage
	var issues []string
	maxAttempts := o.cfg.SchemaRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := o.call(ctx, req)
		var content string
		switch {
		case err == nil:
			addUsage(&usage, resp.Usage)
			content = resp.Content
			var candidate map[string]any
			candidate, issues = o.parseCandidate(content)
			if len(issues) == 0 {
				result, err := o.normalizer.Normalize(ctx, candidate)
				if err != nil {
					log.Info("Record rejected by domain rules", "attempt", attempt, "error", err)
					return nil, err
				}
				log.Debug("Record generated", "attempt", attempt, "slug", result.Record.Slug)
				return &Outcome{Result: result, Raw: candidate, Attempts: attempt, Usage: usage}, nil
			}
		case isInvalidOutput(err):
			issues = []string{err.Error()}
		default:
			return nil, err
		}
		log.Warn("Output does not match the schema", "attempt", attempt, "issues", len(issues))
		if attempt == maxAttempts {
			break
		}
		feedback, err := o.prompts.Feedback(issues)
		if err != nil {
			return nil, fmt.Errorf("failed to render feedback prompt: %w", err)
		}
		if content != "" {
			req.Messages = append(req.Messages, llmadapter.Message{Role: llmadapter.RoleAssistant, Content: content})
		}
		req.Messages = append(req.Messages, llmadapter.Message{Role: llmadapter.RoleUser, Content: feedback})
	}
	return nil, &Error{Kind: KindSchemaViolation, Attempts: maxAttempts, Issues: issues}
}

// parseCandidate decodes an answer and checks it against the compiled
// schema. Derived fields such as the slug are filled in before the check.
func (o *Orchestrator) parseCandidate(content string) (map[string]any, []string) {
	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &value); err != nil {
		return nil, []string{fmt.Sprintf("response is not valid JSON: %v", err)}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, []string{"response must be a JSON object"}
	}
	derived, err := o.normalizer.Derive(obj)
	if err != nil {
		return nil, []string{err.Error()}
	}
	found := o.compiled.Validate(derived)
	if len(found) == 0 {
		return obj, nil
	}
	out := make([]string, len(found))
	for i, issue := range found {
		out[i] = issue.String()
	}
	return obj, out
}

// call performs one logical model call, retrying transient transport
// failures with exponential backoff.
func (o *Orchestrator) call(ctx context.Context, req *llmadapter.Request) (*llmadapter.Response, error) {
	log := logger.FromContext(ctx)
	var response *llmadapter.Response
	var retryAfter time.Duration
	attempts := 0
	err := retry.Do(ctx, o.backoff(&retryAfter), func(ctx context.Context) error {
		attempts++
		release, err := o.limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
		callCtx := ctx
		if o.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
		}
		resp, callErr := o.client.GenerateContent(callCtx, req)
		if callErr == nil {
			response = resp
			return nil
		}
		if llmErr, ok := llmadapter.AsError(callErr); ok && llmErr.Retryable() {
			retryAfter = llmErr.RetryAfter
			log.Warn("Generation call failed, retrying",
				"attempt", attempts,
				"code", llmErr.Code,
				"retry_after", llmErr.RetryAfter,
			)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err == nil {
		return response, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("generation canceled: %w", ctxErr)
	}
	if isInvalidOutput(err) {
		return nil, err
	}
	return nil, &Error{Kind: KindUnavailable, Attempts: attempts, Err: err}
}

// backoff is exponential with jitter, capped per step and bounded by
// RetryAttempts. A server provided Retry-After stretches the next delay.
func (o *Orchestrator) backoff(retryAfter *time.Duration) retry.Backoff {
	b := retry.NewExponential(o.cfg.RetryBackoffBase)
	if o.cfg.RetryBackoffMax > 0 {
		b = retry.WithCappedDuration(o.cfg.RetryBackoffMax, b)
	}
	if o.cfg.RetryJitter > 0 {
		b = retry.WithJitter(o.cfg.RetryJitter, b)
	}
	attempts := max(o.cfg.RetryAttempts, 0)
	b = retry.WithMaxRetries(uint64(attempts), b)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := b.Next()
		if stop {
			return 0, true
		}
		if *retryAfter > next {
			next = *retryAfter
		}
		*retryAfter = 0
		return next, false
	})
}

func isInvalidOutput(err error) bool {
	llmErr, ok := llmadapter.AsError(err)
	return ok && llmErr.InvalidOutput()
}

func addUsage(total *llmadapter.Usage, u *llmadapter.Usage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for s != "" && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
