package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmadapter "github.com/compozy/productgen/engine/llm/adapter"
	"github.com/compozy/productgen/engine/normalize"
	"github.com/compozy/productgen/engine/schema"
)

type step struct {
	content string
	err     error
}

// scriptedClient answers with the scripted steps in order and repeats the
// last one once the script is exhausted.
type scriptedClient struct {
	mu       sync.Mutex
	steps    []step
	requests []llmadapter.Request
	calls    int
}

func (c *scriptedClient) GenerateContent(_ context.Context, req *llmadapter.Request) (*llmadapter.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := *req
	snapshot.Messages = append([]llmadapter.Message(nil), req.Messages...)
	c.requests = append(c.requests, snapshot)
	idx := min(c.calls, len(c.steps)-1)
	c.calls++
	s := c.steps[idx]
	if s.err != nil {
		return nil, s.err
	}
	return &llmadapter.Response{
		Content: s.content,
		Usage:   &llmadapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func compiled(t *testing.T) *schema.Compiled {
	t.Helper()
	model, err := schema.LoadSource("")
	require.NoError(t, err)
	opts := schema.DefaultCompileOptions()
	opts.Strict = false
	c, err := schema.Compile(model, nil, opts)
	require.NoError(t, err)
	return c
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoffBase = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.RetryJitter = 0
	cfg.CallTimeout = time.Second
	return cfg
}

func newOrchestrator(t *testing.T, client llmadapter.Client, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(client, compiled(t), NewLimiter(2, 0), cfg)
	require.NoError(t, err)
	return o
}

func unavailable() error {
	return llmadapter.NewError(http.StatusServiceUnavailable, "overloaded", "test", nil)
}

const validAnswer = `{"name":"Trail Running Shoe","type":"standard","price":89.5}`

func TestOrchestrator_Generate(t *testing.T) {
	t.Run("Should accept a valid first answer", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: validAnswer}}}
		o := newOrchestrator(t, client, testConfig())
		out, err := o.Generate(t.Context(), Input{ItemID: "1", Text: "Trail running shoe, $89.50"})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Attempts)
		assert.Equal(t, "trail-running-shoe", out.Result.Record.Slug)
		assert.Equal(t, 15, out.Usage.TotalTokens)

		req := client.requests[0]
		assert.Contains(t, req.SystemPrompt, "expert at structured data extraction")
		assert.JSONEq(t, string(o.Compiled().JSON()), string(req.Schema))
		assert.Equal(t, o.Compiled().Name(), req.SchemaName)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Trail running shoe, $89.50", req.Messages[0].Content)
	})

	t.Run("Should derive a null slug before the strict structural check", func(t *testing.T) {
		model, err := schema.LoadSource("")
		require.NoError(t, err)
		strict, err := schema.Compile(model, nil, schema.DefaultCompileOptions())
		require.NoError(t, err)
		answer := map[string]any{}
		for _, key := range strict.Root().Properties.Keys() {
			answer[key] = nil
		}
		answer["name"] = "Trail Running Shoe"
		raw, err := json.Marshal(answer)
		require.NoError(t, err)

		client := &scriptedClient{steps: []step{{content: string(raw)}}}
		o, err := New(client, strict, NewLimiter(1, 0), testConfig())
		require.NoError(t, err)
		out, err := o.Generate(t.Context(), Input{Text: "Trail running shoe"})
		require.NoError(t, err)
		assert.Equal(t, 1, client.Calls())
		assert.Equal(t, "trail-running-shoe", out.Result.Record.Slug)
		assert.Nil(t, out.Raw["slug"])
	})

	t.Run("Should render column hints into the user message", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: validAnswer}}}
		o := newOrchestrator(t, client, testConfig())
		_, err := o.Generate(t.Context(), Input{
			Text:  "Trail shoe",
			Hints: []Hint{{Column: "brand", Value: "Acme"}, {Column: "sku", Value: "TR-1"}},
		})
		require.NoError(t, err)
		msg := client.requests[0].Messages[0].Content
		assert.Contains(t, msg, "Column hints:")
		assert.Contains(t, msg, "- brand: Acme")
		assert.Contains(t, msg, "- sku: TR-1")
		assert.Contains(t, client.requests[0].SystemPrompt, "Column hints")
	})

	t.Run("Should feed structural issues back until the answer is valid", func(t *testing.T) {
		client := &scriptedClient{steps: []step{
			{content: "not json"},
			{content: `{"name":"Trail Running Shoe","price":"cheap"}`},
			{content: validAnswer},
		}}
		o := newOrchestrator(t, client, testConfig())
		out, err := o.Generate(t.Context(), Input{Text: "Trail running shoe"})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Attempts)
		assert.Equal(t, 45, out.Usage.TotalTokens)

		last := client.requests[2].Messages
		require.Len(t, last, 5)
		assert.Equal(t, llmadapter.RoleAssistant, last[1].Role)
		assert.Equal(t, "not json", last[1].Content)
		assert.Contains(t, last[2].Content, "not valid JSON")
		assert.Contains(t, last[4].Content, schema.CodeInvalidType)
		assert.Contains(t, last[4].Content, "Return the complete corrected JSON object.")
	})

	t.Run("Should give up with a schema violation after the retries", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: `{"name":"X","price":"cheap"}`}}}
		o := newOrchestrator(t, client, testConfig())
		_, err := o.Generate(t.Context(), Input{ItemID: "3", Text: "X"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrGeneration))
		assert.True(t, IsKind(err, KindSchemaViolation))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, 3, genErr.Attempts)
		require.NotEmpty(t, genErr.Issues)
		assert.Contains(t, genErr.Issues[0], "/price")
		assert.Equal(t, 3, client.Calls())
	})

	t.Run("Should treat a refusal as an invalid attempt", func(t *testing.T) {
		client := &scriptedClient{steps: []step{
			{err: llmadapter.NewErrorWithCode(llmadapter.ErrCodeRefused, "cannot comply", "test", nil)},
			{content: validAnswer},
		}}
		o := newOrchestrator(t, client, testConfig())
		out, err := o.Generate(t.Context(), Input{Text: "Trail shoe"})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Attempts)
		msgs := client.requests[1].Messages
		require.Len(t, msgs, 2)
		assert.Contains(t, msgs[1].Content, "cannot comply")
	})

	t.Run("Should retry transient failures without spending schema attempts", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{err: unavailable()}, {err: unavailable()}, {content: validAnswer}}}
		o := newOrchestrator(t, client, testConfig())
		out, err := o.Generate(t.Context(), Input{Text: "Trail shoe"})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Attempts)
		assert.Equal(t, 3, client.Calls())
	})

	t.Run("Should wait at least the Retry-After delay", func(t *testing.T) {
		limited := llmadapter.NewError(http.StatusTooManyRequests, "slow down", "test", nil)
		limited.RetryAfter = 40 * time.Millisecond
		client := &scriptedClient{steps: []step{{err: limited}, {content: validAnswer}}}
		o := newOrchestrator(t, client, testConfig())
		start := time.Now()
		_, err := o.Generate(t.Context(), Input{Text: "Trail shoe"})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("Should fail fast on non retryable errors", func(t *testing.T) {
		client := &scriptedClient{steps: []step{
			{err: llmadapter.NewError(http.StatusUnauthorized, "bad key", "test", nil)},
		}}
		o := newOrchestrator(t, client, testConfig())
		_, err := o.Generate(t.Context(), Input{Text: "Trail shoe"})
		assert.True(t, IsKind(err, KindUnavailable))
		assert.Equal(t, 1, client.Calls())
		llmErr, ok := llmadapter.AsError(err)
		require.True(t, ok)
		assert.Equal(t, llmadapter.ErrCodeUnauthorized, llmErr.Code)
	})

	t.Run("Should report unavailability once transport retries are exhausted", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{err: unavailable()}}}
		cfg := testConfig()
		cfg.RetryAttempts = 2
		o := newOrchestrator(t, client, cfg)
		_, err := o.Generate(t.Context(), Input{Text: "Trail shoe"})
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindUnavailable, genErr.Kind)
		assert.Equal(t, 3, genErr.Attempts)
		assert.Equal(t, 3, client.Calls())
	})

	t.Run("Should return domain violations without retrying", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: `{"name":"X","bundle_items":[{"product_name":"Y"}]}`}}}
		o := newOrchestrator(t, client, testConfig())
		_, err := o.Generate(t.Context(), Input{Text: "X"})
		ve, ok := normalize.AsValidationError(err)
		require.True(t, ok)
		assert.True(t, ve.HasRule(normalize.RuleBundleItemsWithoutBundleFlag))
		assert.False(t, errors.Is(err, ErrGeneration))
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("Should reject empty input without calling the model", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: validAnswer}}}
		o := newOrchestrator(t, client, testConfig())
		_, err := o.Generate(t.Context(), Input{Text: "  \n"})
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Zero(t, client.Calls())
	})

	t.Run("Should truncate oversized input on a rune boundary", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{content: validAnswer}}}
		cfg := testConfig()
		cfg.MaxContentBytes = 5
		o := newOrchestrator(t, client, cfg)
		_, err := o.Generate(t.Context(), Input{Text: "abcdéfgh"})
		require.NoError(t, err)
		assert.Equal(t, "abcd", client.requests[0].Messages[0].Content)
	})

	t.Run("Should stop when the context is canceled", func(t *testing.T) {
		client := &scriptedClient{steps: []step{{err: unavailable()}}}
		cfg := testConfig()
		cfg.RetryAttempts = 10
		cfg.RetryBackoffBase = time.Second
		cfg.RetryBackoffMax = 0
		o := newOrchestrator(t, client, cfg)
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		_, err := o.Generate(ctx, Input{Text: "Trail shoe"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, errors.Is(err, ErrGeneration))
	})
}

func TestNew(t *testing.T) {
	t.Run("Should require a client and a schema", func(t *testing.T) {
		_, err := New(nil, compiled(t), nil, DefaultConfig())
		assert.Error(t, err)
		_, err = New(&scriptedClient{}, nil, nil, DefaultConfig())
		assert.Error(t, err)
	})

	t.Run("Should reject a broken system prompt template", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SystemPrompt = "{{ .hints "
		_, err := New(&scriptedClient{}, compiled(t), nil, cfg)
		assert.ErrorContains(t, err, "invalid system prompt")
	})
}

func TestError(t *testing.T) {
	t.Run("Should format the kind and issues", func(t *testing.T) {
		err := &Error{Kind: KindSchemaViolation, Attempts: 3, Issues: []string{"a", "b"}}
		assert.Equal(t, "GenerationError(SchemaViolation) after 3 attempts: a; b", err.Error())
		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, KindSchemaViolation, kind)
		_, ok = KindOf(errors.New("other"))
		assert.False(t, ok)
	})
}
