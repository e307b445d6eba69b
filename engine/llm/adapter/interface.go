package llmadapter

import (
	"context"
	"encoding/json"
	"time"
)

// Role constants for message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ProviderName identifies a generation backend.
type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderOpenAIJSON ProviderName = "openai-json"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOllama     ProviderName = "ollama"
	ProviderGoogle     ProviderName = "googleai"
	ProviderFixture    ProviderName = "fixture"
)

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Provider     ProviderName
	Model        string
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
	FixturePath  string
}

// Request is a provider independent generation request. Schema is the
// compiled, self-contained JSON Schema the answer must conform to.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Schema       json.RawMessage
	SchemaName   string
	Strict       bool
	Options      CallOptions
}

// Message represents a conversation message
type Message struct {
	Role    string
	Content string
}

// CallOptions represents options for the call
type CallOptions struct {
	Temperature float64
	MaxTokens   int
}

// Response is the raw text answer of the model.
type Response struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client generates content constrained to a schema. Failures are *Error.
type Client interface {
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
	Close() error
}
