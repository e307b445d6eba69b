package llmadapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// CreateLLM creates the langchaingo model for a JSON-mode provider.
func CreateLLM(ctx context.Context, p *ProviderConfig) (llms.Model, error) {
	switch p.Provider {
	case ProviderOpenAIJSON:
		return createOpenAIJSONLLM(p)
	case ProviderAnthropic:
		return createAnthropicLLM(p)
	case ProviderOllama:
		return createOllamaLLM(p)
	case ProviderGoogle:
		return createGoogleLLM(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", p.Provider)
	}
}

// createOpenAIJSONLLM targets OpenAI compatible servers without json_schema support.
func createOpenAIJSONLLM(p *ProviderConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(p.Model),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
	}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if p.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.BaseURL))
	}
	if p.Organization != "" {
		opts = append(opts, openai.WithOrganization(p.Organization))
	}
	return openai.New(opts...)
}

func createAnthropicLLM(p *ProviderConfig) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(p.Model),
	}
	if p.APIKey != "" {
		opts = append(opts, anthropic.WithToken(p.APIKey))
	}
	if p.Organization != "" {
		return nil, fmt.Errorf("anthropic does not support organization")
	}
	return anthropic.New(opts...)
}

func createOllamaLLM(p *ProviderConfig) (llms.Model, error) {
	opts := []ollama.Option{
		ollama.WithModel(p.Model),
		ollama.WithFormat("json"),
	}
	if p.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(p.BaseURL))
	}
	if p.Organization != "" {
		return nil, fmt.Errorf("ollama does not support organization")
	}
	return ollama.New(opts...)
}

func createGoogleLLM(ctx context.Context, p *ProviderConfig) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithDefaultModel(p.Model),
	}
	if p.APIKey != "" {
		opts = append(opts, googleai.WithAPIKey(p.APIKey))
	}
	if p.Organization != "" {
		return nil, fmt.Errorf("googleai does not support organization")
	}
	return googleai.New(ctx, opts...)
}
