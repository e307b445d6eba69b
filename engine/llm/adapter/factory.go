package llmadapter

import (
	"context"
	"fmt"

	"github.com/compozy/productgen/pkg/config"
)

// ProviderConfigFromConfig maps the llm configuration section.
func ProviderConfigFromConfig(cfg *config.LLMConfig) *ProviderConfig {
	return &ProviderConfig{
		Provider:     ProviderName(cfg.Provider),
		Model:        cfg.Model,
		APIKey:       cfg.APIKey.Value(),
		BaseURL:      cfg.BaseURL,
		Organization: cfg.Organization,
		Timeout:      cfg.Timeout,
		FixturePath:  cfg.FixturePath,
	}
}

// NewClient creates the Client for the configured provider.
func NewClient(ctx context.Context, cfg *ProviderConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("provider config must not be nil")
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderFixture:
		return NewFixtureClient(cfg.FixturePath)
	case ProviderOpenAIJSON, ProviderAnthropic, ProviderOllama, ProviderGoogle:
		jsonCfg := *cfg
		if jsonCfg.Provider != ProviderOpenAIJSON && jsonCfg.BaseURL == defaultOpenAIBaseURL {
			jsonCfg.BaseURL = ""
		}
		model, err := CreateLLM(ctx, &jsonCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM model: %w", err)
		}
		return NewLangChainAdapter(model, cfg.Provider), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
