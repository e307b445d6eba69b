package config

import (
	"context"
	"encoding/json"
	"time"
)

// SourceType identifies where a configuration value came from.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceCLI     SourceType = "cli"
)

// SensitiveString hides its value when printed or serialized.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Config is the complete application configuration.
type Config struct {
	Runtime RuntimeConfig `koanf:"runtime"`
	Schema  SchemaConfig  `koanf:"schema"`
	LLM     LLMConfig     `koanf:"llm"`
	Batch   BatchConfig   `koanf:"batch"`
	Sink    SinkConfig    `koanf:"sink"`
}

// RuntimeConfig contains logging and filesystem settings.
type RuntimeConfig struct {
	LogLevel  string `koanf:"log_level"  env:"PRODUCTGEN_LOG_LEVEL"  validate:"oneof=debug info warn error disabled"`
	LogJSON   bool   `koanf:"log_json"   env:"PRODUCTGEN_LOG_JSON"`
	LogSource bool   `koanf:"log_source" env:"PRODUCTGEN_LOG_SOURCE"`
	DataDir   string `koanf:"data_dir"   env:"PRODUCTGEN_DATA_DIR"   validate:"required"`
}

// SchemaConfig locates the base schema and instructions and controls compilation.
type SchemaConfig struct {
	BasePath         string `koanf:"base_path"         env:"PRODUCTGEN_SCHEMA_BASE"`
	InstructionsPath string `koanf:"instructions_path" env:"PRODUCTGEN_SCHEMA_INSTRUCTIONS"`
	CompiledPath     string `koanf:"compiled_path"     env:"PRODUCTGEN_SCHEMA_COMPILED"`
	CacheDir         string `koanf:"cache_dir"         env:"PRODUCTGEN_SCHEMA_CACHE_DIR"`
	Strict           bool   `koanf:"strict"            env:"PRODUCTGEN_SCHEMA_STRICT"`
	Name             string `koanf:"name"                                                  validate:"required"`
	MaxProperties    int    `koanf:"max_properties"                                        validate:"min=0"`
	MaxDepth         int    `koanf:"max_depth"                                             validate:"min=0"`
}

// LLMConfig configures the generation provider and its retry policy.
type LLMConfig struct {
	Provider          string          `koanf:"provider"            env:"PRODUCTGEN_LLM_PROVIDER" validate:"oneof=openai openai-json anthropic ollama googleai fixture"`
	Model             string          `koanf:"model"               env:"PRODUCTGEN_LLM_MODEL"    validate:"required"`
	APIKey            SensitiveString `koanf:"api_key"             env:"OPENAI_API_KEY"          sensitive:"true"`
	BaseURL           string          `koanf:"base_url"            env:"OPENAI_BASE_URL"`
	Organization      string          `koanf:"organization"        env:"OPENAI_ORG_ID"`
	Temperature       float64         `koanf:"temperature"                                       validate:"min=0,max=2"`
	MaxTokens         int             `koanf:"max_tokens"                                        validate:"min=0"`
	Timeout           time.Duration   `koanf:"timeout"             env:"PRODUCTGEN_LLM_TIMEOUT"  validate:"min=0"`
	SchemaRetries     int             `koanf:"schema_retries"                                    validate:"min=0,max=2"`
	RetryAttempts     int             `koanf:"retry_attempts"                                    validate:"min=0,max=20"`
	RetryBackoffBase  time.Duration   `koanf:"retry_backoff_base"                                validate:"min=0"`
	RetryBackoffMax   time.Duration   `koanf:"retry_backoff_max"                                 validate:"min=0"`
	RetryJitter       time.Duration   `koanf:"retry_jitter"                                      validate:"min=0"`
	MaxConcurrency    int             `koanf:"max_concurrency"                                   validate:"min=1"`
	RequestsPerMinute int             `koanf:"requests_per_minute"                               validate:"min=0"`
	MaxContentBytes   int             `koanf:"max_content_bytes"                                 validate:"min=0"`
	FixturePath       string          `koanf:"fixture_path"        env:"PRODUCTGEN_LLM_FIXTURE"`
	SystemPrompt      string          `koanf:"system_prompt"`
}

// BatchConfig controls the batch runner.
type BatchConfig struct {
	Concurrency   int           `koanf:"concurrency"    env:"PRODUCTGEN_BATCH_CONCURRENCY" validate:"min=1"`
	ItemTimeout   time.Duration `koanf:"item_timeout"                                      validate:"min=0"`
	ArtifactsDir  string        `koanf:"artifacts_dir"`
	KeepArtifacts bool          `koanf:"keep_artifacts"`
	ReportPath    string        `koanf:"report_path"`
	MetricsPath   string        `koanf:"metrics_path"`
}

// SinkConfig selects where accepted records are delivered.
type SinkConfig struct {
	Kind       string          `koanf:"kind"        env:"PRODUCTGEN_SINK"  validate:"oneof=stdout file swell"`
	OutputDir  string          `koanf:"output_dir"`
	BaseURL    string          `koanf:"base_url"    env:"SWELL_BASE_URL"   validate:"omitempty,url"`
	StoreID    string          `koanf:"store_id"    env:"SWELL_STORE_ID"`
	StoreKey   SensitiveString `koanf:"store_key"   env:"SWELL_STORE_KEY"  sensitive:"true"`
	Timeout    time.Duration   `koanf:"timeout"                            validate:"min=0"`
	RetryCount int             `koanf:"retry_count"                        validate:"min=0,max=2"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			LogLevel: "info",
			DataDir:  "data",
		},
		Schema: SchemaConfig{
			CompiledPath:  "data/schema_compiled.json",
			CacheDir:      ".productgen/cache",
			Strict:        true,
			Name:          "product_response",
			MaxProperties: 100,
			MaxDepth:      5,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-2024-08-06",
			BaseURL:           "https://api.openai.com/v1",
			Temperature:       0,
			MaxTokens:         4096,
			Timeout:           120 * time.Second,
			SchemaRetries:     2,
			RetryAttempts:     3,
			RetryBackoffBase:  500 * time.Millisecond,
			RetryBackoffMax:   20 * time.Second,
			RetryJitter:       100 * time.Millisecond,
			MaxConcurrency:    4,
			RequestsPerMinute: 60,
			MaxContentBytes:   200_000,
		},
		Batch: BatchConfig{
			Concurrency:  4,
			ItemTimeout:  5 * time.Minute,
			ArtifactsDir: "data",
		},
		Sink: SinkConfig{
			Kind:       "stdout",
			OutputDir:  "data/output",
			BaseURL:    "https://api.swell.store",
			Timeout:    30 * time.Second,
			RetryCount: 3,
		},
	}
}

// Service loads and validates configuration.
type Service interface {
	Load(ctx context.Context, sources ...Source) (*Config, error)
	Validate(cfg *Config) error
	Sources() map[string]SourceType
}

// Source provides configuration values as a nested map.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}
