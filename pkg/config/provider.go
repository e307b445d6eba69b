package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// cliProvider maps flag names to configuration paths.
type cliProvider struct {
	flags map[string]any
}

// CLIFlagPaths maps command-line flag names to configuration paths.
var CLIFlagPaths = map[string]string{
	"log-level":      "runtime.log_level",
	"log-json":       "runtime.log_json",
	"log-source":     "runtime.log_source",
	"schema":         "schema.base_path",
	"instructions":   "schema.instructions_path",
	"compiled":       "schema.compiled_path",
	"strict":         "schema.strict",
	"provider":       "llm.provider",
	"model":          "llm.model",
	"fixture":        "llm.fixture_path",
	"concurrency":    "batch.concurrency",
	"item-timeout":   "batch.item_timeout",
	"keep-artifacts": "batch.keep_artifacts",
	"report":         "batch.report_path",
	"metrics":        "batch.metrics_path",
	"sink":           "sink.kind",
	"output-dir":     "sink.output_dir",
}

// NewCLIProvider creates a source from changed CLI flags keyed by flag name.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{flags: flags}
}

func (c *cliProvider) Load() (map[string]any, error) {
	out := make(map[string]any)
	for key, value := range c.flags {
		path, ok := CLIFlagPaths[key]
		if !ok {
			continue
		}
		if err := setNested(out, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", key, err)
		}
	}
	return out, nil
}

func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// setNested sets a value in a nested map using dot notation.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	current := m
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// yamlProvider reads a YAML configuration file. A missing file is empty.
type yamlProvider struct {
	path string
}

func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

func (y *yamlProvider) Load() (map[string]any, error) {
	if y.path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(y.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(cfg), nil
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

// filterNilValues drops nil values so they do not override earlier sources.
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if filtered := filterNilValues(nested); len(filtered) > 0 {
				result[k] = filtered
			}
			continue
		}
		result[k] = v
	}
	return result
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}
