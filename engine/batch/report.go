package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compozy/productgen/engine/generation"
	"github.com/compozy/productgen/engine/normalize"
	"github.com/compozy/productgen/engine/preprocess"
	"github.com/compozy/productgen/engine/sink"
)

type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageGenerate   Stage = "generate"
	StageSink       Stage = "sink"
)

// Accepted is a record that reached the sink.
type Accepted struct {
	Index       int      `json:"index"                 yaml:"index"`
	ItemID      string   `json:"item_id"               yaml:"item_id"`
	Slug        string   `json:"slug"                  yaml:"slug"`
	ReceiptID   string   `json:"receipt_id,omitempty"  yaml:"receipt_id,omitempty"`
	Attempts    int      `json:"attempts"              yaml:"attempts"`
	Corrections []string `json:"corrections,omitempty" yaml:"corrections,omitempty"`
	Warnings    []string `json:"warnings,omitempty"    yaml:"warnings,omitempty"`
}

// ItemError is one reason an item was rejected.
type ItemError struct {
	Kind    string `json:"kind"           yaml:"kind"`
	Rule    string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Message string `json:"message"        yaml:"message"`
}

// Rejection lists every error of a failed item.
type Rejection struct {
	Index  int         `json:"index"   yaml:"index"`
	ItemID string      `json:"item_id" yaml:"item_id"`
	Stage  Stage       `json:"stage"   yaml:"stage"`
	Errors []ItemError `json:"errors"  yaml:"errors"`
}

// Report summarizes a run. It is safe for concurrent recording.
type Report struct {
	RunID      string         `json:"run_id"                   yaml:"run_id"`
	StartedAt  time.Time      `json:"started_at"               yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at"              yaml:"finished_at"`
	Total      int            `json:"total"                    yaml:"total"`
	Skipped    int            `json:"skipped"                  yaml:"skipped"`
	Accepted   []Accepted     `json:"accepted"                 yaml:"accepted"`
	Rejected   []Rejection    `json:"rejected"                 yaml:"rejected"`
	Invalid    []InvalidInput `json:"invalid_inputs,omitempty" yaml:"invalid_inputs,omitempty"`

	// ArtifactsDir is set when interim files were kept.
	ArtifactsDir string `json:"artifacts_dir,omitempty" yaml:"artifacts_dir,omitempty"`

	mu sync.Mutex
}

func (r *Report) accept(a Accepted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Accepted = append(r.Accepted, a)
}

func (r *Report) reject(rej Rejection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rejected = append(r.Rejected, rej)
}

func (r *Report) finish(skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = skipped
	r.FinishedAt = time.Now().UTC()
	sort.Slice(r.Accepted, func(i, j int) bool { return r.Accepted[i].Index < r.Accepted[j].Index })
	sort.Slice(r.Rejected, func(i, j int) bool { return r.Rejected[i].Index < r.Rejected[j].Index })
}

// Complete reports whether every item was accepted.
func (r *Report) Complete() bool {
	return len(r.Rejected) == 0 && r.Skipped == 0 && len(r.Invalid) == 0
}

func (r *Report) Summary() string {
	return fmt.Sprintf("run %s: %d items, %d accepted, %d rejected, %d skipped",
		r.RunID, r.Total, len(r.Accepted), len(r.Rejected), r.Skipped)
}

// WriteFile writes the report as YAML for .yaml/.yml paths and JSON
// otherwise.
func (r *Report) WriteFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// describe flattens an item failure into report entries.
func describe(err error) []ItemError {
	if ve, ok := normalize.AsValidationError(err); ok {
		out := make([]ItemError, len(ve.Violations))
		for i, v := range ve.Violations {
			out[i] = ItemError{Kind: string(v.Kind), Rule: string(v.Rule), Path: v.Path, Message: v.Message}
		}
		return out
	}
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return []ItemError{{Kind: fmt.Sprintf("GenerationError(%s)", genErr.Kind), Message: genErr.Error()}}
	}
	kind := "Error"
	switch {
	case errors.Is(err, sink.ErrSink):
		kind = "SinkError"
	case errors.Is(err, preprocess.ErrPreprocess), errors.Is(err, preprocess.ErrEmpty):
		kind = "PreprocessError"
	case errors.Is(err, generation.ErrEmptyInput):
		kind = "EmptyInput"
	case errors.Is(err, errItemTimeout):
		kind = "Timeout"
	}
	return []ItemError{{Kind: kind, Message: err.Error()}}
}
