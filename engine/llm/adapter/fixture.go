package llmadapter

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FixtureClient answers every request with the content of a file, for
// offline runs.
type FixtureClient struct {
	content string
}

// NewFixtureClient reads the fixture at path.
func NewFixtureClient(path string) (*FixtureClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return &FixtureClient{content: strings.TrimSpace(string(data))}, nil
}

// GenerateContent implements Client.
func (f *FixtureClient) GenerateContent(ctx context.Context, _ *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{Content: f.content, FinishReason: "stop"}, nil
}

// Close implements Client.
func (f *FixtureClient) Close() error {
	return nil
}
