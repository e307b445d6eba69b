package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/compozy/productgen/engine/product"
	"github.com/compozy/productgen/pkg/config"
)

// ErrSink matches every *Error.
var ErrSink = errors.New("sink error")

const (
	KindStdout = "stdout"
	KindFile   = "file"
	KindSwell  = "swell"
)

// Receipt identifies a submitted record in the destination.
type Receipt struct {
	ID       string `json:"id"`
	Location string `json:"location,omitempty"`
}

// Sink delivers accepted records. Implementations are safe for concurrent use.
type Sink interface {
	Submit(ctx context.Context, rec *product.Record) (*Receipt, error)
	Close() error
}

// Error is a failed submission.
type Error struct {
	Sink       string
	Slug       string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s sink rejected %q", e.Sink, e.Slug)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == ErrSink
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds the sink selected by cfg. out receives records for the stdout
// sink.
func New(cfg *config.SinkConfig, out io.Writer) (Sink, error) {
	switch cfg.Kind {
	case KindStdout, "":
		return NewWriterSink(out), nil
	case KindFile:
		return NewFileSink(cfg.OutputDir)
	case KindSwell:
		return NewSwellSink(&SwellConfig{
			BaseURL:    cfg.BaseURL,
			StoreID:    cfg.StoreID,
			StoreKey:   cfg.StoreKey.Value(),
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
		})
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}
