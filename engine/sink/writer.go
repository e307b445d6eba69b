package sink

import (
	"context"
	"io"
	"sync"

	"github.com/compozy/productgen/engine/product"
)

// WriterSink writes records as JSON lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Submit(ctx context.Context, rec *product.Record) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, &Error{Sink: KindStdout, Slug: rec.Slug, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return nil, &Error{Sink: KindStdout, Slug: rec.Slug, Err: err}
	}
	return &Receipt{ID: rec.Slug}, nil
}

func (s *WriterSink) Close() error {
	return nil
}
