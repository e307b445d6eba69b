package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/pretty"

	"github.com/compozy/productgen/engine/product"
)

// FileSink writes one <slug>.json file per record.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("file sink requires an output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Submit implements Sink. A record with the same slug replaces the
// previous file.
func (s *FileSink) Submit(ctx context.Context, rec *product.Record) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.Slug == "" {
		return nil, &Error{Sink: KindFile, Err: fmt.Errorf("record has no slug")}
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, &Error{Sink: KindFile, Slug: rec.Slug, Err: err}
	}
	path := filepath.Join(s.dir, rec.Slug+".json")
	tmp, err := os.CreateTemp(s.dir, "."+rec.Slug+"-*.tmp")
	if err != nil {
		return nil, &Error{Sink: KindFile, Slug: rec.Slug, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pretty.Pretty(data)); err != nil {
		tmp.Close()
		return nil, &Error{Sink: KindFile, Slug: rec.Slug, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &Error{Sink: KindFile, Slug: rec.Slug, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, &Error{Sink: KindFile, Slug: rec.Slug, Err: err}
	}
	return &Receipt{ID: rec.Slug, Location: path}, nil
}

func (s *FileSink) Close() error {
	return nil
}

func encodeRecord(rec *product.Record) ([]byte, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}
