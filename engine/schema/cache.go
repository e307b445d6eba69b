package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const cacheLockRetry = 50 * time.Millisecond

// ArtifactCache stores compiled artifacts on disk keyed by their inputs.
type ArtifactCache struct {
	dir string
}

func NewArtifactCache(dir string) *ArtifactCache {
	return &ArtifactCache{dir: dir}
}

func (c *ArtifactCache) Dir() string {
	return c.dir
}

// CacheKey derives the cache key from the base document, the raw
// instruction document and the compile options.
func CacheKey(base, instructions []byte, opts CompileOptions) string {
	h := sha256.New()
	h.Write(base)
	h.Write([]byte{0})
	h.Write(instructions)
	h.Write([]byte{0})
	fmt.Fprintf(h, "strict=%t;name=%s", opts.Strict, opts.Name)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ArtifactCache) path(key string) string {
	return filepath.Join(c.dir, key+".schema.json")
}

func (c *ArtifactCache) lock(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", c.dir, err)
	}
	fl := flock.New(filepath.Join(c.dir, ".lock"))
	locked, err := fl.TryLockContext(ctx, cacheLockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock schema cache: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock schema cache %s", c.dir)
	}
	return fl, nil
}

// Get returns the cached artifact for key, if present.
func (c *ArtifactCache) Get(ctx context.Context, key string, opts CompileOptions) (*Compiled, bool, error) {
	fl, err := c.lock(ctx)
	if err != nil {
		return nil, false, err
	}
	defer fl.Unlock()
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached schema: %w", err)
	}
	compiled, err := LoadCompiled(data, opts)
	if err != nil {
		return nil, false, fmt.Errorf("cached schema %s is corrupt: %w", key, err)
	}
	return compiled, true, nil
}

func (c *ArtifactCache) Put(ctx context.Context, key string, compiled *Compiled) error {
	fl, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer fl.Unlock()
	return compiled.WriteFile(c.path(key))
}

// CompileCached returns the cached artifact for the inputs or compiles and
// stores it. The boolean reports a cache hit.
func CompileCached(
	ctx context.Context,
	cache *ArtifactCache,
	model *Model,
	rawInstructions []byte,
	instructions []Instruction,
	opts CompileOptions,
) (*Compiled, bool, error) {
	if cache == nil {
		compiled, err := Compile(model, instructions, opts)
		return compiled, false, err
	}
	key := CacheKey(model.Source(), rawInstructions, opts)
	if compiled, ok, err := cache.Get(ctx, key, opts); err == nil && ok {
		return compiled, true, nil
	}
	compiled, err := Compile(model, instructions, opts)
	if err != nil {
		return nil, false, err
	}
	if err := cache.Put(ctx, key, compiled); err != nil {
		return nil, false, err
	}
	return compiled, false, nil
}
