package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
)

const (
	sourceFile  = "source.txt"
	productFile = "product.json"
)

// Artifacts keeps interim files of a run under <dir>/<run id>/.
type Artifacts struct {
	root string
}

func NewArtifacts(dir, runID string) (*Artifacts, error) {
	root := filepath.Join(dir, "runs", runID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &Artifacts{root: root}, nil
}

func (a *Artifacts) Root() string {
	return a.root
}

// ItemDir names the directory of an item as <index>-<slug of id>.
func (a *Artifacts) ItemDir(item *Item) string {
	name := slug.Make(item.ID)
	if name == "" {
		name = "item"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return filepath.Join(a.root, fmt.Sprintf("%04d-%s", item.Index+1, name))
}

func (a *Artifacts) WriteSource(item *Item, text string) error {
	return a.write(item, sourceFile, []byte(text))
}

func (a *Artifacts) WriteProduct(item *Item, data []byte) error {
	return a.write(item, productFile, data)
}

func (a *Artifacts) write(item *Item, name string, data []byte) error {
	dir := a.ItemDir(item)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// Remove deletes the run directory.
func (a *Artifacts) Remove() error {
	return os.RemoveAll(a.root)
}
