package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed data/product.schema.json
var defaultProductSchema []byte

// DefaultBaseSchema returns the bundled product schema document.
func DefaultBaseSchema() []byte {
	out := make([]byte, len(defaultProductSchema))
	copy(out, defaultProductSchema)
	return out
}

// Model is a loaded base schema with every reference resolved.
type Model struct {
	doc      *Document
	root     *Node
	resolver *Resolver
	source   []byte
	warnings []string
}

// Load parses, checks and resolves a base schema document.
func Load(data []byte) (*Model, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(doc.Defs)
	root, err := resolver.Resolve(doc.Root)
	if err != nil {
		return nil, err
	}
	if err := CheckWellFormed(data); err != nil {
		return nil, err
	}
	return &Model{
		doc:      doc,
		root:     root,
		resolver: resolver,
		source:   data,
		warnings: Lint(root),
	}, nil
}

func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read base schema %s: %w", path, err)
	}
	return Load(data)
}

// LoadSource loads the schema at path, or the bundled schema when path is empty.
func LoadSource(path string) (*Model, error) {
	if path == "" {
		return Load(DefaultBaseSchema())
	}
	return LoadFile(path)
}

// Root returns the resolved base snapshot. Callers must not mutate it.
func (m *Model) Root() *Node {
	return m.root
}

func (m *Model) Document() *Document {
	return m.doc
}

func (m *Model) Resolver() *Resolver {
	return m.resolver
}

func (m *Model) Source() []byte {
	return m.source
}

func (m *Model) Warnings() []string {
	return append([]string(nil), m.warnings...)
}

// CheckWellFormed rejects documents that do not compile as JSON Schema.
func CheckWellFormed(data []byte) error {
	_, err := NewValidator(data)
	return err
}

// listFields are product fields that always hold lists, whatever their
// declaration says.
var listFields = map[string]bool{
	"images":         true,
	"bundle_items":   true,
	"category_index": true,
}

// Lint reports structural inconsistencies that do not prevent compilation.
func Lint(root *Node) []string {
	var warnings []string
	root.Walk(func(path string, n *Node) bool {
		if n.Items != nil && len(n.Types) > 0 && !n.HasType(TypeArray) {
			warnings = append(warnings, fmt.Sprintf("%s: items declared but type %v does not include array", displayPath(path), n.Types))
		}
		if n.Items == nil && listFields[path[strings.LastIndex(path, ".")+1:]] && n.HasType(TypeObject) && !n.HasType(TypeArray) {
			warnings = append(warnings, fmt.Sprintf("%s: declared as object but holds a list of values", displayPath(path)))
		}
		if n.Properties != nil && len(n.Types) > 0 && !n.HasType(TypeObject) {
			warnings = append(warnings, fmt.Sprintf("%s: properties declared but type %v does not include object", displayPath(path), n.Types))
		}
		return true
	})
	return warnings
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
