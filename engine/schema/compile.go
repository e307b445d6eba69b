package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const DefaultResponseName = "product_response"

type CompileOptions struct {
	// Strict marks every property required and forbids additional
	// properties on every object. Nullable types still express absence.
	Strict        bool
	Name          string
	MaxProperties int
	MaxDepth      int
}

func DefaultCompileOptions() CompileOptions {
	return CompileOptions{
		Strict:        true,
		Name:          DefaultResponseName,
		MaxProperties: 100,
		MaxDepth:      5,
	}
}

// Compiled is a self-contained, reference-free schema artifact. It is
// immutable and safe for concurrent use.
type Compiled struct {
	root        *Node
	data        []byte
	fingerprint string
	stats       Stats
	name        string
	strict      bool
	validator   *Validator
}

// Compile applies instructions to the model's base snapshot and produces
// the canonical artifact. Compiling the same inputs yields identical bytes.
func Compile(model *Model, instructions []Instruction, opts CompileOptions) (*Compiled, error) {
	if opts.Name == "" {
		opts.Name = DefaultResponseName
	}
	tree, err := NewApplier(model.Resolver()).Apply(model.Root(), instructions)
	if err != nil {
		return nil, err
	}
	if err := checkNoReferences(tree); err != nil {
		return nil, err
	}
	if err := checkRequired(tree); err != nil {
		return nil, err
	}
	out := tree.Clone()
	if opts.Strict {
		enforceStrict(out)
	}
	return newCompiled(out, model.Document().SchemaURI, opts)
}

func newCompiled(root *Node, schemaURI string, opts CompileOptions) (*Compiled, error) {
	data, err := Encode(root, schemaURI)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compiled schema: %w", err)
	}
	validator, err := NewValidator(data)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return &Compiled{
		root:        root,
		data:        data,
		fingerprint: hex.EncodeToString(sum[:]),
		stats:       ComputeStats(root, opts.MaxProperties, opts.MaxDepth),
		name:        opts.Name,
		strict:      opts.Strict,
		validator:   validator,
	}, nil
}

// LoadCompiled reads an artifact written by WriteFile.
func LoadCompiled(data []byte, opts CompileOptions) (*Compiled, error) {
	if opts.Name == "" {
		opts.Name = DefaultResponseName
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if doc.Defs.Len() > 0 {
		return nil, newError(KindUnresolvedReference, "#/$defs", "compiled artifact must not carry definitions")
	}
	if err := checkNoReferences(doc.Root); err != nil {
		return nil, err
	}
	if err := checkRequired(doc.Root); err != nil {
		return nil, err
	}
	opts.Strict = isStrict(doc.Root)
	return newCompiled(doc.Root, doc.SchemaURI, opts)
}

func LoadCompiledFile(path string, opts CompileOptions) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled schema %s: %w", path, err)
	}
	return LoadCompiled(data, opts)
}

// Root returns the compiled tree. Callers must not mutate it.
func (c *Compiled) Root() *Node {
	return c.root
}

func (c *Compiled) JSON() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

func (c *Compiled) Fingerprint() string {
	return c.fingerprint
}

func (c *Compiled) Stats() Stats {
	return c.stats
}

// Name is the response format name sent to generation providers.
func (c *Compiled) Name() string {
	return c.name
}

func (c *Compiled) Strict() bool {
	return c.strict
}

// Validate checks a decoded JSON value against the artifact.
func (c *Compiled) Validate(value any) Issues {
	return c.validator.Validate(value)
}

// WriteFile writes the artifact atomically.
func (c *Compiled) WriteFile(path string) error {
	return writeFileAtomic(path, c.data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func checkNoReferences(root *Node) error {
	var err error
	root.Walk(func(path string, n *Node) bool {
		if n.Ref != "" {
			err = newError(KindUnresolvedReference, displayPath(path), "reference %s remains after resolution", n.Ref)
			return false
		}
		return err == nil
	})
	return err
}

func checkRequired(root *Node) error {
	var err error
	root.Walk(func(path string, n *Node) bool {
		if err != nil {
			return false
		}
		for _, name := range n.Required {
			if _, ok := n.Property(name); !ok {
				err = newError(KindUndefinedRequired, displayPath(path), "required property %q is not defined", name)
				return false
			}
		}
		return true
	})
	return err
}

func enforceStrict(n *Node) {
	if n == nil {
		return
	}
	if n.Properties != nil {
		n.Required = append([]string{}, n.Properties.Keys()...)
		f := false
		n.AdditionalProperties = &f
		for _, name := range n.Properties.Keys() {
			child, _ := n.Properties.Get(name)
			enforceStrict(child)
		}
	}
	enforceStrict(n.Items)
}

func isStrict(root *Node) bool {
	strict := true
	root.Walk(func(_ string, n *Node) bool {
		if n.Properties == nil {
			return true
		}
		if n.AdditionalProperties == nil || *n.AdditionalProperties || len(n.Required) != n.Properties.Len() {
			strict = false
		}
		return strict
	})
	return strict
}
