package schema

import (
	"encoding/json"
	"slices"
)

type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeNull    Type = "null"
)

func (t Type) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeNull:
		return true
	}
	return false
}

type NodeKind string

const (
	KindObjectNode    NodeKind = "object"
	KindArrayNode     NodeKind = "array"
	KindScalarNode    NodeKind = "scalar"
	KindEnumNode      NodeKind = "enum"
	KindReferenceNode NodeKind = "reference"
)

// Keyword is a schema keyword the model does not interpret. It is carried
// through compilation verbatim.
type Keyword struct {
	Name  string
	Value json.RawMessage
}

// Node is one schema node. Nodes reachable from a published snapshot are
// never mutated; rewrites copy the nodes along the changed path.
type Node struct {
	Ref                  string
	Types                []Type
	Title                string
	Description          string
	Properties           *Properties
	Items                *Node
	Enum                 []any
	Required             []string
	AdditionalProperties *bool
	Format               string
	Pattern              string
	MinLength            *int
	MaxLength            *int
	Minimum              *float64
	Maximum              *float64
	MinItems             *int
	MaxItems             *int
	Extra                []Keyword
}

func (n *Node) Kind() NodeKind {
	switch {
	case n.Ref != "":
		return KindReferenceNode
	case n.Enum != nil:
		return KindEnumNode
	case n.Properties != nil || n.HasType(TypeObject):
		return KindObjectNode
	case n.Items != nil || n.HasType(TypeArray):
		return KindArrayNode
	default:
		return KindScalarNode
	}
}

func (n *Node) HasType(t Type) bool {
	return slices.Contains(n.Types, t)
}

func (n *Node) Nullable() bool {
	return n.HasType(TypeNull)
}

func (n *Node) IsRequired(name string) bool {
	return slices.Contains(n.Required, name)
}

// Property returns the named child of an object node.
func (n *Node) Property(name string) (*Node, bool) {
	if n == nil || n.Properties == nil {
		return nil, false
	}
	return n.Properties.Get(name)
}

// shallowCopy copies n and its slices. Child nodes are shared.
func (n *Node) shallowCopy() *Node {
	cp := *n
	cp.Types = slices.Clone(n.Types)
	cp.Enum = slices.Clone(n.Enum)
	cp.Required = slices.Clone(n.Required)
	cp.Extra = slices.Clone(n.Extra)
	if n.Properties != nil {
		cp.Properties = n.Properties.shallowCopy()
	}
	return &cp
}

// Clone returns an independent deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := n.shallowCopy()
	if n.Properties != nil {
		cp.Properties = n.Properties.Clone()
	}
	cp.Items = n.Items.Clone()
	cp.Enum = cloneLiterals(n.Enum)
	for i, kw := range cp.Extra {
		cp.Extra[i].Value = slices.Clone(kw.Value)
	}
	cp.MinLength = clonePtr(n.MinLength)
	cp.MaxLength = clonePtr(n.MaxLength)
	cp.Minimum = clonePtr(n.Minimum)
	cp.Maximum = clonePtr(n.Maximum)
	cp.MinItems = clonePtr(n.MinItems)
	cp.MaxItems = clonePtr(n.MaxItems)
	cp.AdditionalProperties = clonePtr(n.AdditionalProperties)
	return cp
}

// Walk visits n and every descendant in document order. The path uses the
// dot notation instructions use, with [] marking array items.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	n.walk("", fn)
}

func (n *Node) walk(path string, fn func(string, *Node) bool) {
	if n == nil || !fn(path, n) {
		return
	}
	if n.Properties != nil {
		for _, name := range n.Properties.Keys() {
			child, _ := n.Properties.Get(name)
			child.walk(joinPath(path, name), fn)
		}
	}
	if n.Items != nil {
		n.Items.walk(path+"[]", fn)
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLiterals(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = cloneLiteral(v)
	}
	return out
}

func cloneLiteral(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneLiteral(val)
		}
		return m
	case []any:
		return cloneLiterals(t)
	default:
		return v
	}
}

// Properties is an insertion-ordered set of named child nodes.
type Properties struct {
	keys  []string
	nodes map[string]*Node
}

func NewProperties() *Properties {
	return &Properties{nodes: map[string]*Node{}}
}

func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

func (p *Properties) Get(name string) (*Node, bool) {
	if p == nil {
		return nil, false
	}
	n, ok := p.nodes[name]
	return n, ok
}

// Set replaces an existing entry in place or appends a new one.
func (p *Properties) Set(name string, n *Node) {
	if _, ok := p.nodes[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.nodes[name] = n
}

func (p *Properties) Delete(name string) bool {
	if _, ok := p.nodes[name]; !ok {
		return false
	}
	delete(p.nodes, name)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == name })
	return true
}

func (p *Properties) shallowCopy() *Properties {
	cp := &Properties{keys: slices.Clone(p.keys), nodes: make(map[string]*Node, len(p.nodes))}
	for k, v := range p.nodes {
		cp.nodes[k] = v
	}
	return cp
}

func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	cp := &Properties{keys: slices.Clone(p.keys), nodes: make(map[string]*Node, len(p.nodes))}
	for k, v := range p.nodes {
		cp.nodes[k] = v.Clone()
	}
	return cp
}
