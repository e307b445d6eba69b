package schema

import (
	"slices"
	"strings"
	"sync"
)

// Resolver inlines $ref nodes against a fixed set of named definitions.
// Each definition is resolved once; every reference site receives its own
// copy of the canonical result.
type Resolver struct {
	mu         sync.Mutex
	defs       *Properties
	canonical  map[string]*Node
	inProgress []string
}

func NewResolver(defs *Properties) *Resolver {
	if defs == nil {
		defs = NewProperties()
	}
	return &Resolver{defs: defs, canonical: map[string]*Node{}}
}

// Resolve returns a reference-free copy of n.
func (r *Resolver) Resolve(n *Node) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inProgress = r.inProgress[:0]
	return r.resolveNode(n)
}

// Definitions returns the definition names in document order.
func (r *Resolver) Definitions() []string {
	return r.defs.Keys()
}

func (r *Resolver) resolveNode(n *Node) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Ref != "" {
		return r.resolveReference(n)
	}
	out := n.shallowCopy()
	if n.Properties != nil {
		for _, name := range n.Properties.Keys() {
			child, _ := n.Properties.Get(name)
			resolved, err := r.resolveNode(child)
			if err != nil {
				return nil, err
			}
			out.Properties.Set(name, resolved)
		}
	}
	items, err := r.resolveNode(n.Items)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return out, nil
}

func (r *Resolver) resolveReference(n *Node) (*Node, error) {
	name, err := definitionName(n.Ref)
	if err != nil {
		return nil, err
	}
	canon, err := r.resolveDefinition(name)
	if err != nil {
		return nil, err
	}
	out := canon.Clone()
	siblings := n.shallowCopy()
	siblings.Ref = ""
	resolvedSiblings, err := r.resolveNode(siblings)
	if err != nil {
		return nil, err
	}
	overlay(out, resolvedSiblings)
	return out, nil
}

func (r *Resolver) resolveDefinition(name string) (*Node, error) {
	if canon, ok := r.canonical[name]; ok {
		return canon, nil
	}
	if idx := slices.Index(r.inProgress, name); idx >= 0 {
		chain := append(slices.Clone(r.inProgress[idx:]), name)
		return nil, newError(KindCyclicReference, "#/$defs/"+name, "%s", strings.Join(chain, " -> "))
	}
	def, ok := r.defs.Get(name)
	if !ok {
		return nil, newError(KindUnresolvedReference, "#/$defs/"+name, "definition %q not found", name)
	}
	r.inProgress = append(r.inProgress, name)
	resolved, err := r.resolveNode(def)
	r.inProgress = r.inProgress[:len(r.inProgress)-1]
	if err != nil {
		return nil, err
	}
	r.canonical[name] = resolved
	return resolved, nil
}

func definitionName(ref string) (string, error) {
	for _, prefix := range []string{"#/" + defsKeyword + "/", "#/" + definitionsKeyword + "/"} {
		if name, ok := strings.CutPrefix(ref, prefix); ok && name != "" && !strings.Contains(name, "/") {
			return unescapePointer(name), nil
		}
	}
	return "", newError(KindUnresolvedReference, ref, "unsupported reference format")
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

// overlay copies every keyword set on src over dst. Sibling keywords at a
// reference site win over the referenced definition.
func overlay(dst, src *Node) {
	if src.Types != nil {
		dst.Types = src.Types
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.Properties != nil {
		dst.Properties = src.Properties
	}
	if src.Items != nil {
		dst.Items = src.Items
	}
	if src.Enum != nil {
		dst.Enum = src.Enum
	}
	if src.Required != nil {
		dst.Required = src.Required
	}
	if src.AdditionalProperties != nil {
		dst.AdditionalProperties = src.AdditionalProperties
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.Pattern != "" {
		dst.Pattern = src.Pattern
	}
	if src.MinLength != nil {
		dst.MinLength = src.MinLength
	}
	if src.MaxLength != nil {
		dst.MaxLength = src.MaxLength
	}
	if src.Minimum != nil {
		dst.Minimum = src.Minimum
	}
	if src.Maximum != nil {
		dst.Maximum = src.Maximum
	}
	if src.MinItems != nil {
		dst.MinItems = src.MinItems
	}
	if src.MaxItems != nil {
		dst.MaxItems = src.MaxItems
	}
	for _, kw := range src.Extra {
		idx := slices.IndexFunc(dst.Extra, func(k Keyword) bool { return k.Name == kw.Name })
		if idx >= 0 {
			dst.Extra[idx] = kw
		} else {
			dst.Extra = append(dst.Extra, kw)
		}
	}
}
