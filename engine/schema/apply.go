package schema

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Applier rewrites a resolved schema tree one instruction at a time. Every
// step returns a new snapshot; the input tree is never modified.
type Applier struct {
	resolver *Resolver
}

// NewApplier returns an applier that resolves add_field references with r.
func NewApplier(r *Resolver) *Applier {
	if r == nil {
		r = NewResolver(nil)
	}
	return &Applier{resolver: r}
}

func (a *Applier) Apply(root *Node, instructions []Instruction) (*Node, error) {
	if root == nil {
		return nil, newError(KindInvalidDocument, "", "schema root is empty")
	}
	current := root
	allowList := includeAllowList(instructions)
	included := false
	for idx, ins := range instructions {
		if err := ins.Validate(); err != nil {
			return nil, err
		}
		if ins.Action == ActionInclude && !included {
			next, err := a.pruneTopLevel(current, allowList)
			if err != nil {
				return nil, err
			}
			current = next
			included = true
		}
		next, err := a.applyOne(current, ins)
		if err != nil {
			return nil, wrapInstruction(err, idx, ins)
		}
		current = next
	}
	return current, nil
}

func wrapInstruction(err error, idx int, ins Instruction) error {
	var se *Error
	if !errors.As(err, &se) {
		return err
	}
	out := *se
	if out.Path == "" {
		out.Path = ins.Path
	}
	out.Message = fmt.Sprintf("instruction %d (%s): %s", idx+1, ins.Action, se.Message)
	return &out
}

func (a *Applier) applyOne(root *Node, ins Instruction) (*Node, error) {
	segs, err := parsePath(ins.Path)
	if err != nil {
		return nil, err
	}
	switch ins.Action {
	case ActionInclude:
		_, err := lookup(root, segs, ins.Path)
		return root, err
	case ActionExclude:
		return a.exclude(root, segs, ins)
	case ActionOverrideDescription:
		return modify(root, segs, ins.Path, func(n *Node) (*Node, error) {
			cp := n.shallowCopy()
			if ins.Append && cp.Description != "" {
				cp.Description += "\n" + ins.Description
			} else {
				cp.Description = ins.Description
			}
			return cp, nil
		})
	case ActionOverrideEnum:
		return modify(root, segs, ins.Path, func(n *Node) (*Node, error) {
			return overrideEnum(n, ins)
		})
	case ActionAddField:
		return a.addField(root, segs, ins)
	}
	return nil, newError(KindInvalidInstruction, ins.Path, "unknown action %q", ins.Action)
}

func (a *Applier) exclude(root *Node, segs []segment, ins Instruction) (*Node, error) {
	name := segs[len(segs)-1].name
	return modify(root, segs[:len(segs)-1], ins.Path, func(parent *Node) (*Node, error) {
		return intoObject(parent, ins.Path, func(obj *Node) (*Node, error) {
			if _, ok := obj.Properties.Get(name); !ok {
				return nil, newError(KindUnknownPath, ins.Path, "property %q not found", name)
			}
			cp := obj.shallowCopy()
			cp.Properties.Delete(name)
			cp.Required = removeName(cp.Required, name)
			return cp, nil
		})
	})
}

func (a *Applier) addField(root *Node, segs []segment, ins Instruction) (*Node, error) {
	name := segs[len(segs)-1].name
	field, err := a.resolver.Resolve(ins.Field)
	if err != nil {
		return nil, err
	}
	return modify(root, segs[:len(segs)-1], ins.Path, func(parent *Node) (*Node, error) {
		return intoObject(parent, ins.Path, func(obj *Node) (*Node, error) {
			if _, ok := obj.Properties.Get(name); ok {
				return nil, newError(KindPathConflict, ins.Path, "property %q already exists", name)
			}
			cp := obj.shallowCopy()
			cp.Properties.Set(name, field)
			if ins.Required && !cp.IsRequired(name) {
				cp.Required = append(cp.Required, name)
			}
			return cp, nil
		})
	})
}

func (a *Applier) pruneTopLevel(root *Node, keep []string) (*Node, error) {
	return intoObject(root, "", func(obj *Node) (*Node, error) {
		cp := obj.shallowCopy()
		for _, name := range obj.Properties.Keys() {
			if !slices.Contains(keep, name) {
				cp.Properties.Delete(name)
				cp.Required = removeName(cp.Required, name)
			}
		}
		return cp, nil
	})
}

func includeAllowList(instructions []Instruction) []string {
	var names []string
	for _, ins := range instructions {
		if ins.Action != ActionInclude {
			continue
		}
		segs, err := parsePath(ins.Path)
		if err != nil {
			continue
		}
		if !slices.Contains(names, segs[0].name) {
			names = append(names, segs[0].name)
		}
	}
	return names
}

func overrideEnum(n *Node, ins Instruction) (*Node, error) {
	if n.Kind() == KindArrayNode && n.Items != nil && enumCapable(n.Items) {
		items, err := overrideEnum(n.Items, Instruction{Path: ins.Path + "[]", Action: ins.Action, Enum: ins.Enum})
		if err != nil {
			return nil, err
		}
		cp := n.shallowCopy()
		cp.Items = items
		if len(ins.Mappings) > 0 {
			cp.Description = appendLine(cp.Description, mappingsDescription(ins.Mappings))
		}
		return cp, nil
	}
	if !enumCapable(n) {
		return nil, newError(KindEnumOverrideTypeMismatch, ins.Path, "node of kind %s with types %v cannot carry an enum", n.Kind(), n.Types)
	}
	values := cloneLiterals(ins.Enum)
	if len(ins.Mappings) > 0 && n.Nullable() && !slices.Contains(values, any(nil)) {
		values = append(values, nil)
	}
	for _, v := range values {
		if !literalConforms(v, n.Types) {
			return nil, newError(KindEnumOverrideTypeMismatch, ins.Path, "literal %v does not conform to types %v", v, n.Types)
		}
	}
	cp := n.shallowCopy()
	cp.Enum = values
	if len(ins.Mappings) > 0 {
		cp.Description = appendLine(cp.Description, mappingsDescription(ins.Mappings))
	}
	return cp, nil
}

func appendLine(desc, line string) string {
	return desc + "\n" + line
}

// enumCapable reports whether n is a scalar node that can carry literals.
func enumCapable(n *Node) bool {
	if n.Properties != nil || n.Items != nil {
		return false
	}
	return !n.HasType(TypeObject) && !n.HasType(TypeArray)
}

func literalConforms(v any, types []Type) bool {
	if len(types) == 0 {
		switch v.(type) {
		case nil, string, float64, bool:
			return true
		}
		return false
	}
	switch t := v.(type) {
	case nil:
		return slices.Contains(types, TypeNull)
	case string:
		return slices.Contains(types, TypeString)
	case bool:
		return slices.Contains(types, TypeBoolean)
	case float64:
		if slices.Contains(types, TypeNumber) {
			return true
		}
		return slices.Contains(types, TypeInteger) && t == math.Trunc(t)
	case int:
		return slices.Contains(types, TypeNumber) || slices.Contains(types, TypeInteger)
	}
	return false
}

func removeName(names []string, name string) []string {
	return slices.DeleteFunc(names, func(s string) bool { return s == name })
}

// modify rebuilds the nodes along segs and applies fn at the end of the
// path. Array nodes between segments are descended implicitly.
func modify(n *Node, segs []segment, path string, fn func(*Node) (*Node, error)) (*Node, error) {
	if len(segs) == 0 {
		return fn(n)
	}
	seg := segs[0]
	return intoObject(n, path, func(obj *Node) (*Node, error) {
		child, ok := obj.Properties.Get(seg.name)
		if !ok {
			return nil, newError(KindUnknownPath, path, "property %q not found", seg.name)
		}
		var updated *Node
		if seg.items {
			if child.Items == nil {
				return nil, newError(KindUnknownPath, path, "property %q is not an array", seg.name)
			}
			items, err := modify(child.Items, segs[1:], path, fn)
			if err != nil {
				return nil, err
			}
			updated = child.shallowCopy()
			updated.Items = items
		} else {
			var err error
			updated, err = modify(child, segs[1:], path, fn)
			if err != nil {
				return nil, err
			}
		}
		cp := obj.shallowCopy()
		cp.Properties.Set(seg.name, updated)
		return cp, nil
	})
}

func intoObject(n *Node, path string, fn func(*Node) (*Node, error)) (*Node, error) {
	if n.Properties != nil {
		return fn(n)
	}
	if n.Items != nil {
		items, err := intoObject(n.Items, path, fn)
		if err != nil {
			return nil, err
		}
		cp := n.shallowCopy()
		cp.Items = items
		return cp, nil
	}
	return nil, newError(KindUnknownPath, path, "node has no properties")
}

func lookup(root *Node, segs []segment, path string) (*Node, error) {
	n := root
	for _, seg := range segs {
		for n.Properties == nil && n.Items != nil {
			n = n.Items
		}
		child, ok := n.Property(seg.name)
		if !ok {
			return nil, newError(KindUnknownPath, path, "property %q not found", seg.name)
		}
		n = child
		if seg.items {
			if n.Items == nil {
				return nil, newError(KindUnknownPath, path, "property %q is not an array", seg.name)
			}
			n = n.Items
		}
	}
	return n, nil
}

// Lookup returns the node addressed by an instruction-style path.
func Lookup(root *Node, path string) (*Node, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	return lookup(root, segs, path)
}
