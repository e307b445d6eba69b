package schema

import "fmt"

// Stats describes the size of a compiled schema.
type Stats struct {
	TotalProperties int      `json:"total_properties"`
	MaxDepth        int      `json:"max_depth"`
	Warnings        []string `json:"warnings,omitempty"`
}

// ComputeStats counts object properties and the deepest nesting level. The
// root object is level 1; every object or array below it adds one level.
// A limit of zero disables the matching warning.
func ComputeStats(root *Node, maxProperties, maxDepth int) Stats {
	var s Stats
	var visit func(n *Node, level int)
	visit = func(n *Node, level int) {
		if n == nil {
			return
		}
		if n.Properties != nil {
			s.TotalProperties += n.Properties.Len()
			s.MaxDepth = max(s.MaxDepth, level)
			for _, name := range n.Properties.Keys() {
				child, _ := n.Properties.Get(name)
				visit(child, level+1)
			}
			return
		}
		if n.Items != nil {
			visit(n.Items, level+1)
		}
	}
	visit(root, 1)
	if maxProperties > 0 && s.TotalProperties > maxProperties {
		s.Warnings = append(s.Warnings, fmt.Sprintf("total properties %d exceed %d", s.TotalProperties, maxProperties))
	}
	if maxDepth > 0 && s.MaxDepth > maxDepth {
		s.Warnings = append(s.Warnings, fmt.Sprintf("maximum nesting level %d exceeds %d", s.MaxDepth, maxDepth))
	}
	return s
}

func (s Stats) WithinLimits() bool {
	return len(s.Warnings) == 0
}
