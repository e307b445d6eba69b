package schema

import (
	"fmt"
	"regexp"
	"strings"
)

type Action string

const (
	ActionInclude             Action = "include"
	ActionExclude             Action = "exclude"
	ActionOverrideDescription Action = "override_description"
	ActionOverrideEnum        Action = "override_enum"
	ActionAddField            Action = "add_field"
)

func (a Action) valid() bool {
	switch a {
	case ActionInclude, ActionExclude, ActionOverrideDescription, ActionOverrideEnum, ActionAddField:
		return true
	}
	return false
}

// Mapping pairs a source label with the literal stored in the enum.
type Mapping struct {
	Label string
	Value string
}

// Instruction is one directive applied to the base schema.
type Instruction struct {
	Path        string
	Action      Action
	Description string
	Append      bool
	Enum        []any
	Mappings    []Mapping
	Field       *Node
	Required    bool
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %s", i.Action, i.Path)
}

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_$@-]+(\[\])?$`)

type segment struct {
	name  string
	items bool
}

func (s segment) String() string {
	if s.items {
		return s.name + "[]"
	}
	return s.name
}

func parsePath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, newError(KindInvalidInstruction, path, "path is empty")
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if !segmentPattern.MatchString(p) {
			return nil, newError(KindInvalidInstruction, path, "invalid path segment %q", p)
		}
		name, items := strings.CutSuffix(p, "[]")
		segs = append(segs, segment{name: name, items: items})
	}
	return segs, nil
}

// Validate checks the directive is well formed without consulting a schema.
func (i Instruction) Validate() error {
	if !i.Action.valid() {
		return newError(KindInvalidInstruction, i.Path, "unknown action %q", i.Action)
	}
	segs, err := parsePath(i.Path)
	if err != nil {
		return err
	}
	last := segs[len(segs)-1]
	switch i.Action {
	case ActionExclude, ActionAddField, ActionInclude:
		if last.items {
			return newError(KindInvalidInstruction, i.Path, "%s must name a property, not array items", i.Action)
		}
	}
	switch i.Action {
	case ActionOverrideEnum:
		if i.Enum == nil && len(i.Mappings) == 0 {
			return newError(KindInvalidInstruction, i.Path, "override_enum requires enum values")
		}
	case ActionAddField:
		if i.Field == nil {
			return newError(KindInvalidInstruction, i.Path, "add_field requires a field definition")
		}
	}
	return nil
}

func mappingsDescription(mappings []Mapping) string {
	parts := make([]string, len(mappings))
	for i, m := range mappings {
		parts[i] = fmt.Sprintf("'%s' => '%s'", m.Label, m.Value)
	}
	return "Mappings: " + strings.Join(parts, ", ")
}
