package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type directiveFields struct {
	Path        string `yaml:"path"`
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
	Append      bool   `yaml:"append"`
	Required    bool   `yaml:"required"`
}

// ParseInstructions reads an instruction document. Two layouts are accepted:
// an ordered list of directives under "instructions", and the legacy map
// keyed by dotted path where false excludes a field and a list or map of
// labels becomes an enum with a mappings note.
func ParseInstructions(data []byte) ([]Instruction, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Kind: KindInvalidInstruction, Message: "invalid instruction document", Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := resolveAlias(doc.Content[0])
	switch root.Kind {
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil, nil
		}
	case yaml.SequenceNode:
		return parseDirectiveList(root)
	case yaml.MappingNode:
		if len(root.Content) == 2 && root.Content[0].Value == "instructions" {
			list := resolveAlias(root.Content[1])
			if list.Kind == yaml.ScalarNode && list.Tag == "!!null" {
				return nil, nil
			}
			if list.Kind != yaml.SequenceNode {
				return nil, newError(KindInvalidInstruction, "", "instructions must be a list (line %d)", list.Line)
			}
			return parseDirectiveList(list)
		}
		return parseLegacyMap(root)
	}
	return nil, newError(KindInvalidInstruction, "", "unsupported instruction document (line %d)", root.Line)
}

func LoadInstructionsFile(path string) ([]Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instructions %s: %w", path, err)
	}
	return ParseInstructions(data)
}

func parseDirectiveList(list *yaml.Node) ([]Instruction, error) {
	out := make([]Instruction, 0, len(list.Content))
	for _, item := range list.Content {
		ins, err := parseDirective(resolveAlias(item))
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}

func parseDirective(n *yaml.Node) (Instruction, error) {
	if n.Kind != yaml.MappingNode {
		return Instruction{}, newError(KindInvalidInstruction, "", "directive must be a map (line %d)", n.Line)
	}
	var fields directiveFields
	if err := n.Decode(&fields); err != nil {
		return Instruction{}, &Error{Kind: KindInvalidInstruction, Message: fmt.Sprintf("line %d", n.Line), Err: err}
	}
	ins := Instruction{
		Path:        fields.Path,
		Action:      Action(fields.Action),
		Description: fields.Description,
		Append:      fields.Append,
		Required:    fields.Required,
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i].Value, resolveAlias(n.Content[i+1])
		switch key {
		case "enum":
			if value.Kind != yaml.SequenceNode {
				return Instruction{}, newError(KindInvalidInstruction, ins.Path, "enum must be a list")
			}
			ins.Enum = make([]any, 0, len(value.Content))
			for _, v := range value.Content {
				lit, err := yamlValue(resolveAlias(v))
				if err != nil {
					return Instruction{}, err
				}
				ins.Enum = append(ins.Enum, lit)
			}
		case "field":
			raw, err := yamlJSON(value)
			if err != nil {
				return Instruction{}, err
			}
			field, err := ParseNode(raw)
			if err != nil {
				return Instruction{}, &Error{Kind: KindInvalidInstruction, Path: ins.Path, Message: "invalid field", Err: err}
			}
			ins.Field = field
		}
	}
	if err := ins.Validate(); err != nil {
		return Instruction{}, err
	}
	return ins, nil
}

func parseLegacyMap(root *yaml.Node) ([]Instruction, error) {
	out := make([]Instruction, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		path, value := root.Content[i].Value, resolveAlias(root.Content[i+1])
		switch value.Kind {
		case yaml.ScalarNode:
			if value.Tag != "!!bool" {
				return nil, newError(KindInvalidInstruction, path, "unsupported value %q", value.Value)
			}
			if b, _ := strconv.ParseBool(value.Value); !b {
				out = append(out, Instruction{Path: path, Action: ActionExclude})
			}
			continue
		case yaml.MappingNode:
			mappings, err := mappingPairs(path, value)
			if err != nil {
				return nil, err
			}
			out = append(out, mappingInstruction(path, mappings))
		case yaml.SequenceNode:
			var mappings []Mapping
			for _, item := range value.Content {
				item = resolveAlias(item)
				switch item.Kind {
				case yaml.ScalarNode:
					mappings = appendMapping(mappings, Mapping{Label: item.Value, Value: item.Value})
				case yaml.MappingNode:
					pairs, err := mappingPairs(path, item)
					if err != nil {
						return nil, err
					}
					for _, m := range pairs {
						mappings = appendMapping(mappings, m)
					}
				default:
					return nil, newError(KindInvalidInstruction, path, "unsupported list entry (line %d)", item.Line)
				}
			}
			out = append(out, mappingInstruction(path, mappings))
		default:
			return nil, newError(KindInvalidInstruction, path, "unsupported value (line %d)", value.Line)
		}
	}
	for _, ins := range out {
		if err := ins.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mappingPairs(path string, n *yaml.Node) ([]Mapping, error) {
	var out []Mapping
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := resolveAlias(n.Content[i+1])
		if v.Kind != yaml.ScalarNode {
			return nil, newError(KindInvalidInstruction, path, "mapping %q must map to a scalar", n.Content[i].Value)
		}
		out = appendMapping(out, Mapping{Label: n.Content[i].Value, Value: v.Value})
	}
	return out, nil
}

// appendMapping keeps the first position of a label and the last value.
func appendMapping(list []Mapping, m Mapping) []Mapping {
	for i := range list {
		if list[i].Label == m.Label {
			list[i].Value = m.Value
			return list
		}
	}
	return append(list, m)
}

func mappingInstruction(path string, mappings []Mapping) Instruction {
	enum := make([]any, len(mappings))
	for i, m := range mappings {
		enum[i] = m.Value
	}
	return Instruction{Path: path, Action: ActionOverrideEnum, Enum: enum, Mappings: mappings}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return nil, nil
		case "!!bool":
			return strconv.ParseBool(n.Value)
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, &Error{Kind: KindInvalidInstruction, Message: fmt.Sprintf("invalid number at line %d", n.Line), Err: err}
			}
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, newError(KindInvalidInstruction, "", "non-finite number at line %d", n.Line)
			}
			return f, nil
		default:
			return n.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(resolveAlias(c))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(resolveAlias(n.Content[i+1]))
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	}
	return nil, newError(KindInvalidInstruction, "", "unsupported YAML node at line %d", n.Line)
}

// yamlJSON encodes a YAML node as JSON keeping mapping key order.
func yamlJSON(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeYAMLJSON(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLJSON(buf *bytes.Buffer, n *yaml.Node) error {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(n.Content[i].Value)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		v, err := yamlValue(n)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(raw)
	default:
		return newError(KindInvalidInstruction, "", "unsupported YAML node at line %d", n.Line)
	}
	return nil
}
