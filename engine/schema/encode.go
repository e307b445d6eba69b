package schema

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/pretty"
)

var prettyOptions = &pretty.Options{Width: 80, Prefix: "", Indent: "  ", SortKeys: false}

// Encode writes n as canonical JSON: keywords in a fixed order, properties
// in insertion order, indented with two spaces.
func Encode(n *Node, schemaURI string) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeNode(&buf, n, schemaURI); err != nil {
		return nil, err
	}
	out := pretty.PrettyOptions(buf.Bytes(), prettyOptions)
	return out, nil
}

type objectWriter struct {
	buf   *bytes.Buffer
	first bool
	err   error
}

func (w *objectWriter) key(name string) {
	if !w.first {
		w.buf.WriteByte(',')
	}
	w.first = false
	raw, _ := json.Marshal(name)
	w.buf.Write(raw)
	w.buf.WriteByte(':')
}

func (w *objectWriter) value(name string, v any) {
	if w.err != nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		w.err = err
		return
	}
	w.key(name)
	w.buf.Write(raw)
}

func encodeNode(buf *bytes.Buffer, n *Node, schemaURI string) error {
	w := &objectWriter{buf: buf, first: true}
	buf.WriteByte('{')
	if schemaURI != "" {
		w.value("$schema", schemaURI)
	}
	if n.Ref != "" {
		w.value("$ref", n.Ref)
	}
	switch len(n.Types) {
	case 0:
	case 1:
		w.value("type", n.Types[0])
	default:
		w.value("type", n.Types)
	}
	if n.Title != "" {
		w.value("title", n.Title)
	}
	if n.Description != "" {
		w.value("description", n.Description)
	}
	if n.Enum != nil {
		w.value("enum", n.Enum)
	}
	if n.Format != "" {
		w.value("format", n.Format)
	}
	if n.Pattern != "" {
		w.value("pattern", n.Pattern)
	}
	if n.MinLength != nil {
		w.value("minLength", *n.MinLength)
	}
	if n.MaxLength != nil {
		w.value("maxLength", *n.MaxLength)
	}
	if n.Minimum != nil {
		w.value("minimum", *n.Minimum)
	}
	if n.Maximum != nil {
		w.value("maximum", *n.Maximum)
	}
	if n.MinItems != nil {
		w.value("minItems", *n.MinItems)
	}
	if n.MaxItems != nil {
		w.value("maxItems", *n.MaxItems)
	}
	if w.err != nil {
		return w.err
	}
	if n.Properties != nil {
		w.key("properties")
		buf.WriteByte('{')
		for i, name := range n.Properties.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			raw, _ := json.Marshal(name)
			buf.Write(raw)
			buf.WriteByte(':')
			child, _ := n.Properties.Get(name)
			if err := encodeNode(buf, child, ""); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	if n.Required != nil {
		w.value("required", n.Required)
	}
	if n.AdditionalProperties != nil {
		w.value("additionalProperties", *n.AdditionalProperties)
	}
	if n.Items != nil {
		w.key("items")
		if err := encodeNode(buf, n.Items, ""); err != nil {
			return err
		}
	}
	for _, kw := range n.Extra {
		w.key(kw.Name)
		var compact bytes.Buffer
		if err := json.Compact(&compact, kw.Value); err != nil {
			return err
		}
		buf.Write(compact.Bytes())
	}
	buf.WriteByte('}')
	return w.err
}
