package schema

import (
	"encoding/json"
	"math"

	"github.com/tidwall/gjson"
)

const (
	defsKeyword        = "$defs"
	definitionsKeyword = "definitions"
)

// Document is a parsed base schema: the root node plus its named definitions.
type Document struct {
	SchemaURI string
	ID        string
	Root      *Node
	Defs      *Properties
}

// Parse reads a schema document preserving the order of every object key.
func Parse(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, newError(KindInvalidDocument, "", "document is not valid JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, newError(KindInvalidDocument, "", "document root must be an object")
	}
	doc := &Document{Defs: NewProperties()}
	var parseErr error
	rootless := make([]gjson.Result, 0, 2)
	res.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "$schema":
			doc.SchemaURI = value.String()
		case "$id":
			doc.ID = value.String()
		case defsKeyword, definitionsKeyword:
			if !value.IsObject() {
				parseErr = newError(KindInvalidDocument, key.String(), "definitions must be an object")
				return false
			}
			value.ForEach(func(name, def gjson.Result) bool {
				n, err := parseNode(def, "#/"+key.String()+"/"+name.String())
				if err != nil {
					parseErr = err
					return false
				}
				doc.Defs.Set(name.String(), n)
				return true
			})
		default:
			rootless = append(rootless, key, value)
		}
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	root, err := parseKeywords(rootless, "")
	if err != nil {
		return nil, err
	}
	doc.Root = root
	return doc, nil
}

// ParseNode parses a single schema fragment, such as an add_field payload.
func ParseNode(data []byte) (*Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, newError(KindInvalidDocument, "", "fragment is not valid JSON")
	}
	return parseNode(gjson.ParseBytes(data), "")
}

func parseNode(value gjson.Result, at string) (*Node, error) {
	if !value.IsObject() {
		if value.Type == gjson.True {
			return &Node{}, nil
		}
		return nil, newError(KindInvalidDocument, at, "schema node must be an object")
	}
	pairs := make([]gjson.Result, 0, 16)
	value.ForEach(func(k, v gjson.Result) bool {
		pairs = append(pairs, k, v)
		return true
	})
	return parseKeywords(pairs, at)
}

// parseKeywords builds a node from alternating key/value results.
func parseKeywords(pairs []gjson.Result, at string) (*Node, error) {
	n := &Node{}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, value := pairs[i].String(), pairs[i+1]
		if err := setKeyword(n, key, value, at); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func setKeyword(n *Node, key string, value gjson.Result, at string) error {
	switch key {
	case "$ref":
		if value.Type != gjson.String {
			return newError(KindInvalidDocument, at, "$ref must be a string")
		}
		n.Ref = value.String()
	case "type":
		types, err := parseTypes(value, at)
		if err != nil {
			return err
		}
		n.Types = types
	case "title":
		n.Title = value.String()
	case "description":
		n.Description = value.String()
	case "format":
		n.Format = value.String()
	case "pattern":
		n.Pattern = value.String()
	case "properties":
		if !value.IsObject() {
			return newError(KindInvalidDocument, at, "properties must be an object")
		}
		props := NewProperties()
		var err error
		value.ForEach(func(name, child gjson.Result) bool {
			var c *Node
			c, err = parseNode(child, joinPath(at, name.String()))
			if err != nil {
				return false
			}
			props.Set(name.String(), c)
			return true
		})
		if err != nil {
			return err
		}
		n.Properties = props
	case "items":
		if !value.IsObject() {
			n.Extra = append(n.Extra, Keyword{Name: key, Value: json.RawMessage(value.Raw)})
			return nil
		}
		items, err := parseNode(value, at+"[]")
		if err != nil {
			return err
		}
		n.Items = items
	case "enum":
		if !value.IsArray() {
			return newError(KindInvalidDocument, at, "enum must be an array")
		}
		n.Enum = make([]any, 0)
		for _, v := range value.Array() {
			n.Enum = append(n.Enum, v.Value())
		}
	case "required":
		if !value.IsArray() {
			return newError(KindInvalidDocument, at, "required must be an array")
		}
		n.Required = make([]string, 0)
		for _, v := range value.Array() {
			if v.Type != gjson.String {
				return newError(KindInvalidDocument, at, "required entries must be strings")
			}
			n.Required = append(n.Required, v.String())
		}
	case "additionalProperties":
		if value.IsBool() {
			b := value.Bool()
			n.AdditionalProperties = &b
			return nil
		}
		n.Extra = append(n.Extra, Keyword{Name: key, Value: json.RawMessage(value.Raw)})
	case "minLength", "maxLength", "minItems", "maxItems":
		if value.Type != gjson.Number || value.Num != math.Trunc(value.Num) || value.Num < 0 {
			return newError(KindInvalidDocument, at, "%s must be a non-negative integer", key)
		}
		v := int(value.Int())
		switch key {
		case "minLength":
			n.MinLength = &v
		case "maxLength":
			n.MaxLength = &v
		case "minItems":
			n.MinItems = &v
		default:
			n.MaxItems = &v
		}
	case "minimum", "maximum":
		if value.Type != gjson.Number {
			return newError(KindInvalidDocument, at, "%s must be a number", key)
		}
		v := value.Num
		if key == "minimum" {
			n.Minimum = &v
		} else {
			n.Maximum = &v
		}
	default:
		n.Extra = append(n.Extra, Keyword{Name: key, Value: json.RawMessage(value.Raw)})
	}
	return nil
}

func parseTypes(value gjson.Result, at string) ([]Type, error) {
	var raw []gjson.Result
	switch {
	case value.Type == gjson.String:
		raw = []gjson.Result{value}
	case value.IsArray():
		raw = value.Array()
	default:
		return nil, newError(KindInvalidDocument, at, "type must be a string or an array")
	}
	types := make([]Type, 0, len(raw))
	for _, r := range raw {
		t := Type(r.String())
		if r.Type != gjson.String || !t.valid() {
			return nil, newError(KindInvalidDocument, at, "unknown type %s", r.Raw)
		}
		types = append(types, t)
	}
	return types, nil
}
