package schema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// Issue codes.
const (
	CodeInvalidType = "invalid_type"
	CodeInvalidEnum = "invalid_enum"
	CodeRequired    = "required"
	CodeUnknownKey  = "unknown_key"
	CodeTooShort    = "too_short"
	CodeTooLong     = "too_long"
	CodeTooSmall    = "too_small"
	CodeTooBig      = "too_big"
	CodePattern     = "pattern"
	CodeConstraint  = "constraint"
)

// keywordCodes maps failing keywords to issue codes. Keywords missing here
// report CodeConstraint.
var keywordCodes = map[string]string{
	"minLength":        CodeTooShort,
	"minItems":         CodeTooShort,
	"minProperties":    CodeTooShort,
	"maxLength":        CodeTooLong,
	"maxItems":         CodeTooLong,
	"maxProperties":    CodeTooLong,
	"minimum":          CodeTooSmall,
	"exclusiveMinimum": CodeTooSmall,
	"maximum":          CodeTooBig,
	"exclusiveMaximum": CodeTooBig,
	"pattern":          CodePattern,
}

// aggregateKeywords summarize failures that are reported again, with a
// precise location, by the nested results.
var aggregateKeywords = map[string]bool{
	"properties":            true,
	"additionalProperties":  true,
	"patternProperties":     true,
	"items":                 true,
	"prefixItems":           true,
	"contains":              true,
	"allOf":                 true,
	"$ref":                  true,
	"dependentSchemas":      true,
	"unevaluatedProperties": true,
	"unevaluatedItems":      true,
}

// Issue is one structural mismatch. Path is a JSON Pointer.
type Issue struct {
	Path    string
	Code    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Code, displayPointer(i.Path), i.Message)
}

// Issues is a collection of structural mismatches that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	lim := min(len(iss), maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(b, "%s at %s", iss[i].Code, displayPointer(iss[i].Path))
	}
	if len(iss) > lim {
		fmt.Fprintf(b, "; ... (total %d)", len(iss))
	}
	return b.String()
}

func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// Validator checks decoded JSON values against one schema document. It is
// safe for concurrent use.
type Validator struct {
	// patterns are compiled lazily inside the schema on first use
	mu     sync.Mutex
	schema *jsonschema.Schema
}

// NewValidator compiles a schema document. Documents that do not compile
// are reported as KindInvalidDocument.
func NewValidator(data []byte) (*Validator, error) {
	compiled, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, &Error{Kind: KindInvalidDocument, Message: "not a well-formed JSON Schema", Err: err}
	}
	return &Validator{schema: compiled}, nil
}

// Validate returns every issue found in value, ordered by path.
func (v *Validator) Validate(value any) Issues {
	v.mu.Lock()
	result := v.schema.Validate(value)
	v.mu.Unlock()
	var iss Issues
	collectIssues(result, "", value, &iss)
	sort.SliceStable(iss, func(i, j int) bool {
		if iss[i].Path != iss[j].Path {
			return iss[i].Path < iss[j].Path
		}
		return iss[i].Code < iss[j].Code
	})
	return iss
}

func collectIssues(r *jsonschema.EvaluationResult, ptr string, value any, iss *Issues) {
	if r == nil || r.Valid {
		return
	}
	if len(r.Errors) > 0 && keywordIssues(r.Errors, ptr, value, iss) {
		return
	}
	for _, d := range r.Details {
		if d == nil || d.Valid {
			continue
		}
		if d.InstanceLocation == "" {
			collectIssues(d, ptr, value, iss)
			continue
		}
		seg := strings.TrimPrefix(d.InstanceLocation, "/")
		child, ok := member(value, seg)
		if !ok {
			// required properties are also evaluated against a missing value
			continue
		}
		collectIssues(d, ptr+"/"+escapePointer(seg), child, iss)
	}
}

// keywordIssues appends the issues of one location. It reports true when
// the value has the wrong type or literal and nested results are moot.
func keywordIssues(errs map[string]*jsonschema.EvaluationError, ptr string, value any, iss *Issues) bool {
	if e, ok := errs["type"]; ok {
		*iss = append(*iss, Issue{Path: ptr, Code: CodeInvalidType, Message: e.Error()})
		return true
	}
	for _, kw := range []string{"enum", "const"} {
		if e, ok := errs[kw]; ok {
			*iss = append(*iss, Issue{Path: ptr, Code: CodeInvalidEnum, Message: e.Error()})
			return true
		}
	}
	if _, ok := errs["schema"]; ok {
		*iss = append(*iss, Issue{Path: ptr, Code: CodeUnknownKey, Message: fmt.Sprintf("unknown property %s", PointerField(ptr))})
		return true
	}
	keywords := make([]string, 0, len(errs))
	for kw := range errs {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		e := errs[kw]
		switch {
		case aggregateKeywords[kw]:
		case kw == "required":
			obj, _ := value.(map[string]any)
			for _, name := range missingNames(e) {
				if _, present := obj[name]; present {
					continue
				}
				*iss = append(*iss, Issue{Path: ptr + "/" + escapePointer(name), Code: CodeRequired, Message: fmt.Sprintf("%s is required", name)})
			}
		default:
			code, ok := keywordCodes[kw]
			if !ok {
				code = CodeConstraint
			}
			*iss = append(*iss, Issue{Path: ptr, Code: code, Message: e.Error()})
		}
	}
	return false
}

// missingNames lists the properties named by a required failure.
func missingNames(e *jsonschema.EvaluationError) []string {
	raw, _ := e.Params["property"].(string)
	if raw == "" {
		raw, _ = e.Params["properties"].(string)
	}
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ", ")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(p, "'"), "'"))
	}
	return names
}

func member(value any, seg string) (any, bool) {
	switch t := value.(type) {
	case map[string]any:
		v, ok := t[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	}
	return nil, false
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func displayPointer(ptr string) string {
	if ptr == "" {
		return "/"
	}
	return ptr
}

// PointerField returns the last token of a JSON Pointer.
func PointerField(ptr string) string {
	idx := strings.LastIndex(ptr, "/")
	if idx < 0 {
		return ptr
	}
	return unescapePointer(ptr[idx+1:])
}
