package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation error")

// Kind separates structural mismatches from domain invariant violations.
type Kind string

const (
	KindSchemaMismatch  Kind = "SchemaMismatch"
	KindDomainInvariant Kind = "DomainInvariant"
)

// Rule names the check that produced a violation or correction.
type Rule string

const (
	RuleSchemaMismatch               Rule = "SchemaMismatch"
	RuleConflictingVariationStrategy Rule = "ConflictingVariationStrategy"
	RuleBundleItemsWithoutBundleFlag Rule = "BundleItemsWithoutBundleFlag"
	RuleMissingRequiredField         Rule = "MissingRequiredField"
	RuleInvalidRating                Rule = "InvalidRating"
	RuleSlugDerivation               Rule = "SlugDerivation"
	RuleDeliveryDerivation           Rule = "DeliveryDerivation"
	RuleGeneratedAttribute           Rule = "GeneratedAttribute"
	RuleShippingPhysicality          Rule = "ShippingPhysicality"
	RuleSubscriptionPrice            Rule = "SubscriptionPrice"
)

// Violation is one reason a record was rejected. Path is a JSON Pointer and
// Field its last token.
type Violation struct {
	Kind    Kind   `json:"kind"`
	Rule    Rule   `json:"rule"`
	Path    string `json:"path"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s at %s: %s", v.Rule, path, v.Message)
}

// ValidationError carries every violation found for one record.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HasRule reports whether any violation was produced by rule.
func (e *ValidationError) HasRule(rule Rule) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Fields lists the field names of the violations produced by rule.
func (e *ValidationError) Fields(rule Rule) []string {
	var out []string
	for _, v := range e.Violations {
		if v.Rule == rule {
			out = append(out, v.Field)
		}
	}
	return out
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
