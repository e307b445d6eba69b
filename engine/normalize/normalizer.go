package normalize

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/compozy/productgen/engine/core"
	"github.com/compozy/productgen/engine/product"
	"github.com/compozy/productgen/engine/schema"
	"github.com/compozy/productgen/pkg/logger"
)

// Correction records a value the normalizer rewrote instead of rejecting.
type Correction struct {
	Rule Rule   `json:"rule"`
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
}

func (c Correction) String() string {
	return fmt.Sprintf("%s at %s: %v -> %v", c.Rule, c.Path, c.From, c.To)
}

// Result is an accepted record with the corrections applied to it.
type Result struct {
	Record      *product.Record
	Corrections []Correction
	Warnings    []string
}

// Normalizer validates candidate objects against a compiled schema and
// enforces the product domain rules.
type Normalizer struct {
	compiled *schema.Compiled
}

// New creates a normalizer for the given compiled schema. A nil schema
// skips structural validation.
func New(compiled *schema.Compiled) *Normalizer {
	return &Normalizer{compiled: compiled}
}

func (n *Normalizer) root() *schema.Node {
	if n.compiled == nil {
		return nil
	}
	return n.compiled.Root()
}

// Derive returns a copy of raw with the derivations applied, which is the
// document the structural check sees.
func (n *Normalizer) Derive(raw map[string]any) (map[string]any, error) {
	st, err := n.derive(raw)
	if err != nil {
		return nil, err
	}
	return st.doc, nil
}

func (n *Normalizer) derive(raw map[string]any) (*state, error) {
	doc, err := core.CopyJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to copy candidate record: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	st := &state{doc: doc, root: n.root(), mismatched: map[string]bool{}}
	for _, r := range derivations {
		r.check(st)
	}
	return st, nil
}

// state is the working set shared by the rules for one record.
type state struct {
	doc         map[string]any
	root        *schema.Node
	violations  []Violation
	corrections []Correction
	warnings    []string
	mismatched  map[string]bool
}

type rule struct {
	name  Rule
	check func(*state)
}

// derivations rewrite the document before structural validation.
var derivations = []rule{
	{RuleSlugDerivation, deriveSlug},
	{RuleDeliveryDerivation, deriveDelivery},
	{RuleGeneratedAttribute, markGenerated},
	{RuleShippingPhysicality, clearShipping},
}

// invariants only report. All of them run for every record.
var invariants = []rule{
	{RuleConflictingVariationStrategy, checkVariationStrategy},
	{RuleBundleItemsWithoutBundleFlag, checkBundleItems},
	{RuleMissingRequiredField, checkNestedRequired},
	{RuleInvalidRating, checkRatings},
	{RuleSubscriptionPrice, checkSubscriptionPrice},
}

// Normalize validates and normalizes raw, which is never modified. It
// returns a *ValidationError listing every violation when the record is
// rejected.
func (n *Normalizer) Normalize(ctx context.Context, raw map[string]any) (*Result, error) {
	log := logger.FromContext(ctx)
	st, err := n.derive(raw)
	if err != nil {
		return nil, err
	}
	doc := st.doc
	if n.compiled != nil {
		for _, issue := range n.compiled.Validate(doc) {
			st.mismatched[issue.Path] = true
			st.violations = append(st.violations, Violation{
				Kind:    KindSchemaMismatch,
				Rule:    RuleSchemaMismatch,
				Path:    issue.Path,
				Field:   schema.PointerField(issue.Path),
				Code:    issue.Code,
				Message: issue.Message,
			})
		}
	}
	for _, r := range invariants {
		before := len(st.violations)
		r.check(st)
		if len(st.violations) > before {
			log.Debug("Domain rule violated", "rule", r.name, "count", len(st.violations)-before)
		}
	}
	if len(st.violations) > 0 {
		log.Debug("Record rejected", "violations", len(st.violations))
		return nil, &ValidationError{Violations: st.violations}
	}
	rec, err := product.Decode(doc)
	if err != nil {
		return nil, &ValidationError{Violations: []Violation{{
			Kind:    KindSchemaMismatch,
			Rule:    RuleSchemaMismatch,
			Message: err.Error(),
		}}}
	}
	if rec.Slug == "" {
		rec.Slug = Slugify(rec.Name)
	}
	for _, w := range st.warnings {
		log.Warn("Record accepted with warning", "slug", rec.Slug, "warning", w)
	}
	log.Debug("Record normalized", "slug", rec.Slug, "corrections", len(st.corrections))
	return &Result{Record: rec, Corrections: st.corrections, Warnings: st.warnings}, nil
}

func (s *state) allows(key string) bool {
	if s.root == nil || s.root.Properties == nil {
		return true
	}
	_, ok := s.root.Property(key)
	return ok
}

// clear sets a top-level property to null, or removes it when the schema
// does not accept null there.
func (s *state) clear(key string) {
	if s.root != nil {
		if prop, ok := s.root.Property(key); ok && !prop.Nullable() {
			delete(s.doc, key)
			return
		}
	}
	s.doc[key] = nil
}

func (s *state) correct(r Rule, path string, from, to any) {
	s.corrections = append(s.corrections, Correction{Rule: r, Path: path, From: from, To: to})
}

func (s *state) reject(r Rule, path, msg string) {
	s.violations = append(s.violations, Violation{
		Kind:    KindDomainInvariant,
		Rule:    r,
		Path:    path,
		Field:   schema.PointerField(path),
		Message: msg,
	})
}

func (s *state) typ() (product.Type, bool) {
	t, ok := s.doc["type"].(string)
	return product.Type(t), ok
}

func deriveSlug(s *state) {
	if slug, ok := s.doc["slug"].(string); ok && slug != "" {
		return
	}
	if !s.allows("slug") {
		return
	}
	name, ok := s.doc["name"].(string)
	if !ok {
		return
	}
	slug := Slugify(name)
	if slug == "" {
		return
	}
	s.correct(RuleSlugDerivation, "/slug", s.doc["slug"], slug)
	s.doc["slug"] = slug
}

func deriveDelivery(s *state) {
	t, ok := s.typ()
	if !ok || !s.allows("delivery") {
		return
	}
	current, present := s.doc["delivery"]
	var want any
	switch t {
	case product.TypeStandard:
		if current == nil || current == string(product.DeliveryShipment) {
			return
		}
		want = string(product.DeliveryShipment)
	case product.TypeSubscription:
		want = string(product.DeliverySubscription)
	case product.TypeGiftcard:
		want = string(product.DeliveryGiftcard)
	case product.TypeBundle:
		if current == nil {
			return
		}
		s.correct(RuleDeliveryDerivation, "/delivery", current, nil)
		s.clear("delivery")
		return
	default:
		return
	}
	if present && current == want {
		return
	}
	s.correct(RuleDeliveryDerivation, "/delivery", current, want)
	s.doc["delivery"] = want
}

func markGenerated(s *state) {
	attrs, ok := s.doc["attributes"].(map[string]any)
	if !ok {
		return
	}
	if attrs["generated"] == true {
		return
	}
	if s.root != nil {
		if node, ok := s.root.Property("attributes"); ok && node.Properties != nil {
			if _, ok := node.Property("generated"); !ok {
				return
			}
		}
	}
	s.correct(RuleGeneratedAttribute, "/attributes/generated", attrs["generated"], true)
	attrs["generated"] = true
}

// clearShipping drops package data from records that cannot be shipped.
func clearShipping(s *state) {
	t, hasType := s.typ()
	if !hasType || t == product.TypeStandard {
		return
	}
	if d, ok := s.doc["delivery"].(string); ok && d == string(product.DeliveryShipment) {
		return
	}
	for _, key := range []string{"shipment_dimensions", "shipment_weight"} {
		if v, ok := s.doc[key]; ok && v != nil {
			s.correct(RuleShippingPhysicality, "/"+key, v, nil)
			s.clear(key)
		}
	}
}

func checkVariationStrategy(s *state) {
	variants, _ := s.doc["variants"].([]any)
	if len(variants) == 0 {
		return
	}
	options, _ := s.doc["options"].([]any)
	for i, o := range options {
		opt, ok := o.(map[string]any)
		if ok && opt["variant"] == true {
			s.reject(RuleConflictingVariationStrategy, fmt.Sprintf("/options/%d/variant", i),
				"options generate variants while explicit variants are present")
			return
		}
	}
}

func checkBundleItems(s *state) {
	items, _ := s.doc["bundle_items"].([]any)
	if len(items) == 0 || s.doc["bundle"] == true {
		return
	}
	s.reject(RuleBundleItemsWithoutBundleFlag, "/bundle_items", "bundle_items is populated but bundle is not true")
}

func checkNestedRequired(s *state) {
	eachObject(s.doc["variants"], "/variants", func(ptr string, obj map[string]any) {
		s.requireField(ptr, obj, "name")
	})
	eachObject(s.doc["options"], "/options", func(ptr string, obj map[string]any) {
		s.requireField(ptr, obj, "name")
		eachObject(obj["values"], ptr+"/values", func(vptr string, val map[string]any) {
			s.requireField(vptr, val, "name")
		})
	})
	eachObject(s.doc["reviews"], "/reviews", func(ptr string, obj map[string]any) {
		for _, field := range []string{"name", "title", "comments", "rating"} {
			s.requireField(ptr, obj, field)
		}
	})
}

func (s *state) requireField(ptr string, obj map[string]any, field string) {
	path := ptr + "/" + field
	v, ok := obj[field]
	if ok && v != nil {
		if str, isStr := v.(string); !isStr || strings.TrimSpace(str) != "" {
			return
		}
	}
	if s.mismatched[path] {
		return
	}
	s.reject(RuleMissingRequiredField, path, fmt.Sprintf("%s is required", field))
}

func checkRatings(s *state) {
	eachObject(s.doc["reviews"], "/reviews", func(ptr string, obj map[string]any) {
		v, ok := obj["rating"]
		if !ok || v == nil {
			return
		}
		f, isNum := v.(float64)
		if !isNum || f != math.Trunc(f) || f < 1 || f > 5 {
			s.reject(RuleInvalidRating, ptr+"/rating", fmt.Sprintf("rating must be a whole number from 1 to 5, got %v", v))
		}
	})
}

func checkSubscriptionPrice(s *state) {
	if t, ok := s.typ(); !ok || t != product.TypeSubscription {
		return
	}
	if s.doc["price"] == nil {
		return
	}
	if po, ok := s.doc["purchase_options"].(map[string]any); ok && po["subscription"] != nil {
		return
	}
	s.warnings = append(s.warnings, "subscription product has a price but no subscription purchase option")
}

func eachObject(v any, ptr string, fn func(string, map[string]any)) {
	items, _ := v.([]any)
	for i, item := range items {
		if obj, ok := item.(map[string]any); ok {
			fn(fmt.Sprintf("%s/%d", ptr, i), obj)
		}
	}
}
