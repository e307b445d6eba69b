package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/compozy/productgen/engine/product"
	"github.com/compozy/productgen/engine/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compiledSchema(t *testing.T, strict bool, instructions ...schema.Instruction) *schema.Compiled {
	t.Helper()
	model, err := schema.LoadSource("")
	require.NoError(t, err)
	opts := schema.DefaultCompileOptions()
	opts.Strict = strict
	compiled, err := schema.Compile(model, instructions, opts)
	require.NoError(t, err)
	return compiled
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

// strictDoc fills every top-level property missing from raw with null.
func strictDoc(t *testing.T, root *schema.Node, raw string) map[string]any {
	t.Helper()
	doc := decode(t, raw)
	for _, key := range root.Properties.Keys() {
		if _, ok := doc[key]; !ok {
			doc[key] = nil
		}
	}
	return doc
}

func rejected(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	return ve
}

func TestSlugify(t *testing.T) {
	t.Run("Should derive deterministic slugs", func(t *testing.T) {
		cases := map[string]string{
			"Men's Running Shoes!!": "mens-running-shoes",
			"Crème Brûlée Set":      "creme-brulee-set",
			"--A  /  b--":           "a-b",
			"Kids’ Rain Boots 2.0":  "kids-rain-boots-2-0",
			"!!!":                   "",
		}
		for in, want := range cases {
			assert.Equal(t, want, Slugify(in), in)
		}
	})

	t.Run("Should bound slugs without a trailing hyphen", func(t *testing.T) {
		name := strings.Repeat("a", 999) + " " + strings.Repeat("b", 50)
		slug := Slugify(name)
		assert.LessOrEqual(t, len(slug), product.MaxSlugLength)
		assert.False(t, strings.HasSuffix(slug, "-"))
		assert.Equal(t, strings.Repeat("a", 999), slug)
	})
}

func TestNormalizer_Derivations(t *testing.T) {
	n := New(compiledSchema(t, false))

	t.Run("Should derive a missing slug from the name", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), decode(t, `{"name":"Men's Running Shoes!!"}`))
		require.NoError(t, err)
		assert.Equal(t, "mens-running-shoes", res.Record.Slug)
		require.Len(t, res.Corrections, 1)
		assert.Equal(t, RuleSlugDerivation, res.Corrections[0].Rule)
	})

	t.Run("Should correct delivery from the type instead of rejecting", func(t *testing.T) {
		cases := []struct {
			typ, delivery string
			want          any
		}{
			{"standard", `"giftcard"`, "shipment"},
			{"subscription", `null`, "subscription"},
			{"giftcard", `"shipment"`, "giftcard"},
			{"bundle", `"shipment"`, nil},
		}
		for _, tc := range cases {
			raw := `{"name":"X","slug":"x","type":"` + tc.typ + `","delivery":` + tc.delivery + `}`
			res, err := n.Normalize(t.Context(), decode(t, raw))
			require.NoError(t, err, tc.typ)
			payload, err := res.Record.Payload()
			require.NoError(t, err)
			if tc.want == nil {
				assert.NotContains(t, payload, "delivery", tc.typ)
			} else {
				assert.Equal(t, tc.want, payload["delivery"], tc.typ)
			}
			require.NotEmpty(t, res.Corrections, tc.typ)
			assert.Equal(t, RuleDeliveryDerivation, res.Corrections[0].Rule)
		}
	})

	t.Run("Should keep a null delivery for standard products", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x","type":"standard","delivery":null}`))
		require.NoError(t, err)
		assert.Empty(t, res.Corrections)
		assert.Nil(t, res.Record.Delivery)
	})

	t.Run("Should force attributes.generated", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x","attributes":{"generated":false,"brand":"Acme"}}`))
		require.NoError(t, err)
		require.NotNil(t, res.Record.Attributes.Generated)
		assert.True(t, *res.Record.Attributes.Generated)
	})

	t.Run("Should clear shipping data on records that are not shipped", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), decode(t,
			`{"name":"Card","slug":"card","type":"giftcard","shipment_weight":2,"shipment_dimensions":{"length":1}}`))
		require.NoError(t, err)
		assert.Nil(t, res.Record.ShipmentWeight)
		assert.Nil(t, res.Record.ShipmentDimensions)
	})

	t.Run("Should warn about a bare subscription price", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), decode(t, `{"name":"Box","slug":"box","type":"subscription","price":20}`))
		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "subscription purchase option")
	})

	t.Run("Should not modify the input", func(t *testing.T) {
		raw := decode(t, `{"name":"X","type":"standard","delivery":"giftcard","attributes":{"generated":false}}`)
		_, err := n.Normalize(t.Context(), raw)
		require.NoError(t, err)
		assert.Equal(t, "giftcard", raw["delivery"])
		assert.NotContains(t, raw, "slug")
		assert.Equal(t, false, raw["attributes"].(map[string]any)["generated"])
	})
}

func TestNormalizer_Invariants(t *testing.T) {
	n := New(compiledSchema(t, false))

	t.Run("Should reject conflicting variation strategies", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x",
			"options":[{"name":"Size","variant":true}],
			"variants":[{"name":"Small"}]}`))
		ve := rejected(t, err)
		assert.True(t, ve.HasRule(RuleConflictingVariationStrategy))
	})

	t.Run("Should accept options that do not generate variants", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x",
			"options":[{"name":"Gift wrap","variant":false}],
			"variants":[{"name":"Small"}]}`))
		require.NoError(t, err)
	})

	t.Run("Should reject bundle items without the bundle flag", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x","bundle":null,
			"bundle_items":[{"product_name":"Y"}]}`))
		ve := rejected(t, err)
		assert.True(t, ve.HasRule(RuleBundleItemsWithoutBundleFlag))
		_, err = n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x","bundle":true,
			"bundle_items":[{"product_name":"Y"}]}`))
		require.NoError(t, err)
	})

	t.Run("Should name the missing review field", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x",
			"reviews":[{"name":"Ann","title":"Great","comments":"Fits well","rating":5},
			           {"name":"Bob","title":"Meh","rating":3}]}`))
		ve := rejected(t, err)
		assert.Equal(t, []string{"comments"}, ve.Fields(RuleMissingRequiredField))
		assert.Equal(t, "/reviews/1/comments", ve.Violations[0].Path)
	})

	t.Run("Should reject ratings outside one to five", func(t *testing.T) {
		for _, rating := range []string{"0", "6", "4.5"} {
			_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x",
				"reviews":[{"name":"A","title":"B","comments":"C","rating":`+rating+`}]}`))
			ve := rejected(t, err)
			assert.True(t, ve.HasRule(RuleInvalidRating), rating)
		}
	})

	t.Run("Should require names on variants options and values", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x",
			"options":[{"name":" ","values":[{"name":""}]}],
			"variants":[{"name":""}]}`))
		ve := rejected(t, err)
		var paths []string
		for _, v := range ve.Violations {
			if v.Rule == RuleMissingRequiredField {
				paths = append(paths, v.Path)
			}
		}
		assert.ElementsMatch(t, []string{"/variants/0/name", "/options/0/name", "/options/0/values/0/name"}, paths)
	})

	t.Run("Should collect every violation", func(t *testing.T) {
		_, err := n.Normalize(t.Context(), decode(t, `{"name":"X","slug":"x","price":"cheap",
			"options":[{"name":"Size","variant":true}],
			"variants":[{"name":"Small"}],
			"bundle_items":[{"product_name":"Y"}],
			"reviews":[{"name":"A","title":"B","rating":9}]}`))
		ve := rejected(t, err)
		for _, r := range []Rule{
			RuleSchemaMismatch,
			RuleConflictingVariationStrategy,
			RuleBundleItemsWithoutBundleFlag,
			RuleMissingRequiredField,
			RuleInvalidRating,
		} {
			assert.True(t, ve.HasRule(r), r)
		}
		assert.Contains(t, ve.Error(), "validation failed: ")
	})
}

func TestNormalizer_Strict(t *testing.T) {
	compiled := compiledSchema(t, true)
	root := compiled.Root()
	n := New(compiled)

	t.Run("Should accept a complete record with explicit nulls", func(t *testing.T) {
		res, err := n.Normalize(t.Context(), strictDoc(t, root, `{"name":"Men's Running Shoes!!","slug":"","type":"standard"}`))
		require.NoError(t, err)
		assert.Equal(t, "mens-running-shoes", res.Record.Slug)
		payload, err := res.Record.Payload()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "Men's Running Shoes!!", "slug": "mens-running-shoes", "type": "standard"}, payload)
	})

	t.Run("Should report structural mismatches", func(t *testing.T) {
		doc := strictDoc(t, root, `{"name":"X","slug":"x","type":"digital","colour":"red"}`)
		delete(doc, "tags")
		_, err := n.Normalize(t.Context(), doc)
		ve := rejected(t, err)
		codes := map[string]string{}
		for _, v := range ve.Violations {
			assert.Equal(t, KindSchemaMismatch, v.Kind)
			codes[v.Field] = v.Code
		}
		assert.Equal(t, schema.CodeInvalidEnum, codes["type"])
		assert.Equal(t, schema.CodeUnknownKey, codes["colour"])
		assert.Equal(t, schema.CodeRequired, codes["tags"])
	})

	t.Run("Should name comments when a strict review omits them", func(t *testing.T) {
		doc := strictDoc(t, root, `{"name":"X","slug":"x","reviews":[{"name":"A","title":"B","rating":4}]}`)
		_, err := n.Normalize(t.Context(), doc)
		ve := rejected(t, err)
		require.Len(t, ve.Violations, 1)
		assert.Equal(t, "comments", ve.Violations[0].Field)
		assert.Equal(t, RuleSchemaMismatch, ve.Violations[0].Rule)
	})
	t.Run("Should not mark records generated when the schema drops the flag", func(t *testing.T) {
		trimmed := compiledSchema(t, true, schema.Instruction{Path: "attributes.generated", Action: schema.ActionExclude})
		attrs, ok := trimmed.Root().Property("attributes")
		require.True(t, ok)
		doc := strictDoc(t, trimmed.Root(), `{"name":"X","slug":"x"}`)
		doc["attributes"] = map[string]any{}
		for _, key := range attrs.Properties.Keys() {
			doc["attributes"].(map[string]any)[key] = nil
		}
		require.Empty(t, trimmed.Validate(doc))

		res, err := New(trimmed).Normalize(t.Context(), doc)
		require.NoError(t, err)
		for _, c := range res.Corrections {
			assert.NotEqual(t, RuleGeneratedAttribute, c.Rule)
		}
	})
}
