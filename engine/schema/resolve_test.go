package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sharedDefsDoc = `{
  "type": "object",
  "properties": {
    "primary": {"$ref": "#/$defs/image"},
    "secondary": {"$ref": "#/$defs/image", "description": "Fallback image"}
  },
  "$defs": {
    "image": {
      "type": "object",
      "description": "An image",
      "properties": {"url": {"type": "string"}}
    }
  }
}`

func mustLoad(t *testing.T, doc string) *Model {
	t.Helper()
	m, err := Load([]byte(doc))
	require.NoError(t, err)
	return m
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("Should give every reference site an independent copy", func(t *testing.T) {
		m := mustLoad(t, sharedDefsDoc)
		primary, ok := m.Root().Property("primary")
		require.True(t, ok)
		secondary, ok := m.Root().Property("secondary")
		require.True(t, ok)
		assert.NotSame(t, primary, secondary)
		primaryURL, _ := primary.Property("url")
		secondaryURL, _ := secondary.Property("url")
		assert.NotSame(t, primaryURL, secondaryURL)
		primaryURL.Description = "changed"
		assert.Empty(t, secondaryURL.Description)
	})

	t.Run("Should let sibling keywords override the definition", func(t *testing.T) {
		m := mustLoad(t, sharedDefsDoc)
		primary, _ := m.Root().Property("primary")
		secondary, _ := m.Root().Property("secondary")
		assert.Equal(t, "An image", primary.Description)
		assert.Equal(t, "Fallback image", secondary.Description)
		assert.Equal(t, []Type{TypeObject}, secondary.Types)
	})

	t.Run("Should resolve each definition once", func(t *testing.T) {
		doc, err := Parse([]byte(sharedDefsDoc))
		require.NoError(t, err)
		r := NewResolver(doc.Defs)
		_, err = r.Resolve(doc.Root)
		require.NoError(t, err)
		assert.Len(t, r.canonical, 1)
		assert.Contains(t, r.canonical, "image")
	})

	t.Run("Should report cycles with the reference chain", func(t *testing.T) {
		doc := `{
		  "type": "object",
		  "properties": {"root": {"$ref": "#/$defs/a"}},
		  "$defs": {
		    "a": {"type": "object", "properties": {"b": {"$ref": "#/$defs/b"}}},
		    "b": {"type": "object", "properties": {"a": {"$ref": "#/$defs/a"}}}
		  }
		}`
		_, err := Load([]byte(doc))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchema)
		assert.True(t, IsKind(err, KindCyclicReference))
		assert.Contains(t, err.Error(), "a -> b -> a")
	})

	t.Run("Should fail on unknown definitions", func(t *testing.T) {
		doc := `{"type": "object", "properties": {"x": {"$ref": "#/$defs/missing"}}, "$defs": {}}`
		_, err := Load([]byte(doc))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUnresolvedReference))
	})

	t.Run("Should fail on external references", func(t *testing.T) {
		doc, err := Parse([]byte(`{"type": "object", "properties": {"x": {"$ref": "other.json#/a"}}}`))
		require.NoError(t, err)
		_, err = NewResolver(doc.Defs).Resolve(doc.Root)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUnresolvedReference))
	})
}

func TestParse(t *testing.T) {
	t.Run("Should keep property order from the document", func(t *testing.T) {
		doc, err := Parse([]byte(`{"type":"object","properties":{"z":{"type":"string"},"a":{"type":"string"},"m":{"type":"string"}}}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "m"}, doc.Root.Properties.Keys())
	})

	t.Run("Should reject invalid JSON", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":`))
		assert.True(t, IsKind(err, KindInvalidDocument))
	})

	t.Run("Should reject unknown types", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":"text"}`))
		assert.True(t, IsKind(err, KindInvalidDocument))
	})

	t.Run("Should keep unknown keywords verbatim", func(t *testing.T) {
		doc, err := Parse([]byte(`{"type":"string","default":"x","examples":["a"]}`))
		require.NoError(t, err)
		require.Len(t, doc.Root.Extra, 2)
		assert.Equal(t, "default", doc.Root.Extra[0].Name)
		assert.JSONEq(t, `["a"]`, string(doc.Root.Extra[1].Value))
	})
}

func TestLint(t *testing.T) {
	t.Run("Should flag items on a node that is not an array", func(t *testing.T) {
		m := mustLoad(t, `{"type":"object","properties":{"images":{"type":["object","null"],"items":{"type":"string"}}}}`)
		warnings := m.Warnings()
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "images")
	})

	t.Run("Should flag list fields declared as objects", func(t *testing.T) {
		m := mustLoad(t, `{"type":"object","properties":{
			"images":{"type":"object","description":"List of image URLs"},
			"bundle_items":{"type":["object","null"]},
			"category_index":{"type":"object","properties":{"id":{"type":"string"}}},
			"attributes":{"type":"object"}}}`)
		warnings := m.Warnings()
		require.Len(t, warnings, 3)
		assert.Contains(t, warnings[0], "images: declared as object")
		assert.Contains(t, warnings[1], "bundle_items")
		assert.Contains(t, warnings[2], "category_index")
	})

	t.Run("Should find nothing in the bundled schema", func(t *testing.T) {
		m, err := LoadSource("")
		require.NoError(t, err)
		assert.Empty(t, m.Warnings())
	})
}
