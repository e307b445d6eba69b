package schema

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	instructions := []Instruction{
		{Path: "reviews", Action: ActionExclude},
		{Path: "type", Action: ActionOverrideEnum, Enum: []any{"standard", nil}},
		{Path: "material", Action: ActionAddField, Field: &Node{Types: []Type{TypeString, TypeNull}}},
	}

	t.Run("Should produce identical bytes for identical inputs", func(t *testing.T) {
		first, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		second, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		assert.Equal(t, first.JSON(), second.JSON())
		assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	})

	t.Run("Should emit a self contained artifact", func(t *testing.T) {
		compiled, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		out := string(compiled.JSON())
		assert.NotContains(t, out, "$ref")
		assert.NotContains(t, out, "$defs")
	})

	t.Run("Should keep insertion order with added fields last", func(t *testing.T) {
		compiled, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "slug", "type", "tags", "variants", "material"}, compiled.Root().Properties.Keys())
		out := string(compiled.JSON())
		assert.Less(t, strings.Index(out, `"variants"`), strings.Index(out, `"material"`))
	})

	t.Run("Should require every property and close every object in strict mode", func(t *testing.T) {
		compiled, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		assert.True(t, compiled.Strict())
		compiled.Root().Walk(func(path string, n *Node) bool {
			if n.Properties != nil {
				assert.Equal(t, n.Properties.Keys(), n.Required, path)
				require.NotNil(t, n.AdditionalProperties, path)
				assert.False(t, *n.AdditionalProperties, path)
			}
			return true
		})
	})

	t.Run("Should preserve null in type unions", func(t *testing.T) {
		compiled, err := Compile(mustLoad(t, catalogDoc), instructions, DefaultCompileOptions())
		require.NoError(t, err)
		typ, _ := compiled.Root().Property("type")
		assert.True(t, typ.Nullable())
		variants, _ := compiled.Root().Property("variants")
		sku, _ := variants.Items.Property("sku")
		assert.True(t, sku.Nullable())
	})

	t.Run("Should keep declared required sets outside strict mode", func(t *testing.T) {
		opts := DefaultCompileOptions()
		opts.Strict = false
		compiled, err := Compile(mustLoad(t, catalogDoc), instructions, opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "slug"}, compiled.Root().Required)
		assert.Nil(t, compiled.Root().AdditionalProperties)
	})

	t.Run("Should fail when a required entry is not defined", func(t *testing.T) {
		m := mustLoad(t, `{"type":"object","properties":{"name":{"type":"string"}},"required":["name","ghost"]}`)
		_, err := Compile(m, nil, DefaultCompileOptions())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUndefinedRequired))
	})

	t.Run("Should compile the bundled product schema", func(t *testing.T) {
		m, err := LoadSource("")
		require.NoError(t, err)
		compiled, err := Compile(m, nil, DefaultCompileOptions())
		require.NoError(t, err)
		assert.NotContains(t, string(compiled.JSON()), "$ref")
		assert.Greater(t, compiled.Stats().TotalProperties, 30)
		po, err := Lookup(compiled.Root(), "purchase_options.subscription.plans.billing_schedule.interval")
		require.NoError(t, err)
		assert.Equal(t, []any{"daily", "weekly", "monthly", "yearly"}, po.Enum)
	})
}

func TestLoadCompiled(t *testing.T) {
	t.Run("Should read back an artifact with the same fingerprint", func(t *testing.T) {
		compiled, err := Compile(mustLoad(t, catalogDoc), nil, DefaultCompileOptions())
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "schema_compiled.json")
		require.NoError(t, compiled.WriteFile(path))
		loaded, err := LoadCompiledFile(path, DefaultCompileOptions())
		require.NoError(t, err)
		assert.Equal(t, compiled.Fingerprint(), loaded.Fingerprint())
		assert.True(t, loaded.Strict())
	})

	t.Run("Should reject artifacts with references", func(t *testing.T) {
		_, err := LoadCompiled([]byte(`{"type":"object","properties":{"a":{"$ref":"#/$defs/x"}}}`), DefaultCompileOptions())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUnresolvedReference))
	})
}

func TestComputeStats(t *testing.T) {
	t.Run("Should count properties and nesting levels", func(t *testing.T) {
		m := mustLoad(t, catalogDoc)
		stats := ComputeStats(m.Root(), 100, 5)
		// root(6) + variant items(2) + review items(2)
		assert.Equal(t, 10, stats.TotalProperties)
		assert.Equal(t, 3, stats.MaxDepth)
		assert.True(t, stats.WithinLimits())
	})

	t.Run("Should warn above the configured limits", func(t *testing.T) {
		m := mustLoad(t, catalogDoc)
		stats := ComputeStats(m.Root(), 5, 2)
		require.Len(t, stats.Warnings, 2)
		assert.Contains(t, stats.Warnings[0], "total properties 10 exceed 5")
		assert.Contains(t, stats.Warnings[1], "nesting level 3 exceeds 2")
	})
}

func TestCompileCached(t *testing.T) {
	t.Run("Should return a cache hit for unchanged inputs", func(t *testing.T) {
		cache := NewArtifactCache(t.TempDir())
		m := mustLoad(t, catalogDoc)
		raw := []byte("instructions: []\n")
		first, hit, err := CompileCached(t.Context(), cache, m, raw, nil, DefaultCompileOptions())
		require.NoError(t, err)
		assert.False(t, hit)
		second, hit, err := CompileCached(t.Context(), cache, m, raw, nil, DefaultCompileOptions())
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	})

	t.Run("Should miss when instructions change", func(t *testing.T) {
		opts := DefaultCompileOptions()
		assert.NotEqual(t,
			CacheKey([]byte("base"), []byte("a"), opts),
			CacheKey([]byte("base"), []byte("b"), opts),
		)
	})
}
