package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/productgen/engine/generation"
)

func TestReadCSV(t *testing.T) {
	t.Run("Should re-encode each row with its header and attach hints", func(t *testing.T) {
		in, err := ReadCSV(strings.NewReader("\ufeffSKU,Title,Price\nTR-1,\"Trail Shoe, blue\",89.50\n,,\nTR-2,Road Shoe,\n"))
		require.NoError(t, err)
		require.Len(t, in.Items, 2)
		first := in.Items[0]
		assert.Equal(t, "TR-1", first.ID)
		assert.Equal(t, "SKU,Title,Price\nTR-1,\"Trail Shoe, blue\",89.50", first.Source.Text)
		assert.Equal(t, []generation.Hint{
			{Column: "SKU", Value: "TR-1"},
			{Column: "Title", Value: "Trail Shoe, blue"},
			{Column: "Price", Value: "89.50"},
		}, first.Hints)
		assert.Len(t, in.Items[1].Hints, 2)
		assert.Equal(t, 1, in.Items[1].Index)
	})

	t.Run("Should number items without an id column", func(t *testing.T) {
		in, err := ReadCSV(strings.NewReader("description\nA shoe\nA hat\n"))
		require.NoError(t, err)
		assert.Equal(t, "1", in.Items[0].ID)
		assert.Equal(t, "2", in.Items[1].ID)
	})

	t.Run("Should fail on empty input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrNoItems)
		_, err = ReadCSV(strings.NewReader("name\n"))
		assert.ErrorIs(t, err, ErrNoItems)
	})
}

func TestReadJSON(t *testing.T) {
	t.Run("Should use the first array found depth first", func(t *testing.T) {
		in, err := ReadJSON([]byte(`{"meta":{"count":2},"data":{"products":[{"sku":"A1","title":"Hat"},{"title":"Cap"}],"other":[1]}}`))
		require.NoError(t, err)
		require.Len(t, in.Items, 2)
		assert.Equal(t, "A1", in.Items[0].ID)
		assert.JSONEq(t, `{"sku":"A1","title":"Hat"}`, in.Items[0].Source.Text)
		assert.Equal(t, "2", in.Items[1].ID)
	})

	t.Run("Should accept a top level array", func(t *testing.T) {
		in, err := ReadJSON([]byte(`["plain text item", {"name":"Boot"}]`))
		require.NoError(t, err)
		assert.Equal(t, `"plain text item"`, in.Items[0].Source.Text)
		assert.Equal(t, "Boot", in.Items[1].ID)
	})

	t.Run("Should reject invalid or array free documents", func(t *testing.T) {
		_, err := ReadJSON([]byte(`{"a":`))
		assert.Error(t, err)
		_, err = ReadJSON([]byte(`{"a":{"b":1}}`))
		assert.ErrorIs(t, err, ErrNoItems)
	})
}

func TestReadURLs(t *testing.T) {
	t.Run("Should skip and report invalid lines", func(t *testing.T) {
		in, err := ReadURLs(strings.NewReader(strings.Join([]string{
			"# catalog pages",
			"https://shop.example.com/p/1",
			"",
			"not a url",
			"ftp://example.com/file",
			"file:///tmp/page.html",
		}, "\n")))
		require.NoError(t, err)
		require.Len(t, in.Items, 2)
		assert.Equal(t, "https://shop.example.com/p/1", in.Items[0].Source.URL)
		assert.Equal(t, in.Items[0].Source.URL, in.Items[0].ID)
		require.Len(t, in.Invalid, 2)
		assert.Equal(t, 4, in.Invalid[0].Line)
		assert.Contains(t, in.Invalid[1].Reason, "unsupported scheme")
	})
}

func TestReadFile(t *testing.T) {
	t.Run("Should pick the reader from the extension", func(t *testing.T) {
		dir := t.TempDir()
		csvPath := filepath.Join(dir, "items.csv")
		require.NoError(t, os.WriteFile(csvPath, []byte("name\nHat\n"), 0o644))
		in, err := ReadFile(csvPath)
		require.NoError(t, err)
		assert.Equal(t, "Hat", in.Items[0].ID)

		urlPath := filepath.Join(dir, "pages.txt")
		require.NoError(t, os.WriteFile(urlPath, []byte("https://shop.example.com/p/2\n"), 0o644))
		in, err = ReadFile(urlPath)
		require.NoError(t, err)
		assert.Equal(t, "https://shop.example.com/p/2", in.Items[0].Source.URL)
	})
}

func TestReadFiles(t *testing.T) {
	t.Run("Should merge every file matched by a recursive pattern", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "shoes"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hats.csv"), []byte("name\nCap\nBeanie\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shoes", "trail.csv"), []byte("sku,title\nTR-1,Trail shoe\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

		in, err := ReadFiles(filepath.Join(dir, "**", "*.csv"))
		require.NoError(t, err)
		require.Len(t, in.Items, 3)
		assert.Equal(t, []string{"hats.csv:Cap", "hats.csv:Beanie", "trail.csv:TR-1"},
			[]string{in.Items[0].ID, in.Items[1].ID, in.Items[2].ID})
		for i, item := range in.Items {
			assert.Equal(t, i, item.Index)
		}
	})

	t.Run("Should keep ids of a single file and report invalid lines with their file", func(t *testing.T) {
		dir := t.TempDir()
		csvPath := filepath.Join(dir, "items.csv")
		urlPath := filepath.Join(dir, "pages.txt")
		require.NoError(t, os.WriteFile(csvPath, []byte("name\nHat\n"), 0o644))
		require.NoError(t, os.WriteFile(urlPath, []byte("https://shop.example.com/p/1\nnot a url\n"), 0o644))

		in, err := ReadFiles(csvPath)
		require.NoError(t, err)
		assert.Equal(t, "Hat", in.Items[0].ID)

		in, err = ReadFiles(csvPath, urlPath, csvPath)
		require.NoError(t, err)
		require.Len(t, in.Items, 2)
		require.Len(t, in.Invalid, 1)
		assert.Equal(t, urlPath, in.Invalid[0].File)
		assert.Equal(t, 2, in.Invalid[0].Line)
	})

	t.Run("Should report a missing literal path", func(t *testing.T) {
		_, err := ReadFiles(filepath.Join(t.TempDir(), "missing.csv"))
		assert.ErrorContains(t, err, "failed to read batch input")
	})
}
