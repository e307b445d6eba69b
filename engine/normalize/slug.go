package normalize

import (
	"strings"
	"unicode"

	"github.com/compozy/productgen/engine/product"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify derives a URL identifier from a product name: diacritics folded,
// lowercased, apostrophes dropped, every other run of non-alphanumeric
// characters collapsed to one hyphen, trimmed and bounded to
// product.MaxSlugLength.
func Slugify(name string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	var b strings.Builder
	gap := false
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’':
			continue
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if gap && b.Len() > 0 {
				b.WriteByte('-')
			}
			gap = false
			b.WriteRune(r)
		default:
			gap = true
		}
	}
	out := b.String()
	if len(out) > product.MaxSlugLength {
		out = strings.TrimRight(out[:product.MaxSlugLength], "-")
	}
	return out
}
