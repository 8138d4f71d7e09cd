package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics decomposes s and drops combining marks so that "André"
// becomes "Andre". Transformers are stateful, so a fresh chain is built per
// call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lower-cases s, folds diacritics, removes every character that is
// not an ASCII letter, digit or whitespace, collapses whitespace runs to a
// single space and trims the result.
//
// Normalize is idempotent.
func Normalize(s string) string {
	folded := strings.ToLower(foldDiacritics(s))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalizedWords returns the words of Normalize(s).
func normalizedWords(s string) []string {
	return strings.Fields(Normalize(s))
}
