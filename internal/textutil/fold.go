package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents strips combining marks so "Amélie" and "Amelie" compare equal.
// Characters without a decomposition (ß, ø) are left as they are.
func FoldAccents(value string) string {
	if isASCII(value) {
		return value
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// FoldLower lowercases and folds accents for case-insensitive substring checks.
func FoldLower(value string) string {
	return strings.ToLower(FoldAccents(value))
}

// TitleCase renders a display title ("the matrix" -> "The Matrix").
func TitleCase(value string) string {
	return cases.Title(language.Und, cases.NoLower).String(strings.TrimSpace(value))
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] >= 0x80 {
			return false
		}
	}
	return true
}
