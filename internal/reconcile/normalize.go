// Package reconcile joins artist names from the live feed and the manual
// ranking file. The two sources are keyed independently in the store and only
// meet here, at metric-computation time.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case, strips diacritics and collapses whitespace, so
// "Beyoncé " and "beyonce" share a key.
func Normalize(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
