package hierarchy

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CityKey canonicalizes a city or country string before exact matching.
// Matching stays byte-exact, but NFC normalization plus whitespace trimming
// keeps the same name typed from different keyboards from producing duplicate
// city rows (composed vs decomposed accents, stray padding).
func CityKey(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
