package costing

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical size labels, ordered by detection precedence. When an item name
// carries more than one size word the earlier label wins.
const (
	SizeCompact = "compact"
	SizeLarge   = "large"
	SizeFamily  = "family"
	SizeMedium  = "medium"
)

var sizePatterns = []struct {
	size    string
	pattern *regexp.Regexp
}{
	{SizeCompact, regexp.MustCompile(`\bbroto\b`)},
	{SizeLarge, regexp.MustCompile(`\bgrande\b`)},
	{SizeFamily, regexp.MustCompile(`\bfamilia\b`)},
	{SizeMedium, regexp.MustCompile(`\bmedia\b`)},
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldName(name string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(name))
	if err != nil {
		return strings.ToLower(name)
	}
	return folded
}

// DetectSize inspects a free-text item name for a size word. Matching is
// case-insensitive, accent-insensitive and anchored to whole words, so
// "Pizza Média Calabresa" detects but "Mediana" does not.
func DetectSize(name string) (string, bool) {
	folded := foldName(name)
	for _, sp := range sizePatterns {
		if sp.pattern.MatchString(folded) {
			return sp.size, true
		}
	}
	return "", false
}
