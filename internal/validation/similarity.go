package validation

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Substitution costs two edits so the distance counts insertions and deletions only.
var indelParams = levenshtein.NewParams().SubCost(2)

func processToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

func sortedTokens(s string) string {
	tokens := strings.Fields(processToken(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Ratio returns the normalized similarity of a and b in the range 0..100.
func Ratio(a, b string) int {
	lenSum := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if lenSum == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indelParams)
	return int(math.RoundToEven(100 * float64(lenSum-dist) / float64(lenSum)))
}

// TokenSortRatio compares a and b after lowercasing, stripping punctuation and sorting their words.
// Either side being empty after processing scores zero.
func TokenSortRatio(a, b string) int {
	sa, sb := sortedTokens(a), sortedTokens(b)
	if sa == "" || sb == "" {
		return 0
	}
	return Ratio(sa, sb)
}

// TooSimilar reports whether candidate reaches threshold against any of existing.
// The first offending name is returned alongside.
func TooSimilar(candidate string, existing []string, threshold int) (string, bool) {
	for _, other := range existing {
		if TokenSortRatio(candidate, other) >= threshold {
			return other, true
		}
	}
	return "", false
}
