package validation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Look-alike characters from non-Latin scripts and the Latin character they imitate.
var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'һ': 'h', 'і': 'i', 'ї': 'i', 'ј': 'j', 'к': 'k',
	'ӏ': 'l', 'м': 'm', 'н': 'h', 'о': 'o', 'р': 'p', 'ԛ': 'q', 'г': 'r', 'ѕ': 's', 'т': 't',
	'у': 'y', 'ԝ': 'w', 'х': 'x', 'ԁ': 'd', 'ɡ': 'g', 'ь': 'b', 'с': 'c',
	'А': 'A', 'В': 'B', 'С': 'C', 'Е': 'E', 'Н': 'H', 'І': 'I', 'Ј': 'J', 'К': 'K', 'М': 'M',
	'О': 'O', 'Р': 'P', 'Ѕ': 'S', 'Т': 'T', 'Х': 'X', 'У': 'Y', 'Ԝ': 'W', 'Ԛ': 'Q',
	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o', 'ρ': 'p', 'τ': 't',
	'υ': 'u', 'χ': 'x', 'γ': 'y',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ν': 'N',
	'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
	// Armenian
	'օ': 'o', 'ս': 'u', 'հ': 'h', 'ո': 'n', 'ց': 'g', 'զ': 'q', 'Տ': 'S', 'Օ': 'O',
	// Cherokee
	'Ꭺ': 'A', 'Ᏼ': 'B', 'Ꮯ': 'C', 'Ꭼ': 'E', 'Ꮋ': 'H', 'Ꭻ': 'J', 'Ꮶ': 'K', 'Ꮇ': 'M', 'Ꮲ': 'P',
	'Ꮪ': 'S', 'Ꭲ': 'T', 'Ꮃ': 'W', 'Ꮓ': 'Z',
	// Common
	'0': 'o', '1': 'l', 'ı': 'i', 'ſ': 's',
}

// Latin letters that have a look-alike in another script.
var confusableTargets = func() map[rune]struct{} {
	targets := make(map[rune]struct{}, len(confusables))
	for _, latin := range confusables {
		targets[latin] = struct{}{}
		targets[unicode.ToLower(latin)] = struct{}{}
		targets[unicode.ToUpper(latin)] = struct{}{}
	}
	return targets
}()

var scripts = []struct {
	name  string
	table *unicode.RangeTable
}{
	{"Latin", unicode.Latin},
	{"Greek", unicode.Greek},
	{"Cyrillic", unicode.Cyrillic},
	{"Armenian", unicode.Armenian},
	{"Cherokee", unicode.Cherokee},
	{"Georgian", unicode.Georgian},
	{"Hebrew", unicode.Hebrew},
	{"Arabic", unicode.Arabic},
	{"Devanagari", unicode.Devanagari},
	{"Thai", unicode.Thai},
	{"Han", unicode.Han},
	{"Hiragana", unicode.Hiragana},
	{"Katakana", unicode.Katakana},
	{"Hangul", unicode.Hangul},
}

// scriptOf returns the script name of r, or "" for Common and Inherited characters.
func scriptOf(r rune) string {
	if unicode.In(r, unicode.Common, unicode.Inherited) {
		return ""
	}
	for _, s := range scripts {
		if unicode.Is(s.table, r) {
			return s.name
		}
	}
	return "Other"
}

// IsMixedScript reports whether s contains letters from more than one script.
func IsMixedScript(s string) bool {
	seen := ""
	for _, r := range s {
		script := scriptOf(r)
		if script == "" {
			continue
		}
		if seen == "" {
			seen = script
		} else if script != seen {
			return true
		}
	}
	return false
}

func isConfusableRune(r rune) bool {
	if _, ok := confusables[r]; ok {
		return true
	}
	_, ok := confusableTargets[r]
	return ok
}

// IsDangerous reports whether s mixes scripts and contains characters that imitate another script.
// Such strings are likely homograph attacks.
func IsDangerous(s string) bool {
	if !IsMixedScript(s) {
		return false
	}
	for _, r := range s {
		if isConfusableRune(r) {
			return true
		}
	}
	return false
}

var folder = cases.Fold()

// Skeleton maps s to a canonical form in which confusable spellings compare equal.
func Skeleton(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if latin, ok := confusables[r]; ok {
			r = latin
		}
		b.WriteRune(r)
	}
	return folder.String(b.String())
}

// Confusable reports whether a and b render alike once confusable characters are folded.
func Confusable(a, b string) bool {
	return Skeleton(a) == Skeleton(b)
}
