// Package textnorm normalises Portuguese free text for lexical matching and
// feature hashing: lowercasing, accent folding and word tokenisation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so "Feijão" and "FEIJAO"
// both fold to "feijao". Invalid UTF-8 is passed through lowercased.
func Fold(s string) string {
	// transform.Chain is stateful, so a fresh chain is built per call to keep
	// Fold safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// Tokens folds s and splits it into words made of letters and digits.
// Punctuation and whitespace are separators.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsWord reports whether word (already folded) appears as a whole
// token in tokens.
func ContainsWord(tokens []string, word string) bool {
	for _, t := range tokens {
		if t == word {
			return true
		}
	}
	return false
}
