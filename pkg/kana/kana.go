// Package kana converts between the Japanese syllabaries and normalises text
// for script-insensitive comparison.
package kana

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	katakanaFirst = 'ァ' // U+30A1
	katakanaLast  = 'ヶ' // U+30F6
	hiraganaFirst = 'ぁ' // U+3041
	hiraganaLast  = 'ゖ' // U+3096

	// offset between a katakana code point and its hiragana counterpart.
	offset = katakanaFirst - hiraganaFirst
)

// ToHiragana replaces katakana in s by the matching hiragana. Characters
// without a hiragana counterpart (ー, ヷ..ヺ, half-width forms) are kept.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= katakanaFirst && r <= katakanaLast {
			return r - offset
		}
		return r
	}, s)
}

// ToKatakana is the inverse of [ToHiragana].
func ToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= hiraganaFirst && r <= hiraganaLast {
			return r + offset
		}
		return r
	}, s)
}

// Normalize folds s for comparison: NFKC (half-width katakana and full-width
// latin become their canonical forms), katakana to hiragana, lower case.
func Normalize(s string) string {
	return strings.ToLower(ToHiragana(norm.NFKC.String(s)))
}

// Equal reports whether a and b are equal after [Normalize].
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsKana reports whether r is hiragana or katakana (including the prolonged
// sound mark).
func IsKana(r rune) bool {
	return (r >= hiraganaFirst && r <= hiraganaLast) ||
		(r >= katakanaFirst && r <= katakanaLast) || r == 'ー'
}
