package align

import (
	"unicode/utf8"

	"github.com/MrWong99/bookparser/pkg/kana"
)

// MatchStrategy locates the text of a timing unit at the start of the
// unconsumed part of the sentence. Match returns the number of runes the unit
// covers, or ok=false when the strategy does not apply.
type MatchStrategy interface {
	Name() string
	Match(rest []rune, text string) (n int, ok bool)
}

// DefaultStrategies is the chain used by [New]: exact, normalised look-ahead,
// single character.
func DefaultStrategies() []MatchStrategy {
	return []MatchStrategy{ExactMatch{}, NormalizedMatch{MaxLookahead: 3}, SingleCharMatch{}}
}

// ExactMatch accepts text when the sentence continues with exactly text.
type ExactMatch struct{}

func (ExactMatch) Name() string { return "exact" }

func (ExactMatch) Match(rest []rune, text string) (int, bool) {
	n := utf8.RuneCountInString(text)
	if n == 0 || n > len(rest) {
		return 0, false
	}
	if string(rest[:n]) != text {
		return 0, false
	}
	return n, true
}

// NormalizedMatch compares text against the next 1..MaxLookahead runes of the
// sentence after [kana.Normalize]: katakana mora text matches hiragana in the
// sentence and half-width forms match full-width ones.
type NormalizedMatch struct {
	MaxLookahead int
}

func (NormalizedMatch) Name() string { return "normalized" }

func (m NormalizedMatch) Match(rest []rune, text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	want := kana.Normalize(text)
	for n := 1; n <= m.MaxLookahead && n <= len(rest); n++ {
		if kana.Normalize(string(rest[:n])) == want {
			return n, true
		}
	}
	return 0, false
}

// SingleCharMatch assigns the next rune to the unit. It is the last resort and
// always succeeds while text remains.
type SingleCharMatch struct{}

func (SingleCharMatch) Name() string { return "single-char" }

func (SingleCharMatch) Match(rest []rune, _ string) (int, bool) {
	if len(rest) == 0 {
		return 0, false
	}
	return 1, true
}
