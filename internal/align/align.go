// Package align maps phonetic timing units reported by a speech synthesiser
// onto merged token boundaries, producing one playback interval per
// highlightable token.
//
// Punctuation tokens are never highlighted but still occupy text, so their
// lengths count when computing the character span of every other token.
// Tokens that no timing unit overlaps share the time between their aligned
// neighbours evenly. An empty or unusable unit list falls back to an even
// distribution over the whole timeline, so playback always has a schedule.
package align

import (
	"cmp"
	"math"
	"slices"

	"github.com/MrWong99/bookparser/pkg/types"
)

// Span is a half-open range of rune offsets into the sentence text.
type Span struct {
	Start, End int
}

// Result is the outcome of one alignment.
type Result struct {
	// Timings holds one entry per non-punctuation token, sorted by start time.
	Timings []types.TokenTiming

	// Units are the usable input units, each located in the sentence text.
	Units []types.TimingUnit

	// Duration is the timeline length actually used. It is zero when the
	// caller passed no positive duration, no unit was usable and the aligner
	// has no nominal token duration (see [WithNominalTokenDuration]). Every
	// interval is then [0,0]: the order is kept but nothing can be
	// highlighted over time.
	Duration float64

	// Gaps is the number of tokens no timing unit overlapped.
	Gaps int

	// Dropped is the number of units discarded as malformed or unplaceable.
	Dropped int

	// Fallback is true when no token aligned and the schedule is the even
	// distribution over the whole timeline.
	Fallback bool
}

// Option configures an [Aligner].
type Option func(*Aligner)

// WithStrategies replaces the text location chain. Strategies are tried in
// order; the first that matches wins.
func WithStrategies(s ...MatchStrategy) Option {
	return func(a *Aligner) {
		a.strategies = slices.Clone(s)
	}
}

// WithNominalTokenDuration sets the seconds given to each highlightable token
// when neither the caller nor the units supply a timeline length. Zero, the
// default, leaves such a timeline empty.
func WithNominalTokenDuration(seconds float64) Option {
	return func(a *Aligner) {
		if seconds > 0 && !math.IsInf(seconds, 0) {
			a.nominal = seconds
		}
	}
}

// Aligner aligns timing units to tokens. It holds no per-call state and is
// safe for concurrent use.
type Aligner struct {
	strategies []MatchStrategy
	nominal    float64
}

// New returns an Aligner using [DefaultStrategies] unless overridden.
func New(opts ...Option) *Aligner {
	a := &Aligner{strategies: DefaultStrategies()}
	for _, o := range opts {
		o(a)
	}
	return a
}

var defaultAligner = New()

// Align aligns with the default strategy chain.
func Align(tokens []types.MergedToken, units []types.TimingUnit, duration float64) Result {
	return defaultAligner.Align(tokens, units, duration)
}

// Spans returns the rune span of every token, punctuation included.
func Spans(tokens []types.MergedToken) []Span {
	spans := make([]Span, len(tokens))
	off := 0
	for i, t := range tokens {
		n := t.RuneLen()
		spans[i] = Span{Start: off, End: off + n}
		off += n
	}
	return spans
}

// Align computes one TokenTiming for every non-punctuation token. duration is
// the audio length in seconds; when it is not positive the latest unit end is
// used instead, then the nominal token duration times the token count.
func (a *Aligner) Align(tokens []types.MergedToken, units []types.TimingUnit, duration float64) Result {
	resolved := a.Resolve(types.Text(tokens), units)

	valid := make([]types.TimingUnit, 0, len(resolved))
	for _, u := range resolved {
		if u.Valid() {
			valid = append(valid, u)
		}
	}
	res := Result{Units: valid, Dropped: len(units) - len(valid)}

	if !(duration > 0) || math.IsInf(duration, 0) {
		duration = 0
		for _, u := range valid {
			duration = max(duration, u.End)
		}
	}
	spans := Spans(tokens)
	var targets []int
	for i, t := range tokens {
		if !t.IsPunctuation() {
			targets = append(targets, i)
		}
	}
	if duration == 0 {
		duration = a.nominal * float64(len(targets))
	}
	res.Duration = duration

	timings := make([]types.TokenTiming, len(targets))
	aligned := make([]bool, len(targets))
	for k, idx := range targets {
		timings[k].TokenIndex = idx
		sp := spans[idx]
		first := true
		for _, u := range valid {
			if u.TextStart >= sp.End || u.TextEnd <= sp.Start {
				continue
			}
			if first {
				timings[k].Start, timings[k].End = u.Start, u.End
				first = false
				continue
			}
			timings[k].Start = min(timings[k].Start, u.Start)
			timings[k].End = max(timings[k].End, u.End)
		}
		if !first {
			aligned[k] = true
			timings[k].Start = clamp(timings[k].Start, duration)
			timings[k].End = clamp(timings[k].End, duration)
		}
	}

	res.Fallback = !slices.Contains(aligned, true)
	res.Gaps = fillGaps(timings, aligned, duration)

	slices.SortStableFunc(timings, func(x, y types.TokenTiming) int {
		return cmp.Compare(x.Start, y.Start)
	})
	res.Timings = timings
	return res
}

// Resolve returns a copy of units in which every unit without offsets has
// been located in text. Units are consumed in order through a cursor; a unit
// with explicit offsets moves the cursor to its end. Units that cannot be
// placed (text exhausted) are dropped.
func (a *Aligner) Resolve(text string, units []types.TimingUnit) []types.TimingUnit {
	runes := []rune(text)
	out := make([]types.TimingUnit, 0, len(units))
	cursor := 0
	for _, u := range units {
		if u.HasOffsets {
			cursor = max(cursor, min(u.TextEnd, len(runes)))
			out = append(out, u)
			continue
		}
		n, ok := a.locate(runes[cursor:], u.Text)
		if !ok {
			continue
		}
		u.TextStart, u.TextEnd, u.HasOffsets = cursor, cursor+n, true
		cursor += n
		out = append(out, u)
	}
	return out
}

func (a *Aligner) locate(rest []rune, text string) (int, bool) {
	for _, s := range a.strategies {
		if n, ok := s.Match(rest, text); ok && n > 0 && n <= len(rest) {
			return n, true
		}
	}
	return 0, false
}

// fillGaps spreads the time between aligned neighbours evenly over each run of
// unaligned timings. It returns the number of gap entries filled.
func fillGaps(timings []types.TokenTiming, aligned []bool, duration float64) int {
	gaps := 0
	for i := 0; i < len(timings); {
		if aligned[i] {
			i++
			continue
		}
		j := i
		for j < len(timings) && !aligned[j] {
			j++
		}
		left, right := 0.0, duration
		if i > 0 {
			left = timings[i-1].End
		}
		if j < len(timings) {
			right = timings[j].Start
		}
		right = max(right, left)
		step := (right - left) / float64(j-i)
		for k := i; k < j; k++ {
			timings[k].Start = left + step*float64(k-i)
			timings[k].End = left + step*float64(k-i+1)
		}
		timings[j-1].End = right
		gaps += j - i
		i = j
	}
	return gaps
}

func clamp(v, duration float64) float64 {
	if v < 0 {
		return 0
	}
	if duration > 0 && v > duration {
		return duration
	}
	return v
}
