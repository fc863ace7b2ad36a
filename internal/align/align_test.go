package align_test

import (
	"math"
	"testing"

	"github.com/MrWong99/bookparser/internal/align"
	"github.com/MrWong99/bookparser/pkg/types"
)

func tok(surface string, cat types.Category) types.MergedToken {
	return types.FromRaw(types.RawUnit{Surface: surface, Category: cat})
}

func word(surface string) types.MergedToken { return tok(surface, types.CategoryNoun) }

func punct(surface string) types.MergedToken { return tok(surface, types.CategoryPunctuation) }

func implicit(start, end float64, text string) types.TimingUnit {
	return types.TimingUnit{Start: start, End: end, Text: text}
}

func explicit(start, end float64, from, to int) types.TimingUnit {
	return types.TimingUnit{Start: start, End: end, TextStart: from, TextEnd: to, HasOffsets: true}
}

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestAlign_MergedTokenSpansBothUnits(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{tok("食べた", types.CategoryVerb)}
	units := []types.TimingUnit{implicit(0.0, 0.5, "食べ"), implicit(0.5, 0.9, "た")}

	res := align.Align(tokens, units, 0)
	if len(res.Timings) != 1 {
		t.Fatalf("Timings: got %d, want 1", len(res.Timings))
	}
	got := res.Timings[0]
	if got.TokenIndex != 0 || !approx(got.Start, 0.0) || !approx(got.End, 0.9) {
		t.Errorf("timing = %+v, want {0 0.0 0.9}", got)
	}
	if res.Fallback || res.Gaps != 0 {
		t.Errorf("Fallback = %v Gaps = %d, want aligned result", res.Fallback, res.Gaps)
	}
	if !approx(res.Duration, 0.9) {
		t.Errorf("Duration = %v, want latest unit end 0.9", res.Duration)
	}
}

func TestAlign_EmptyUnitsEvenDistribution(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("猫"), word("が"), word("寝る")}
	res := align.Align(tokens, nil, 3.0)

	if !res.Fallback {
		t.Error("Fallback = false, want true")
	}
	if len(res.Timings) != 3 {
		t.Fatalf("Timings: got %d, want 3", len(res.Timings))
	}
	for i, tt := range res.Timings {
		if tt.TokenIndex != i {
			t.Errorf("entry %d: TokenIndex = %d", i, tt.TokenIndex)
		}
		if !approx(tt.End-tt.Start, 1.0) {
			t.Errorf("entry %d: span = %v, want 1.0", i, tt.End-tt.Start)
		}
		if i > 0 && !approx(tt.Start, res.Timings[i-1].End) {
			t.Errorf("entry %d: not contiguous with previous", i)
		}
	}
}

func TestAlign_NoTimelineCollapses(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("猫"), word("が"), punct("。")}
	res := align.Align(tokens, nil, 0)

	if res.Duration != 0 || !res.Fallback || len(res.Timings) != 2 {
		t.Fatalf("Align = %+v, want an empty fallback timeline over 2 tokens", res)
	}
	for i, tt := range res.Timings {
		if tt.TokenIndex != i || tt.Start != 0 || tt.End != 0 {
			t.Errorf("entry %d = %+v, want [0,0] for token %d", i, tt, i)
		}
	}
}

func TestAlign_NominalTokenDuration(t *testing.T) {
	t.Parallel()

	a := align.New(align.WithNominalTokenDuration(0.25))
	tokens := []types.MergedToken{word("猫"), punct("、"), word("が"), word("寝る")}

	res := a.Align(tokens, nil, 0)
	if !approx(res.Duration, 0.75) {
		t.Fatalf("Duration = %v, want 0.75", res.Duration)
	}
	for i, want := range []int{0, 2, 3} {
		tt := res.Timings[i]
		if tt.TokenIndex != want || !approx(tt.Start, 0.25*float64(i)) || !approx(tt.End, 0.25*float64(i+1)) {
			t.Errorf("entry %d = %+v", i, tt)
		}
	}

	// A known length wins over the nominal one.
	if res := a.Align(tokens, nil, 3); !approx(res.Duration, 3) {
		t.Errorf("Duration with explicit length = %v, want 3", res.Duration)
	}
	if res := a.Align(tokens, []types.TimingUnit{implicit(0, 0.4, "猫")}, 0); !approx(res.Duration, 0.4) {
		t.Errorf("Duration from units = %v, want 0.4", res.Duration)
	}
}

func TestAlign_PunctuationExcludedButCounted(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{punct("「"), word("猫"), punct("」"), word("だ")}
	units := []types.TimingUnit{explicit(0.1, 0.4, 1, 2), explicit(0.4, 0.7, 3, 4)}

	res := align.Align(tokens, units, 1.0)
	if len(res.Timings) != 2 {
		t.Fatalf("Timings: got %d entries, want 2", len(res.Timings))
	}
	if res.Timings[0].TokenIndex != 1 || !approx(res.Timings[0].Start, 0.1) || !approx(res.Timings[0].End, 0.4) {
		t.Errorf("first = %+v", res.Timings[0])
	}
	if res.Timings[1].TokenIndex != 3 || !approx(res.Timings[1].Start, 0.4) || !approx(res.Timings[1].End, 0.7) {
		t.Errorf("second = %+v", res.Timings[1])
	}
}

func TestAlign_GapBetweenNeighbours(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("あ"), word("い"), word("う"), word("え")}
	units := []types.TimingUnit{explicit(0, 1, 0, 1), explicit(3, 4, 3, 4)}

	res := align.Align(tokens, units, 4)
	if res.Gaps != 2 {
		t.Errorf("Gaps = %d, want 2", res.Gaps)
	}
	want := [][2]float64{{0, 1}, {1, 2}, {2, 3}, {3, 4}}
	for i, w := range want {
		got := res.Timings[i]
		if !approx(got.Start, w[0]) || !approx(got.End, w[1]) {
			t.Errorf("entry %d = [%v, %v], want %v", i, got.Start, got.End, w)
		}
	}
}

func TestAlign_TrailingGapUsesDuration(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("あ"), word("い")}
	res := align.Align(tokens, []types.TimingUnit{explicit(0, 1, 0, 1)}, 2)
	last := res.Timings[1]
	if !approx(last.Start, 1) || !approx(last.End, 2) {
		t.Errorf("trailing gap = [%v, %v], want [1, 2]", last.Start, last.End)
	}
}

func TestAlign_NormalizedMatch(t *testing.T) {
	t.Parallel()

	// Speech engines report katakana mora text for a hiragana sentence.
	tokens := []types.MergedToken{word("たべ"), word("る")}
	units := []types.TimingUnit{implicit(0, 0.2, "タ"), implicit(0.2, 0.4, "ベ"), implicit(0.4, 0.6, "ル")}

	res := align.Align(tokens, units, 0)
	if res.Gaps != 0 {
		t.Fatalf("Gaps = %d, want 0", res.Gaps)
	}
	if !approx(res.Timings[0].End, 0.4) || !approx(res.Timings[1].Start, 0.4) {
		t.Errorf("timings = %+v", res.Timings)
	}
}

func TestAlign_SingleCharFallback(t *testing.T) {
	t.Parallel()

	// Mora text never matches kanji; each unit then covers one character.
	tokens := []types.MergedToken{word("猫"), word("犬")}
	units := []types.TimingUnit{implicit(0, 0.3, "ネ"), implicit(0.3, 0.6, "イ")}

	res := align.Align(tokens, units, 0)
	if !approx(res.Timings[0].End, 0.3) || !approx(res.Timings[1].Start, 0.3) || !approx(res.Timings[1].End, 0.6) {
		t.Errorf("timings = %+v", res.Timings)
	}
}

func TestAlign_MalformedUnitsDropped(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("あ"), word("い")}
	units := []types.TimingUnit{
		explicit(math.NaN(), 1, 0, 1),
		explicit(2, 1, 1, 2),
		explicit(-1, 0.5, 0, 1),
	}

	res := align.Align(tokens, units, 2)
	if res.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", res.Dropped)
	}
	if !res.Fallback {
		t.Error("Fallback = false, want true when every unit is malformed")
	}
	if len(res.Timings) != 2 || !approx(res.Timings[1].End, 2) {
		t.Errorf("timings = %+v, want even distribution over 2s", res.Timings)
	}
}

func TestAlign_ClampsToDuration(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{word("あ")}
	res := align.Align(tokens, []types.TimingUnit{explicit(0.5, 5, 0, 1)}, 2)
	if !approx(res.Timings[0].End, 2) {
		t.Errorf("End = %v, want clamped to 2", res.Timings[0].End)
	}
}

func TestAlign_MonotonicAndCovering(t *testing.T) {
	t.Parallel()

	tokens := []types.MergedToken{
		word("今日"), word("は"), punct("、"), tok("晴れています", types.CategoryVerb), punct("。"), punct("」"),
	}
	units := []types.TimingUnit{
		implicit(0, 0.2, "キョ"), implicit(0.2, 0.4, "ウ"), implicit(0.4, 0.5, "ワ"),
		implicit(0.6, 0.7, "ハ"), implicit(0.7, 0.8, "レ"), implicit(0.8, 0.9, "テ"),
		implicit(0.9, 1.0, "イ"), implicit(1.0, 1.1, "マ"), implicit(1.1, 1.3, "ス"),
	}

	res := align.Align(tokens, units, 1.5)
	seen := map[int]bool{}
	for i, tt := range res.Timings {
		if seen[tt.TokenIndex] {
			t.Errorf("duplicate TokenIndex %d", tt.TokenIndex)
		}
		seen[tt.TokenIndex] = true
		if i > 0 && tt.Start < res.Timings[i-1].Start {
			t.Errorf("entry %d starts before entry %d", i, i-1)
		}
		if tt.End < tt.Start {
			t.Errorf("entry %d reversed: %+v", i, tt)
		}
	}
	for i, tk := range tokens {
		if tk.IsPunctuation() == seen[i] {
			t.Errorf("token %d (%q): covered = %v", i, tk.Surface, seen[i])
		}
	}
}

func TestResolve_ExplicitOffsetsAdvanceCursor(t *testing.T) {
	t.Parallel()

	a := align.New()
	got := a.Resolve("あいう", []types.TimingUnit{explicit(0, 1, 0, 2), implicit(1, 2, "う")})
	if len(got) != 2 {
		t.Fatalf("Resolve: got %d units, want 2", len(got))
	}
	if got[1].TextStart != 2 || got[1].TextEnd != 3 {
		t.Errorf("implicit unit placed at [%d, %d), want [2, 3)", got[1].TextStart, got[1].TextEnd)
	}
}

func TestResolve_ExhaustedTextDropsUnits(t *testing.T) {
	t.Parallel()

	a := align.New()
	got := a.Resolve("あ", []types.TimingUnit{implicit(0, 1, "あ"), implicit(1, 2, "い")})
	if len(got) != 1 {
		t.Errorf("Resolve: got %d units, want 1", len(got))
	}
}

type firstTwo struct{}

func (firstTwo) Name() string { return "first-two" }

func (firstTwo) Match(rest []rune, _ string) (int, bool) {
	if len(rest) < 2 {
		return 0, false
	}
	return 2, true
}

func TestWithStrategies(t *testing.T) {
	t.Parallel()

	a := align.New(align.WithStrategies(firstTwo{}, align.SingleCharMatch{}))
	got := a.Resolve("あいう", []types.TimingUnit{implicit(0, 1, "x"), implicit(1, 2, "y")})
	if len(got) != 2 || got[0].TextEnd != 2 || got[1].TextEnd != 3 {
		t.Errorf("Resolve = %+v", got)
	}
}

func TestStrategies(t *testing.T) {
	t.Parallel()

	rest := []rune("カタカナです")
	tests := []struct {
		name   string
		s      align.MatchStrategy
		text   string
		want   int
		wantOK bool
	}{
		{"exact hit", align.ExactMatch{}, "カタ", 2, true},
		{"exact miss", align.ExactMatch{}, "かた", 0, false},
		{"exact empty", align.ExactMatch{}, "", 0, false},
		{"normalized hiragana", align.NormalizedMatch{MaxLookahead: 3}, "かたか", 3, true},
		{"normalized beyond look-ahead", align.NormalizedMatch{MaxLookahead: 3}, "かたかな", 0, false},
		{"single char", align.SingleCharMatch{}, "zzz", 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n, ok := tc.s.Match(rest, tc.text)
			if n != tc.want || ok != tc.wantOK {
				t.Errorf("%s.Match(%q) = (%d, %v), want (%d, %v)", tc.s.Name(), tc.text, n, ok, tc.want, tc.wantOK)
			}
		})
	}
}
