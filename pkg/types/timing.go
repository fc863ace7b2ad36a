package types

import "math"

// TimingUnit is one phonetic fragment reported by a speech synthesiser:
// a mora, a character, or whatever granularity the engine exposes.
//
// When HasOffsets is true, TextStart and TextEnd are code-point offsets into
// the sentence text. Otherwise the aligner locates Text itself.
type TimingUnit struct {
	// Start and End are seconds from the beginning of the audio.
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`

	Text string `json:"text"`

	TextStart  int  `json:"textStart"`
	TextEnd    int  `json:"textEnd"`
	HasOffsets bool `json:"hasOffsets"`
}

// Valid reports whether the unit has usable times: finite, non-negative and
// not reversed.
func (u TimingUnit) Valid() bool {
	if math.IsNaN(u.Start) || math.IsNaN(u.End) || math.IsInf(u.Start, 0) || math.IsInf(u.End, 0) {
		return false
	}
	if u.Start < 0 || u.End < u.Start {
		return false
	}
	if u.HasOffsets && (u.TextStart < 0 || u.TextEnd < u.TextStart) {
		return false
	}
	return true
}

// TokenTiming is the playback interval of one token. TokenIndex is the index
// of the token in the full merged token sequence.
type TokenTiming struct {
	TokenIndex int     `json:"tokenIndex"`
	Start      float64 `json:"startTime"`
	End        float64 `json:"endTime"`
}
