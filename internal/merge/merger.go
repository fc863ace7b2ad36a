// Package merge turns the morpheme stream of the analyser into linguistically
// coherent tokens.
//
// Three passes run in a fixed order:
//
//  1. [CoalescePunctuation] folds runs of punctuation (when enabled).
//  2. [DetectCompounds] joins verb+verb compounds (opt-in).
//  3. [MergeInflections] folds each verb with its auxiliaries, endings and
//     verb-attaching particles.
//
// Every pass is pure and conserves text: the concatenated surfaces of the
// output always equal those of the input.
package merge

import (
	"fmt"

	"github.com/MrWong99/bookparser/pkg/types"
)

// Merger runs the merge passes under a frozen configuration. A Merger is
// immutable and safe for concurrent use.
type Merger struct {
	cfg Config
}

// New validates cfg and returns a Merger holding a private copy of it.
func New(cfg Config) (*Merger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("merge: invalid config: %w", err)
	}
	return &Merger{cfg: cfg.clone()}, nil
}

// Config returns a copy of the configuration the Merger was built with.
func (m *Merger) Config() Config {
	return m.cfg.clone()
}

// Merge runs all enabled passes over units.
func (m *Merger) Merge(units []types.RawUnit) []types.MergedToken {
	return m.MergeTokens(types.FromRawUnits(units))
}

// MergeTokens runs all enabled passes over already wrapped tokens. The input
// slice is not modified.
func (m *Merger) MergeTokens(tokens []types.MergedToken) []types.MergedToken {
	if m.cfg.MergePunctuation {
		tokens = CoalescePunctuation(tokens)
	}
	if m.cfg.UseCompoundDetection {
		tokens = DetectCompounds(tokens)
	}
	return MergeInflections(tokens, m.cfg)
}

// Stats counts tokens by merge reason.
type Stats map[types.MergeReason]int

// Count tallies the merge reasons of tokens.
func Count(tokens []types.MergedToken) Stats {
	s := make(Stats)
	for _, t := range tokens {
		s[t.MergeReason]++
	}
	return s
}
