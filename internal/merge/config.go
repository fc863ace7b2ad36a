package merge

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/bookparser/pkg/types"
)

// Predicate decides whether next continues the verb group started by head.
// Predicates must be pure.
type Predicate func(next, head types.MergedToken) bool

// Config selects which merge rules are active. The zero value disables every
// rule; use [DefaultConfig] for the usual behaviour.
type Config struct {
	// MergeAuxiliaryVerbs absorbs auxiliary-verb tokens and auxiliary
	// patterns (いる, しまう, ...) into the preceding verb.
	MergeAuxiliaryVerbs bool `json:"mergeAuxiliaryVerbs" yaml:"merge_auxiliary_verbs"`

	// MergeVerbParticles absorbs particles from the verb-particle whitelist.
	MergeVerbParticles bool `json:"mergeVerbParticles" yaml:"merge_verb_particles"`

	// MergeVerbSuffixes absorbs verb tokens with the suffix sub-category.
	MergeVerbSuffixes bool `json:"mergeVerbSuffixes" yaml:"merge_verb_suffixes"`

	// MergeAllInflections absorbs any surface in the inflection-ending set.
	MergeAllInflections bool `json:"mergeAllInflections" yaml:"merge_all_inflections"`

	// MergePunctuation coalesces runs of punctuation.
	MergePunctuation bool `json:"mergePunctuation" yaml:"merge_punctuation"`

	// UseCompoundDetection enables the verb+verb pre-pass.
	UseCompoundDetection bool `json:"useCompoundDetection" yaml:"use_compound_detection"`

	// CustomPredicates are tested after the built-in rules, in order.
	CustomPredicates []Predicate `json:"-" yaml:"-"`
}

// DefaultConfig enables every rule except compound detection.
func DefaultConfig() Config {
	return Config{
		MergeAuxiliaryVerbs: true,
		MergeVerbParticles:  true,
		MergeVerbSuffixes:   true,
		MergeAllInflections: true,
		MergePunctuation:    true,
	}
}

// Validate reports configuration errors. A configuration with every toggle
// disabled is valid.
func (c Config) Validate() error {
	var errs []error
	for i, p := range c.CustomPredicates {
		if p == nil {
			errs = append(errs, fmt.Errorf("merge: custom predicate %d is nil", i))
		}
	}
	return errors.Join(errs...)
}

// clone returns a copy of c that shares no slices with the caller.
func (c Config) clone() Config {
	c.CustomPredicates = slices.Clone(c.CustomPredicates)
	return c
}
