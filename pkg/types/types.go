// Package types defines the token and timing types shared by every bookparser
// package.
//
// These types are the lingua franca between the analyser, the merge passes, the
// enricher and the timing aligner. Each package defines its own domain types,
// but cross-cutting data structures live here to avoid circular imports.
package types

import "unicode/utf8"

// Category is the coarse grammatical category of a token.
type Category string

const (
	CategoryNoun          Category = "noun"
	CategoryVerb          Category = "verb"
	CategoryAdjective     Category = "adjective"
	CategoryAdverb        Category = "adverb"
	CategoryParticle      Category = "particle"
	CategoryAuxiliaryVerb Category = "auxiliary-verb"
	CategoryPunctuation   Category = "punctuation"
	CategoryOther         Category = "other"
)

// IsContent reports whether c counts as a "word" in sentence statistics.
func (c Category) IsContent() bool {
	switch c {
	case CategoryNoun, CategoryVerb, CategoryAdjective, CategoryAdverb:
		return true
	}
	return false
}

// Well-known sub-category values. The analyser may emit others verbatim.
const (
	SubIndependent        = "independent"
	SubDependent          = "dependent"
	SubSuffix             = "suffix"
	SubConnectiveParticle = "connective-particle"
	SubCaseParticle       = "case-particle"
)

// Detail records which merge pass produced a token.
type Detail string

const (
	DetailNone              Detail = ""
	DetailMergedPunctuation Detail = "merged-punctuation"
	DetailInflected         Detail = "inflected"
	DetailCompound          Detail = "compound"
)

// MergeReason is the machine-readable cause of a merge.
type MergeReason string

const (
	ReasonNone                MergeReason = "none"
	ReasonPunctuationSequence MergeReason = "punctuation-sequence"
	ReasonVerbInflection      MergeReason = "verb-inflection-complete"
	ReasonCompoundVerb        MergeReason = "compound-verb-pattern"
)

// RawUnit is one morpheme as emitted by the analyser. RawUnits are treated as
// immutable once produced.
type RawUnit struct {
	Surface       string   `json:"surface"`
	Reading       string   `json:"reading"`
	Category      Category `json:"category"`
	SubCategory   string   `json:"subCategory,omitempty"`
	BaseForm      string   `json:"baseForm"`
	Pronunciation string   `json:"pronunciation,omitempty"`
}

// ReadingOrSurface returns the reading, or the surface when the analyser had
// no reading for the unit.
func (u RawUnit) ReadingOrSurface() string {
	if u.Reading != "" {
		return u.Reading
	}
	return u.Surface
}

// BaseFormOrSurface returns the base form, or the surface when unknown.
func (u RawUnit) BaseFormOrSurface() string {
	if u.BaseForm != "" {
		return u.BaseForm
	}
	return u.Surface
}

// MergedToken is the unit of output of the merge pipeline. It owns its
// Constituents: merge passes always build a fresh slice, so mutating one
// token's constituents never affects another token.
type MergedToken struct {
	Surface       string   `json:"surface"`
	Reading       string   `json:"reading"`
	Category      Category `json:"category"`
	SubCategory   string   `json:"subCategory,omitempty"`
	Detail        Detail   `json:"detail,omitempty"`
	BaseForm      string   `json:"baseForm"`
	Pronunciation string   `json:"pronunciation,omitempty"`

	// Constituents are the source units in order. An unmerged token carries
	// exactly its own source unit.
	Constituents []RawUnit `json:"constituents"`

	MergeReason     MergeReason `json:"mergeReason"`
	InflectionCount int         `json:"inflectionCount"`
}

// FromRaw wraps a single RawUnit as an unmerged token.
func FromRaw(u RawUnit) MergedToken {
	return MergedToken{
		Surface:       u.Surface,
		Reading:       u.Reading,
		Category:      u.Category,
		SubCategory:   u.SubCategory,
		BaseForm:      u.BaseForm,
		Pronunciation: u.Pronunciation,
		Constituents:  []RawUnit{u},
		MergeReason:   ReasonNone,
	}
}

// FromRawUnits wraps every unit with [FromRaw].
func FromRawUnits(units []RawUnit) []MergedToken {
	out := make([]MergedToken, len(units))
	for i, u := range units {
		out[i] = FromRaw(u)
	}
	return out
}

// ReadingOrSurface returns the reading, or the surface when it is empty.
func (t MergedToken) ReadingOrSurface() string {
	if t.Reading != "" {
		return t.Reading
	}
	return t.Surface
}

// RuneLen is the length of the surface in code points.
func (t MergedToken) RuneLen() int {
	return utf8.RuneCountInString(t.Surface)
}

// IsPunctuation reports whether the token is punctuation.
func (t MergedToken) IsPunctuation() bool {
	return t.Category == CategoryPunctuation
}

// Text concatenates the surfaces of tokens.
func Text(tokens []MergedToken) string {
	n := 0
	for _, t := range tokens {
		n += len(t.Surface)
	}
	b := make([]byte, 0, n)
	for _, t := range tokens {
		b = append(b, t.Surface...)
	}
	return string(b)
}

// Unavailable is the sentinel stored in enrichment fields that have no value.
const Unavailable = "N/A"

// TranslationSource records where a token's translation came from.
type TranslationSource string

const (
	SourceNone          TranslationSource = "none"
	SourceDictionary    TranslationSource = "dictionary"
	SourceLanguageModel TranslationSource = "language-model"
)

// EnrichedToken is a MergedToken with translation metadata attached.
// Enrichment fields never hold the empty string; missing values are
// [Unavailable].
type EnrichedToken struct {
	MergedToken

	Translation       string            `json:"translation"`
	ContextualMeaning string            `json:"contextualMeaning"`
	GrammaticalRole   string            `json:"grammaticalRole"`
	TranslationSource TranslationSource `json:"translationSource"`
}

// NewEnrichedToken returns t with every enrichment field set to [Unavailable].
func NewEnrichedToken(t MergedToken) EnrichedToken {
	return EnrichedToken{
		MergedToken:       t,
		Translation:       Unavailable,
		ContextualMeaning: Unavailable,
		GrammaticalRole:   Unavailable,
		TranslationSource: SourceNone,
	}
}
