// Package dictionary defines the Provider interface for bilingual dictionary
// lookups and the entry type shared by its implementations.
//
// Implementations must be safe for concurrent use.
package dictionary

import (
	"context"
	"strings"
)

// Sense is one meaning of an entry.
type Sense struct {
	PartOfSpeech []string `json:"partOfSpeech,omitempty"`
	Glosses      []string `json:"glosses"`
}

// Entry is one dictionary headword with its senses.
type Entry struct {
	ID       string   `json:"id"`
	Kanji    []string `json:"kanji,omitempty"`
	Readings []string `json:"readings"`
	Senses   []Sense  `json:"senses"`

	// Common marks entries flagged as common words by the dictionary.
	Common bool `json:"common,omitempty"`

	// Source names the dictionary the entry came from.
	Source string `json:"source"`
}

// Meanings joins the glosses of each sense with ", " and the senses with "; ".
// Senses without glosses are skipped.
func (e Entry) Meanings() string {
	parts := make([]string, 0, len(e.Senses))
	for _, s := range e.Senses {
		if len(s.Glosses) == 0 {
			continue
		}
		parts = append(parts, strings.Join(s.Glosses, ", "))
	}
	return strings.Join(parts, "; ")
}

// Provider is the abstraction over any dictionary backend.
type Provider interface {
	// Lookup returns candidate entries for a token, best match first. It
	// searches by surface and falls back to the reading when the surface
	// yields nothing. An empty result with a nil error means no match.
	Lookup(ctx context.Context, surface, reading string) ([]Entry, error)
}
