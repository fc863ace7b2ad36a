// Package analyzer defines the Provider interface for morphological analysers.
//
// An analyser splits Japanese sentence text into morphemes and classifies
// each one with a coarse category, an optional sub-category, a reading and a
// dictionary base form. The merge passes depend only on this interface.
//
// Implementations must be safe for concurrent use.
package analyzer

import (
	"context"

	"github.com/MrWong99/bookparser/pkg/types"
)

// Provider is the abstraction over any morphological analyser.
type Provider interface {
	// Analyze returns the morphemes of text in order. The concatenated
	// surfaces of the result must equal text; whitespace is kept as its own
	// unit rather than dropped.
	//
	// Returns an error if the analyser is unavailable or ctx is cancelled.
	Analyze(ctx context.Context, text string) ([]types.RawUnit, error)
}
