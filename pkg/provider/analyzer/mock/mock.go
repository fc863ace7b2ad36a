// Package mock provides a test double for the analyzer.Provider interface.
//
// Results are looked up by exact sentence text first; Units is the fallback
// for any other input. All fields are safe to set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/bookparser/pkg/provider/analyzer"
	"github.com/MrWong99/bookparser/pkg/types"
)

// AnalyzeCall records a single invocation of Analyze.
type AnalyzeCall struct {
	Text string
}

// Provider is a mock implementation of analyzer.Provider.
type Provider struct {
	mu sync.Mutex

	// BySentence maps exact input text to the units returned for it.
	BySentence map[string][]types.RawUnit

	// Units is returned for text not present in BySentence.
	Units []types.RawUnit

	// Err, if non-nil, is returned from every Analyze call.
	Err error

	// Calls records every invocation of Analyze in order.
	Calls []AnalyzeCall
}

var _ analyzer.Provider = (*Provider)(nil)

// Analyze implements analyzer.Provider.
func (p *Provider) Analyze(_ context.Context, text string) ([]types.RawUnit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, AnalyzeCall{Text: text})
	if p.Err != nil {
		return nil, p.Err
	}
	if units, ok := p.BySentence[text]; ok {
		return append([]types.RawUnit(nil), units...), nil
	}
	return append([]types.RawUnit(nil), p.Units...), nil
}

// CallCount returns the number of Analyze calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
