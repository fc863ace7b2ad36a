// Package mock provides a test double for the dictionary.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/bookparser/pkg/provider/dictionary"
)

// LookupCall records a single invocation of Lookup.
type LookupCall struct {
	Surface string
	Reading string
}

// Provider is a mock implementation of dictionary.Provider. Entries are keyed
// by surface first, then by reading.
type Provider struct {
	mu sync.Mutex

	// Entries maps a surface or reading to the entries returned for it.
	Entries map[string][]dictionary.Entry

	// Err, if non-nil, is returned from every Lookup call.
	Err error

	// Calls records every invocation of Lookup in order.
	Calls []LookupCall
}

var _ dictionary.Provider = (*Provider)(nil)

// Lookup implements dictionary.Provider.
func (p *Provider) Lookup(_ context.Context, surface, reading string) ([]dictionary.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, LookupCall{Surface: surface, Reading: reading})
	if p.Err != nil {
		return nil, p.Err
	}
	if e, ok := p.Entries[surface]; ok {
		return e, nil
	}
	return p.Entries[reading], nil
}

// CallCount returns the number of Lookup calls so far.
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

// Entry is a convenience constructor for a single-sense entry.
func Entry(id string, glosses ...string) dictionary.Entry {
	return dictionary.Entry{
		ID:     id,
		Senses: []dictionary.Sense{{Glosses: glosses}},
		Source: "mock",
	}
}
