package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/bookparser/pkg/provider/analyzer"
	"github.com/MrWong99/bookparser/pkg/provider/dictionary"
	"github.com/MrWong99/bookparser/pkg/provider/llm"
	"github.com/MrWong99/bookparser/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	analyzer   map[string]func(ProviderEntry) (analyzer.Provider, error)
	dictionary map[string]func(ProviderEntry) (dictionary.Provider, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	tts        map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		analyzer:   make(map[string]func(ProviderEntry) (analyzer.Provider, error)),
		dictionary: make(map[string]func(ProviderEntry) (dictionary.Provider, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:        make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterAnalyzer registers a morphological analyser factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAnalyzer(name string, factory func(ProviderEntry) (analyzer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzer[name] = factory
}

// RegisterDictionary registers a dictionary factory under name.
func (r *Registry) RegisterDictionary(name string, factory func(ProviderEntry) (dictionary.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dictionary[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateAnalyzer instantiates an analyser using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateAnalyzer(entry ProviderEntry) (analyzer.Provider, error) {
	return create(r, r.analyzer, "analyzer", entry)
}

// CreateDictionary instantiates a dictionary using the factory registered under entry.Name.
func (r *Registry) CreateDictionary(entry ProviderEntry) (dictionary.Provider, error) {
	return create(r, r.dictionary, "dictionary", entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
