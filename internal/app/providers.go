package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/bookparser/internal/config"
	"github.com/MrWong99/bookparser/internal/resilience"
	"github.com/MrWong99/bookparser/pkg/provider/analyzer"
	"github.com/MrWong99/bookparser/pkg/provider/analyzer/kagome"
	"github.com/MrWong99/bookparser/pkg/provider/dictionary"
	"github.com/MrWong99/bookparser/pkg/provider/dictionary/jmdict"
	"github.com/MrWong99/bookparser/pkg/provider/llm"
	"github.com/MrWong99/bookparser/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/bookparser/pkg/provider/llm/openai"
	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/bookparser/pkg/provider/tts/voicevox"
)

const defaultVoicevoxURL = "http://localhost:50021"

// Providers holds one interface value per collaborator. Nil LLM or TTS means
// the feature is not configured; Analyzer is required.
type Providers struct {
	Analyzer   analyzer.Provider
	Dictionary dictionary.Provider
	LLM        llm.Provider
	TTS        tts.Provider
}

// RegisterBuiltinProviders wires the factories of every provider that ships
// with bookparser into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterAnalyzer("kagome", func(config.ProviderEntry) (analyzer.Provider, error) {
		return kagome.New()
	})

	reg.RegisterDictionary("jmdict", func(entry config.ProviderEntry) (dictionary.Provider, error) {
		var opts []jmdict.Option
		if n, ok := entry.Options["limit"].(int); ok {
			opts = append(opts, jmdict.WithLimit(n))
		}
		return jmdict.Open(entry.Option("path"), opts...)
	})

	// These share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// Any server speaking the OpenAI chat API (vLLM, LM Studio, Ollama's /v1).
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("voicevox", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []voicevox.Option
		if speaker := entry.Option("default_speaker"); speaker != "" {
			opts = append(opts, voicevox.WithDefaultSpeaker(speaker))
		}
		if d, err := time.ParseDuration(entry.Option("timeout")); err == nil && d > 0 {
			opts = append(opts, voicevox.WithTimeout(d))
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = defaultVoicevoxURL
		}
		return voicevox.New(baseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.Option("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// BuildProviders instantiates every provider named in cfg using reg. The
// language model and speech engine are always wrapped in a fallback chain so
// their backends sit behind circuit breakers, even without fallbacks.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	p := cfg.Providers

	an, err := reg.CreateAnalyzer(p.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("app: create analyzer %q: %w", p.Analyzer.Name, err)
	}
	ps.Analyzer = an
	slog.Info("provider created", "kind", "analyzer", "name", p.Analyzer.Name)

	if name := p.Dictionary.Name; name != "" {
		d, err := reg.CreateDictionary(p.Dictionary)
		if err != nil {
			return nil, fmt.Errorf("app: create dictionary %q: %w", name, err)
		}
		ps.Dictionary = d
		slog.Info("provider created", "kind", "dictionary", "name", name)
	}

	if name := p.LLM.Name; name != "" {
		primary, err := reg.CreateLLM(p.LLM)
		if err != nil {
			return nil, fmt.Errorf("app: create llm %q: %w", name, err)
		}
		fb := resilience.NewLLMFallback(primary, entryName(p.LLM), resilience.FallbackConfig{})
		for _, e := range p.LLMFallbacks {
			alt, err := reg.CreateLLM(e)
			if err != nil {
				if errors.Is(err, config.ErrProviderNotRegistered) {
					slog.Warn("skipping unknown llm fallback", "name", e.Name)
					continue
				}
				return nil, fmt.Errorf("app: create llm fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(entryName(e), alt)
		}
		ps.LLM = fb
		slog.Info("provider created", "kind", "llm", "name", name, "model", p.LLM.Model, "fallbacks", len(p.LLMFallbacks))
	}

	if name := p.TTS.Name; name != "" {
		primary, err := reg.CreateTTS(p.TTS)
		if err != nil {
			return nil, fmt.Errorf("app: create tts %q: %w", name, err)
		}
		fb := resilience.NewTTSFallback(primary, entryName(p.TTS), resilience.FallbackConfig{})
		for _, e := range p.TTSFallbacks {
			alt, err := reg.CreateTTS(e)
			if err != nil {
				if errors.Is(err, config.ErrProviderNotRegistered) {
					slog.Warn("skipping unknown tts fallback", "name", e.Name)
					continue
				}
				return nil, fmt.Errorf("app: create tts fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(entryName(e), alt)
		}
		ps.TTS = fb
		slog.Info("provider created", "kind", "tts", "name", name, "fallbacks", len(p.TTSFallbacks))
	}

	return ps, nil
}

// entryName labels a backend in breaker logs and status reports.
func entryName(e config.ProviderEntry) string {
	if e.Model != "" {
		return e.Name + "/" + e.Model
	}
	return e.Name
}
