package config

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/bookparser/internal/enrich"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":5000"
	DefaultAnalyzer    = "kagome"
	DefaultBooksDir    = "books"
	DefaultConcurrency = 4
	DefaultServiceName = "bookparser"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"analyzer":   {"kagome"},
	"dictionary": {"jmdict"},
	"llm":        {"openai", "openai-compatible", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"voicevox", "elevenlabs"},
}

// LookupEnv has the signature of [os.LookupEnv].
type LookupEnv func(key string) (string, bool)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := load(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, nil)
}

// LoadFromEnv builds a config from defaults and the environment variables
// read by [ApplyEnv] alone, for deployments without a config file.
func LoadFromEnv(env LookupEnv) (*Config, error) {
	return load(strings.NewReader(""), env)
}

func load(r io.Reader, env LookupEnv) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if env != nil {
		if err := ApplyEnv(cfg, env); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the deployment environment variables onto cfg:
//
//	PORT                          server.listen_addr (":" + PORT)
//	BOOKS_DIR                     books.dir
//	BOOKPARSER_OLLAMA_HOST        providers.llm (ollama at host:port)
//	BOOKPARSER_OLLAMA_PORT        default 11434
//	BOOKPARSER_OLLAMA_MODEL       providers.llm.model
//	BOOKPARSER_OLLAMA_TIMEOUT     enrichment.llm_timeout, in milliseconds
//	BOOKPARSER_OLLAMA_MAX_TOKENS  enrichment.max_tokens
//	VOICEVOX_HOST                 providers.tts (voicevox at host:port)
//	VOICEVOX_PORT                 default 50021
//	VOICEVOX_DEFAULT_SPEAKER      providers.tts default speaker and speech.voice
func ApplyEnv(cfg *Config, env LookupEnv) error {
	get := func(key string) string {
		v, _ := env(key)
		return v
	}
	var errs []error
	atoi := func(key string) (int, bool) {
		v := get(key)
		if v == "" {
			return 0, false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return 0, false
		}
		return n, true
	}

	if port := get("PORT"); port != "" {
		cfg.Server.ListenAddr = ":" + port
	}
	if dir := get("BOOKS_DIR"); dir != "" {
		cfg.Books.Dir = dir
	}

	if host := get("BOOKPARSER_OLLAMA_HOST"); host != "" {
		port := cmp.Or(get("BOOKPARSER_OLLAMA_PORT"), "11434")
		cfg.Providers.LLM.Name = "ollama"
		cfg.Providers.LLM.BaseURL = "http://" + host + ":" + port
	}
	if cfg.Providers.LLM.Name == "ollama" {
		if model := get("BOOKPARSER_OLLAMA_MODEL"); model != "" {
			cfg.Providers.LLM.Model = model
		}
	}
	if ms, ok := atoi("BOOKPARSER_OLLAMA_TIMEOUT"); ok {
		cfg.Enrichment.LLMTimeout = time.Duration(ms) * time.Millisecond
	}
	if n, ok := atoi("BOOKPARSER_OLLAMA_MAX_TOKENS"); ok {
		cfg.Enrichment.MaxTokens = n
	}

	if host := get("VOICEVOX_HOST"); host != "" {
		port := cmp.Or(get("VOICEVOX_PORT"), "50021")
		cfg.Providers.TTS.Name = "voicevox"
		cfg.Providers.TTS.BaseURL = "http://" + host + ":" + port
	}
	if speaker := get("VOICEVOX_DEFAULT_SPEAKER"); speaker != "" {
		if cfg.Providers.TTS.Options == nil {
			cfg.Providers.TTS.Options = make(map[string]any)
		}
		cfg.Providers.TTS.Options["default_speaker"] = speaker
		if cfg.Speech.Voice == "" {
			cfg.Speech.Voice = speaker
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Analyzer.Name == "" {
		cfg.Providers.Analyzer.Name = DefaultAnalyzer
	}
	if cfg.Enrichment.Mode == "" {
		cfg.Enrichment.Mode = enrich.ModeEnhanced
	}
	if cfg.Books.Backend == "" {
		cfg.Books.Backend = BookBackendFile
	}
	if cfg.Books.Backend == BookBackendFile && cfg.Books.Dir == "" {
		cfg.Books.Dir = DefaultBooksDir
	}
	if cfg.Processing.Concurrency == 0 {
		cfg.Processing.Concurrency = DefaultConcurrency
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	p := cfg.Providers
	if p.Analyzer.Name == "" {
		errs = append(errs, errors.New("providers.analyzer.name is required"))
	}
	validateProviderName("analyzer", p.Analyzer.Name)
	validateProviderName("dictionary", p.Dictionary.Name)
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("tts", p.TTS.Name)
	if p.Dictionary.Name == "jmdict" && p.Dictionary.Option("path") == "" {
		errs = append(errs, errors.New("providers.dictionary.options.path is required for jmdict"))
	}
	for i, e := range p.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	if len(p.LLMFallbacks) > 0 && p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	for i, e := range p.TTSFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", e.Name)
	}
	if len(p.TTSFallbacks) > 0 && p.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}

	// Enrichment
	en := cfg.Enrichment
	if en.Mode != "" && !en.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("enrichment.mode %q is invalid; valid values: enhanced, local", en.Mode))
	}
	if en.LLMTimeout < 0 {
		errs = append(errs, fmt.Errorf("enrichment.llm_timeout %s must not be negative", en.LLMTimeout))
	}
	if en.Temperature < 0 || en.Temperature > 2 {
		errs = append(errs, fmt.Errorf("enrichment.temperature %.2f is out of range [0, 2]", en.Temperature))
	}
	if en.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("enrichment.max_tokens %d must not be negative", en.MaxTokens))
	}
	if en.Mode == enrich.ModeEnhanced && p.LLM.Name == "" {
		slog.Warn("enrichment.mode is enhanced but providers.llm is not configured; sentences will use the dictionary only")
	}
	if p.Dictionary.Name == "" {
		slog.Warn("providers.dictionary is not configured; tokens without a model gloss will have no translation")
	}

	// Speech
	if s := cfg.Speech.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("speech.speed %.2f is out of range [0.5, 2.0]", s))
	}
	if v := cfg.Speech.Volume; v < 0 || v > 2.0 {
		errs = append(errs, fmt.Errorf("speech.volume %.2f is out of range [0, 2.0]", v))
	}

	// Books
	b := cfg.Books
	if b.Backend != "" && !b.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("books.backend %q is invalid; valid values: file, postgres", b.Backend))
	}
	if b.Backend == BookBackendPostgres && b.PostgresDSN == "" {
		errs = append(errs, errors.New("books.postgres_dsn is required when books.backend is postgres"))
	}
	if b.Backend == BookBackendFile && b.Dir == "" {
		errs = append(errs, errors.New("books.dir is required when books.backend is file"))
	}

	// Processing
	if cfg.Processing.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("processing.concurrency %d must not be negative", cfg.Processing.Concurrency))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
