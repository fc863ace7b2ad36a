package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/bookparser/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: loud\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "jmdict without path",
			yaml:    "providers:\n  dictionary:\n    name: jmdict\n",
			wantErr: []string{"options.path is required"},
		},
		{
			name:    "fallbacks without primary",
			yaml:    "providers:\n  llm_fallbacks:\n    - name: openai\n  tts_fallbacks:\n    - name: elevenlabs\n",
			wantErr: []string{"llm_fallbacks requires providers.llm", "tts_fallbacks requires providers.tts"},
		},
		{
			name:    "unnamed fallback",
			yaml:    "providers:\n  llm:\n    name: ollama\n  llm_fallbacks:\n    - model: x\n",
			wantErr: []string{"llm_fallbacks[0].name is required"},
		},
		{
			name:    "bad mode",
			yaml:    "enrichment:\n  mode: remote\n",
			wantErr: []string{"enrichment.mode"},
		},
		{
			name:    "bad enrichment numbers",
			yaml:    "enrichment:\n  llm_timeout: -1s\n  temperature: 3\n  max_tokens: -5\n",
			wantErr: []string{"llm_timeout", "temperature", "max_tokens"},
		},
		{
			name:    "speech out of range",
			yaml:    "speech:\n  speed: 3\n  volume: -1\n",
			wantErr: []string{"speech.speed", "speech.volume"},
		},
		{
			name:    "postgres without dsn",
			yaml:    "books:\n  backend: postgres\n",
			wantErr: []string{"postgres_dsn is required"},
		},
		{
			name:    "unknown backend",
			yaml:    "books:\n  backend: s3\n",
			wantErr: []string{"books.backend"},
		},
		{
			name:    "negative concurrency",
			yaml:    "processing:\n  concurrency: -2\n",
			wantErr: []string{"processing.concurrency"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %q", err, want)
				}
			}
		})
	}
}

func TestValidate_AllMergeTogglesOffIsValid(t *testing.T) {
	t.Parallel()

	yaml := `
merge:
  merge_auxiliary_verbs: false
  merge_verb_particles: false
  merge_verb_suffixes: false
  merge_all_inflections: false
  merge_punctuation: false
  use_compound_detection: false
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()

	yaml := "providers:\n  llm:\n    name: my-custom-llm\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func env(m map[string]string) config.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	err := config.ApplyEnv(cfg, env(map[string]string{
		"PORT":                         "5001",
		"BOOKS_DIR":                    "/srv/books",
		"BOOKPARSER_OLLAMA_HOST":       "192.168.1.43",
		"BOOKPARSER_OLLAMA_MODEL":      "gemma3:12b",
		"BOOKPARSER_OLLAMA_TIMEOUT":    "90000",
		"BOOKPARSER_OLLAMA_MAX_TOKENS": "4000",
		"VOICEVOX_HOST":                "voicevox",
		"VOICEVOX_PORT":                "50121",
		"VOICEVOX_DEFAULT_SPEAKER":     "8",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.ListenAddr != ":5001" || cfg.Books.Dir != "/srv/books" {
		t.Errorf("server=%+v books=%+v", cfg.Server, cfg.Books)
	}
	llm := cfg.Providers.LLM
	if llm.Name != "ollama" || llm.BaseURL != "http://192.168.1.43:11434" || llm.Model != "gemma3:12b" {
		t.Errorf("llm = %+v", llm)
	}
	if cfg.Enrichment.LLMTimeout != 90*time.Second || cfg.Enrichment.MaxTokens != 4000 {
		t.Errorf("enrichment = %+v", cfg.Enrichment)
	}
	tts := cfg.Providers.TTS
	if tts.Name != "voicevox" || tts.BaseURL != "http://voicevox:50121" || tts.Option("default_speaker") != "8" {
		t.Errorf("tts = %+v", tts)
	}
	if cfg.Speech.Voice != "8" {
		t.Errorf("speech.voice = %q", cfg.Speech.Voice)
	}
}

func TestApplyEnv_ModelOnlyForOllama(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}}}
	if err := config.ApplyEnv(cfg, env(map[string]string{"BOOKPARSER_OLLAMA_MODEL": "gemma"})); err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q, want the openai model untouched", cfg.Providers.LLM.Model)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Parallel()

	err := config.ApplyEnv(&config.Config{}, env(map[string]string{"BOOKPARSER_OLLAMA_TIMEOUT": "soon"}))
	if err == nil || !strings.Contains(err.Error(), "BOOKPARSER_OLLAMA_TIMEOUT") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromEnv(env(map[string]string{
		"PORT":                   "8080",
		"BOOKPARSER_OLLAMA_HOST": "ollama",
		"VOICEVOX_HOST":          "voicevox",
	}))
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Books.Dir != config.DefaultBooksDir {
		t.Errorf("server/books = %+v %+v", cfg.Server, cfg.Books)
	}
	if cfg.Providers.LLM.BaseURL != "http://ollama:11434" || cfg.Providers.TTS.BaseURL != "http://voicevox:50021" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Providers.Analyzer.Name != config.DefaultAnalyzer {
		t.Errorf("analyzer = %q", cfg.Providers.Analyzer.Name)
	}
}
