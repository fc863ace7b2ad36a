// Package app wires all bookparser subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/bookparser/internal/bookstore"
	"github.com/MrWong99/bookparser/internal/config"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/enrich/llmgloss"
	"github.com/MrWong99/bookparser/internal/health"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/internal/reader"
	"github.com/MrWong99/bookparser/internal/resilience"
	"github.com/MrWong99/bookparser/internal/server"
	"github.com/MrWong99/bookparser/pkg/types"
)

// Version is reported in telemetry. Overridden at build time with -ldflags.
var Version = "dev"

// readySentence is analysed by the readiness check of the analyser.
const readySentence = "猫"

// App owns all subsystem lifetimes of the reading tool.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store          bookstore.Store
	storeCheck     func(context.Context) error
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	server         *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a book store instead of creating one from config.
func WithStore(s bookstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments. The OpenTelemetry SDK and the
// /metrics endpoint are not set up when metrics are injected.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level of the
// handler that uses v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]; providers.Analyzer must be set.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Analyzer == nil {
		return nil, errors.New("app: an analyzer provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Book store ────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init book store: %w", err)
	}

	// ── 3. Processing pipeline ───────────────────────────────────────────
	pipeline, err := BuildPipeline(cfg, providers, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("app: build pipeline: %w", err)
	}

	// ── 4. HTTP server ───────────────────────────────────────────────────
	srvOpts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithHealth(health.New(a.checkers()...)),
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	if a.server, err = server.New(pipeline, a.store, srvOpts...); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry installs the OpenTelemetry SDK with a Prometheus exporter on
// a private registry, unless metrics were injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	registry := prometheus.NewRegistry()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Observability.ServiceName,
		ServiceVersion: Version,
		Registerer:     registry,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		return shutdown(context.Background())
	})

	if a.metrics, err = observe.NewMetrics(otel.GetMeterProvider()); err != nil {
		return err
	}
	if a.cfg.Observability.Metrics {
		a.metricsHandler = observe.MetricsHandler(registry)
	}
	return nil
}

// initStore opens the configured book store or keeps an injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		a.storeCheck = func(ctx context.Context) error {
			_, err := a.store.List(ctx)
			return err
		}
		return nil
	}

	b := a.cfg.Books
	switch b.Backend {
	case config.BookBackendPostgres:
		pool, err := pgxpool.New(ctx, b.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		store := bookstore.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.store = store
		a.storeCheck = pool.Ping
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		slog.Info("book store ready", "backend", b.Backend)

	default:
		store, err := bookstore.NewFileStore(b.Dir)
		if err != nil {
			return err
		}
		a.store = store
		a.storeCheck = func(context.Context) error {
			_, err := os.Stat(store.Dir())
			return err
		}
		slog.Info("book store ready", "backend", config.BookBackendFile, "dir", store.Dir())
	}
	return nil
}

// checkers returns the readiness checks. The analyser, dictionary and book
// store are required; the language model and speech engine only degrade the
// service because sentences still process without them.
func (a *App) checkers() []health.Checker {
	cs := []health.Checker{
		{Name: "analyzer", Check: func(ctx context.Context) error {
			_, err := a.providers.Analyzer.Analyze(ctx, readySentence)
			return err
		}},
		{Name: "books", Check: a.storeCheck},
	}
	if d := a.providers.Dictionary; d != nil {
		cs = append(cs, health.Checker{Name: "dictionary", Check: func(ctx context.Context) error {
			_, err := d.Lookup(ctx, readySentence, "")
			return err
		}})
	}
	if s, ok := a.providers.LLM.(statusReporter); ok {
		cs = append(cs, health.Checker{Name: "llm", Optional: true, Check: breakersClosed(s)})
	}
	if s, ok := a.providers.TTS.(statusReporter); ok {
		cs = append(cs, health.Checker{Name: "tts", Optional: true, Check: breakersClosed(s)})
	}
	return cs
}

type statusReporter interface {
	Status() []resilience.EntryStatus
}

// breakersClosed fails when every backend of s has an open circuit.
func breakersClosed(s statusReporter) func(context.Context) error {
	return func(context.Context) error {
		st := s.Status()
		for _, e := range st {
			if e.State != resilience.StateOpen.String() {
				return nil
			}
		}
		return fmt.Errorf("all %d backends have an open circuit", len(st))
	}
}

// BuildPipeline constructs the sentence processor described by cfg.
func BuildPipeline(cfg *config.Config, ps *Providers, m *observe.Metrics) (server.Pipeline, error) {
	mergeCfg := cfg.Merge.Resolve()
	merger, err := merge.New(mergeCfg)
	if err != nil {
		return server.Pipeline{}, err
	}

	enrichOpts := []enrich.Option{enrich.WithMetrics(m)}
	if cfg.Enrichment.LLMTimeout > 0 {
		enrichOpts = append(enrichOpts, enrich.WithTimeout(cfg.Enrichment.LLMTimeout))
	}
	if ps.LLM != nil {
		var glossOpts []llmgloss.Option
		if t := cfg.Enrichment.Temperature; t > 0 {
			glossOpts = append(glossOpts, llmgloss.WithTemperature(t))
		}
		if n := cfg.Enrichment.MaxTokens; n > 0 {
			glossOpts = append(glossOpts, llmgloss.WithMaxTokens(n))
		}
		enrichOpts = append(enrichOpts, enrich.WithTranslator(llmgloss.New(ps.LLM, glossOpts...)))
	}
	en := enrich.New(ps.Dictionary, enrichOpts...)

	readerOpts := []reader.Option{
		reader.WithMerger(merger),
		reader.WithMetrics(m),
		reader.WithConcurrency(cfg.Processing.Concurrency),
		reader.WithSpeechDefaults(reader.SpeechDefaults{
			Voice:  types.VoiceProfile{ID: cfg.Speech.Voice, Provider: cfg.Providers.TTS.Name},
			Speed:  cfg.Speech.Speed,
			Volume: cfg.Speech.Volume,
		}),
	}
	if ps.TTS != nil {
		readerOpts = append(readerOpts, reader.WithSpeech(ps.TTS))
	}
	proc, err := reader.New(ps.Analyzer, en, readerOpts...)
	if err != nil {
		return server.Pipeline{}, err
	}
	return server.Pipeline{Processor: proc, Merge: mergeCfg, Mode: cfg.Enrichment.Mode}, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Processor returns the current sentence processor.
func (a *App) Processor() *reader.Processor { return a.server.Pipeline().Processor }

// Store returns the book store.
func (a *App) Store() bookstore.Store { return a.store }

// ─── Configuration reload ────────────────────────────────────────────────────

// WatchConfig reloads the configuration file at path whenever it changes and
// applies the settings that do not need a restart. The watcher is stopped by
// Shutdown.
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, func(r config.Reload) {
		a.apply(r.New, r.Diff)
	}, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// The log level changes in place; merge, enrichment and speech changes
// rebuild the processor, which is swapped in for subsequent requests.
// Everything else is logged as requiring a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	a.apply(new, config.Diff(old, new))
}

func (a *App) apply(cfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.ProcessorChanged() {
		p, err := BuildPipeline(cfg, a.providers, a.metrics)
		if err != nil {
			slog.Error("config reload: keeping previous pipeline", "err", err)
		} else {
			a.server.SetPipeline(p)
			slog.Info("config reload: pipeline rebuilt",
				"merge", d.MergeChanged,
				"enrichment", d.EnrichmentChanged,
				"speech", d.SpeechChanged,
			)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled. It returns nil after a graceful shutdown of the listener.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"speech", a.providers.TTS != nil,
		"llm", a.providers.LLM != nil,
	)
	if err := a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
