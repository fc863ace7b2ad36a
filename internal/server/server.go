// Package server exposes the reading tool over HTTP.
//
// Routes:
//
//	POST /api/parse                            process one sentence
//	POST /api/speech                           synthesise and align a sentence
//	GET  /api/voices                           voices of the speech engine
//	GET  /api/books                            list saved books
//	GET  /api/books/{id}                       load a book
//	POST /api/books/{id}                       save a whole book
//	POST /api/books/{id}/sentences/{index}     save one processed sentence
//	POST /api/books/{id}/import                import and process a plain-text book
//	GET  /healthz, /readyz                     health checks (see package health)
//	GET  /metrics                              Prometheus scrape endpoint
//
// Errors are returned as {"error": "..."} with a status derived from the
// sentinel errors of the reader and bookstore packages.
//
// The processing pipeline is held behind an atomic pointer so a configuration
// reload can swap it while requests are in flight; every request uses the
// pipeline that was current when it started.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrWong99/bookparser/internal/bookstore"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/health"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/internal/reader"
)

const (
	defaultMaxBodyBytes = 16 << 20
	shutdownTimeout     = 10 * time.Second
)

// Pipeline is the swappable processing state of the server.
type Pipeline struct {
	Processor *reader.Processor

	// Merge is the configured merge behaviour. Per-request merge options are
	// applied on top of it.
	Merge merge.Config

	// Mode is used for requests that ask for remote processing. Requests
	// that opt out always use enrich.ModeLocal.
	Mode enrich.Mode
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics on m. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxBodyBytes limits request bodies. Default: 16 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server is safe for concurrent use.
type Server struct {
	pipeline atomic.Pointer[Pipeline]
	store    bookstore.Store

	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxBody        int64

	handler http.Handler
}

// New returns a Server for p and store.
func New(p Pipeline, store bookstore.Store, opts ...Option) (*Server, error) {
	if p.Processor == nil {
		return nil, errors.New("server: processor must not be nil")
	}
	if store == nil {
		return nil, errors.New("server: book store must not be nil")
	}
	s := &Server{store: store, maxBody: defaultMaxBodyBytes}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.SetPipeline(p)
	s.handler = observe.Middleware(s.metrics)(s.routes())
	return s, nil
}

// SetPipeline replaces the processing state for subsequent requests.
func (s *Server) SetPipeline(p Pipeline) {
	if p.Mode == "" {
		p.Mode = enrich.ModeEnhanced
	}
	s.pipeline.Store(&p)
}

// Pipeline returns the current processing state.
func (s *Server) Pipeline() Pipeline {
	return *s.pipeline.Load()
}

// Handler returns the root handler with tracing and request metrics.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("POST /api/speech", s.handleSpeech)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/books", s.handleListBooks)
	mux.HandleFunc("GET /api/books/{id}", s.handleGetBook)
	mux.HandleFunc("POST /api/books/{id}", s.handleSaveBook)
	mux.HandleFunc("POST /api/books/{id}/sentences/{index}", s.handleSaveSentence)
	mux.HandleFunc("POST /api/books/{id}/import", s.handleImport)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}
