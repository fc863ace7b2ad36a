// Command bookparser serves the Japanese reading tool over HTTP.
//
// It can also process a single sentence (-parse) or import a plain-text book
// into the book store (-import) and exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MrWong99/bookparser/internal/app"
	"github.com/MrWong99/bookparser/internal/bookstore"
	"github.com/MrWong99/bookparser/internal/config"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/reader"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	parseText := flag.String("parse", "", "process one sentence, print the result as JSON and exit")
	importPath := flag.String("import", "", "import a plain-text book into the book store and exit")
	importName := flag.String("name", "", "book name for -import (default: file name)")
	local := flag.Bool("local", false, "use the dictionary only, without the language model")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookparser: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(&level))

	slog.Info("bookparser starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	mode := cfg.Enrichment.Mode
	if *local {
		mode = enrich.ModeLocal
	}

	// ── One-shot commands ─────────────────────────────────────────────────────
	switch {
	case *parseText != "":
		return parseOnce(ctx, application, *parseText, mode)
	case *importPath != "":
		return importBook(ctx, application, *importPath, *importName, mode, cfg)
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if watch {
		if err := application.WatchConfig(*configPath); err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file at path. A missing file is not an error:
// the configuration then comes from defaults and the environment alone, and
// there is nothing to watch.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = config.LoadFromEnv(os.LookupEnv)
	if err != nil {
		return nil, false, err
	}
	fmt.Fprintf(os.Stderr, "bookparser: config file %q not found, using defaults and environment\n", path)
	return cfg, false, nil
}

func parseOnce(ctx context.Context, a *app.App, text string, mode enrich.Mode) int {
	res, err := a.Processor().Process(ctx, reader.SentenceRequest{Text: text, Mode: mode})
	if err != nil {
		slog.Error("parse failed", "err", err)
		return 1
	}
	return printJSON(res)
}

func importBook(ctx context.Context, a *app.App, path, name string, mode enrich.Mode, cfg *config.Config) int {
	text, err := os.ReadFile(path)
	if err != nil {
		slog.Error("read book", "path", path, "err", err)
		return 1
	}
	res, err := bookstore.Import(ctx, a.Store(), a.Processor(), bookstore.ImportRequest{
		Name:     name,
		Filename: filepath.Base(path),
		Text:     string(text),
		Mode:     mode,
		Merge:    cfg.Merge.Resolve(),
	})
	if err != nil {
		slog.Error("import failed", "path", path, "err", err)
		return 1
	}
	for _, sk := range res.Skipped {
		slog.Warn("sentence skipped", "index", sk.Index, "err", sk.Err)
	}
	return printJSON(res.Book.Metadata)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("write output", "err", err)
		return 1
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
