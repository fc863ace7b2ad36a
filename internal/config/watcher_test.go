package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/bookparser/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: ollama
    model: gemma3:12b
merge:
  use_compound_detection: false
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: ollama
    model: gemma3:12b
merge:
  use_compound_detection: true
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// noEnv keeps the process environment out of watcher reloads.
func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// watch starts a fast-polling watcher on a config file holding content and
// returns it with the channel its reloads are delivered on.
func watch(t *testing.T, content string) (string, *config.Watcher, <-chan config.Reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)

	reloads := make(chan config.Reload, 8)
	w, err := config.NewWatcher(path, func(r config.Reload) { reloads <- r },
		config.WithInterval(10*time.Millisecond), config.WithEnv(noEnv))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, reloads
}

// quiet fails the test if a reload arrives within a few polling intervals.
func quiet(t *testing.T, reloads <-chan config.Reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Fatalf("unexpected reload: %+v", r.Diff)
	case <-time.After(150 * time.Millisecond):
	}
}

// touch moves the modification time forward so the next poll re-reads the file.
func touch(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	later := info.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
}

// edit rewrites the watched file. The modification time always moves
// forward, even on filesystems with coarse timestamps.
func edit(t *testing.T, path, content string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	writeFile(t, path, content)
	later := info.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	_, w, _ := watch(t, watcherValidYAML)
	cfg := w.Current()
	if cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v, want log_level info", cfg)
	}
	if cfg.Providers.Analyzer.Name == "" {
		t.Error("defaults not applied on initial load")
	}
	if err := w.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestWatcher_ReportsDiff(t *testing.T) {
	t.Parallel()

	path, w, reloads := watch(t, watcherValidYAML)
	edit(t, path, watcherUpdatedYAML)

	var r config.Reload
	select {
	case r = <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after the file changed")
	}
	if r.Old.Server.LogLevel != config.LogInfo || r.New.Server.LogLevel != config.LogDebug {
		t.Errorf("reload old/new log level = %q/%q", r.Old.Server.LogLevel, r.New.Server.LogLevel)
	}
	d := r.Diff
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug || !d.MergeChanged || !d.ProcessorChanged() || len(d.RestartRequired) != 0 {
		t.Errorf("Diff = %+v", d)
	}
	if w.Current() != r.New {
		t.Error("Current() is not the reloaded config")
	}
}

func TestWatcher_RestartOnlyChange(t *testing.T) {
	t.Parallel()

	path, _, reloads := watch(t, watcherValidYAML)
	edit(t, path, watcherValidYAML+"processing:\n  concurrency: 9\n")

	select {
	case r := <-reloads:
		if r.Diff.ProcessorChanged() || !slices.Equal(r.Diff.RestartRequired, []string{"processing"}) {
			t.Errorf("Diff = %+v, want processing restart only", r.Diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload for a restart-only change")
	}
}

func TestWatcher_SettingsUnchanged(t *testing.T) {
	t.Parallel()

	path, w, reloads := watch(t, watcherValidYAML)
	before := w.Current()

	touch(t, path)
	quiet(t, reloads)

	edit(t, path, "# reading tool\n"+watcherValidYAML)
	quiet(t, reloads)

	if w.Current().Server.LogLevel != before.Server.LogLevel {
		t.Error("settings changed without a reload")
	}
}

func TestWatcher_RejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path, w, reloads := watch(t, watcherValidYAML)
	before := w.Current()

	edit(t, path, watcherInvalidYAML)
	deadline := time.Now().Add(2 * time.Second)
	for w.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Err() still nil after writing an invalid config")
		}
		time.Sleep(10 * time.Millisecond)
	}
	quiet(t, reloads)
	if w.Current() != before {
		t.Error("invalid file replaced the current config")
	}

	// Fixing the file clears the error and reloads.
	edit(t, path, watcherUpdatedYAML)
	select {
	case r := <-reloads:
		if r.Old != before {
			t.Error("reload did not start from the last valid config")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after fixing the file")
	}
	if err := w.Err(); err != nil {
		t.Errorf("Err() = %v after a valid reload", err)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file succeeded")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil, config.WithEnv(noEnv)); err == nil {
		t.Fatal("NewWatcher on an invalid file succeeded")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, w, _ := watch(t, watcherValidYAML)
	w.Stop()
	w.Stop()
}
