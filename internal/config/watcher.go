package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reload is an accepted change of the configuration file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports every edit that changes a setting.
//
// Edits that leave the settings as they were (comments, formatting, a touch)
// are absorbed silently. An edit that fails to parse or validate is rejected:
// the previous config stays current, the error is available from [Watcher.Err]
// and is logged once per rejected version of the file.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)
	env      LookupEnv

	mu       sync.Mutex
	current  *Config
	seen     fileStamp
	sum      [sha256.Size]byte
	rejected error

	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies a version of the file without reading it.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnv sets the environment lookup applied on every reload. Default:
// [os.LookupEnv], matching [Load].
func WithEnv(env LookupEnv) WatcherOption {
	return func(w *Watcher) {
		w.env = env
	}
}

// NewWatcher loads the config at path and starts polling it. onReload may be
// nil; it is never called concurrently with itself.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		env:      os.LookupEnv,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.sum, w.seen = cfg, sum, stamp

	go w.poll()
	return w, nil
}

// Current returns the config of the last accepted version of the file.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Err returns why the latest version of the file was rejected, or nil when
// the file on disk is the current config.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rejected
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(fileStamp{}, err)
		return
	}
	w.mu.Lock()
	unchanged := stampOf(info) == w.seen
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, sum, stamp, err := w.read()
	if err != nil {
		w.reject(stampOf(info), err)
		return
	}

	w.mu.Lock()
	w.seen, w.rejected = stamp, nil
	if sum == w.sum {
		w.mu.Unlock()
		return
	}
	old := w.current
	d := Diff(old, cfg)
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	if d.Empty() {
		slog.Debug("config watcher: file edited, settings unchanged", "path", w.path)
		return
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path, "changes", d)
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: d})
	}
}

// reject records a file version that could not become the current config.
// Polling resumes on the next edit; the same version is not re-read.
func (w *Watcher) reject(stamp fileStamp, err error) {
	w.mu.Lock()
	repeated := w.rejected != nil && stamp == w.seen
	w.seen, w.rejected = stamp, err
	w.mu.Unlock()
	if !repeated {
		slog.Warn("config watcher: keeping previous configuration", "path", w.path, "err", err)
	}
}

// read parses and validates the file and returns it with its checksum.
func (w *Watcher) read() (*Config, [sha256.Size]byte, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, [sha256.Size]byte{}, fileStamp{}, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, [sha256.Size]byte{}, fileStamp{}, err
	}
	cfg, err := load(bytes.NewReader(buf.Bytes()), w.env)
	if err != nil {
		return nil, [sha256.Size]byte{}, fileStamp{}, err
	}
	return cfg, sha256.Sum256(buf.Bytes()), stampOf(info), nil
}
