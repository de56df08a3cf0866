// Package watch reloads a script whenever it changes on disk.
//
// Reloads always go through an explicit load, never require, so the loaded
// features registry is left alone and the script runs again every time.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/starload/internal/canon"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Loader is the part of the engine a Watcher drives.
type Loader interface {
	Load(ctx context.Context, path string, wrap bool) error
}

// Reload describes one reload attempt.
type Reload struct {
	Path     string
	Err      error
	Duration time.Duration
}

// Watcher reloads one script.
type Watcher struct {
	loader   Loader
	path     string
	wrap     bool
	debounce time.Duration
	logger   *slog.Logger
	onReload func(Reload)

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWrap reloads the script into a fresh anonymous namespace each time.
func WithWrap(wrap bool) Option {
	return func(w *Watcher) { w.wrap = wrap }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadHook is called after every reload, from the watch goroutine.
func WithReloadHook(fn func(Reload)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New creates a watcher for script. The script must exist.
func New(loader Loader, script string, opts ...Option) (*Watcher, error) {
	path, err := canon.Canonicalize(script)
	if err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", script, err)
	}
	w := &Watcher{
		loader:   loader,
		path:     path,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the canonical path being watched.
func (w *Watcher) Path() string { return w.path }

// Ready is closed once the file system watch is in place.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is done. The script's directory is watched rather
// than the file so that editors replacing the file on save are seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info("watching for changes", "path", w.path, "debounce", w.debounce)

	fire := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only handle write/create events for the script itself
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.matches(event.Name) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	if filepath.Clean(name) == w.path {
		return true
	}
	// Events may name the file through a non-canonical directory.
	p, err := canon.Canonicalize(name)
	return err == nil && p == w.path
}

func (w *Watcher) reload(ctx context.Context) {
	start := time.Now()
	err := w.loader.Load(ctx, w.path, w.wrap)
	r := Reload{Path: w.path, Err: err, Duration: time.Since(start)}
	if err != nil {
		w.logger.Error("reload failed", "path", w.path, "error", err)
	} else {
		w.logger.Info("reloaded", "path", w.path, "duration", r.Duration)
	}
	if w.onReload != nil {
		w.onReload(r)
	}
}

// ServeMetrics serves handler on addr under /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown gracefully
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
