// Package engine resolves features against the load path, loads scripts and
// native extensions at most once (require) or on demand (load), and keeps the
// stack of units currently loading.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/leapstack-labs/starload/internal/deferred"
	"github.com/leapstack-labs/starload/internal/extension"
	"github.com/leapstack-labs/starload/internal/features"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/namespace"
)

// TrustLevel controls whether untrusted load-path entries may be used.
type TrustLevel int

// Trust levels.
const (
	Unrestricted TrustLevel = iota
	Restricted
)

func (t TrustLevel) String() string {
	if t == Restricted {
		return "restricted"
	}
	return "unrestricted"
}

// ParseTrustLevel parses "unrestricted" or "restricted".
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unrestricted":
		return Unrestricted, nil
	case "restricted":
		return Restricted, nil
	default:
		return Unrestricted, fmt.Errorf("unknown trust level %q (want unrestricted or restricted)", s)
	}
}

// Default extension lists, tried in order.
var (
	DefaultScriptExtensions = []string{".star"}
	DefaultNativeExtensions = []string{".so"}
)

// Status is the outcome of a require.
type Status int

// Statuses. Failed only appears in events.
const (
	Loaded Status = iota
	AlreadyLoaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case AlreadyLoaded:
		return "already_loaded"
	default:
		return "failed"
	}
}

// Result is returned by Require and RequireRelative.
type Result struct {
	Status   Status
	Identity string
}

// Loaded reports whether the call executed the unit.
func (r Result) Loaded() bool { return r.Status == Loaded }

// Unit is a resolved source unit handed to the Evaluator.
type Unit struct {
	Feature  string // request as given by the caller
	Path     string // path the unit was found at
	Identity string // canonical path
	Dir      string // canonical directory, base for relative loads
	Wrapped  bool
}

// Evaluator executes script units. Errors are propagated to the caller of
// the engine unchanged.
type Evaluator interface {
	Execute(ctx context.Context, unit *Unit, ns *namespace.Namespace) error
}

// Frame is an entry on the load stack.
type Frame struct {
	Op       Op
	Feature  string
	Identity string
	Dir      string
	Wrapped  bool
}

// Config holds engine state. Zero fields get fresh defaults.
type Config struct {
	// LoadPath is searched for non-explicit features.
	LoadPath *loadpath.LoadPath
	// Features records loaded identities.
	Features *features.Registry
	// Namespace is the global constant namespace.
	Namespace *namespace.Namespace
	// Deferred collects at_exit callbacks.
	Deferred *deferred.Stack
	// TrustLevel decides whether untrusted entries are usable.
	TrustLevel TrustLevel
	// ScriptExtensions are tried before NativeExtensions.
	ScriptExtensions []string
	NativeExtensions []string
	// WorkDir anchors absolute and "./" requests and plain load paths.
	// Defaults to the process working directory.
	WorkDir string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator sets the script evaluator.
func WithEvaluator(ev Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithExtensionLoader sets the native extension loader.
func WithExtensionLoader(l extension.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithObserver adds an observer for load events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// Engine is the require/load state machine. Top-level Require,
// RequireRelative, Load and Run calls are serialized: a call from another
// goroutine waits until the current one, with every unit it loads, has
// finished. Calls made by an executing unit pass straight through.
type Engine struct {
	lp       *loadpath.LoadPath
	features *features.Registry
	ns       *namespace.Namespace
	deferred *deferred.Stack

	trust      TrustLevel
	scriptExts []string
	nativeExts []string
	workDir    string
	logger     *slog.Logger

	evaluator Evaluator
	loader    extension.Loader
	observers []Observer

	// serial is held for the whole of a top-level load.
	serial sync.Mutex

	mu     sync.Mutex
	frames []Frame
}

// New creates an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workDir = wd
	}

	e := &Engine{
		lp:         cfg.LoadPath,
		features:   cfg.Features,
		ns:         cfg.Namespace,
		deferred:   cfg.Deferred,
		trust:      cfg.TrustLevel,
		scriptExts: cfg.ScriptExtensions,
		nativeExts: cfg.NativeExtensions,
		workDir:    workDir,
		logger:     logger,
		loader:     extension.PluginLoader{},
	}
	if e.lp == nil {
		home, _ := os.UserHomeDir()
		e.lp = loadpath.New(home, logger)
	}
	if e.features == nil {
		e.features = features.New()
	}
	if e.ns == nil {
		e.ns = namespace.New()
	}
	if e.deferred == nil {
		e.deferred = deferred.New(logger)
	}
	if len(e.scriptExts) == 0 {
		e.scriptExts = DefaultScriptExtensions
	}
	if len(e.nativeExts) == 0 {
		e.nativeExts = DefaultNativeExtensions
	}
	for _, opt := range opts {
		opt(e)
	}

	logger.Debug("engine initialized",
		"trust_level", e.trust.String(),
		"load_path_entries", e.lp.Len(),
		"work_dir", workDir)
	return e, nil
}

// LoadPath returns the engine's load path.
func (e *Engine) LoadPath() *loadpath.LoadPath { return e.lp }

// Features returns the loaded-features registry.
func (e *Engine) Features() *features.Registry { return e.features }

// Namespace returns the global namespace.
func (e *Engine) Namespace() *namespace.Namespace { return e.ns }

// TrustLevel returns the configured trust level.
func (e *Engine) TrustLevel() TrustLevel { return e.trust }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Extensions returns script then native extensions in search order.
func (e *Engine) Extensions() []string {
	exts := make([]string, 0, len(e.scriptExts)+len(e.nativeExts))
	exts = append(exts, e.scriptExts...)
	return append(exts, e.nativeExts...)
}

// AtExit registers cb to run at Shutdown.
func (e *Engine) AtExit(cb deferred.Callback) error {
	return e.deferred.Push(cb)
}

// Shutdown runs the deferred callbacks, newest first. Only the first call
// does anything.
func (e *Engine) Shutdown(ctx context.Context) []error {
	return e.deferred.Drain(ctx)
}

// Stack returns a snapshot of the load stack, outermost first.
func (e *Engine) Stack() []Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Frame(nil), e.frames...)
}

// Current returns the innermost frame.
func (e *Engine) Current() (Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) == 0 {
		return Frame{}, false
	}
	return e.frames[len(e.frames)-1], true
}

func (e *Engine) push(f Frame) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, f)
	return len(e.frames)
}

// pop truncates the stack back to depth-1 so a frame is removed exactly once
// even if a nested unit left the stack unbalanced.
func (e *Engine) pop(depth int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) >= depth {
		e.frames = e.frames[:depth-1]
	}
}

// loading reports whether identity is on the load stack under a require.
func (e *Engine) loading(identity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.frames {
		if f.Identity == identity && (f.Op == OpRequire || f.Op == OpRequireRelative) {
			return true
		}
	}
	return false
}

type ctxKey struct{}

type holderKey struct{}

// enter acquires the load lock unless ctx shows it is already held by this
// engine, i.e. the caller is a unit executing under it.
func (e *Engine) enter(ctx context.Context) (context.Context, func()) {
	if holder, _ := ctx.Value(holderKey{}).(*Engine); holder == e {
		return ctx, func() {}
	}
	e.serial.Lock()
	return context.WithValue(ctx, holderKey{}, e), e.serial.Unlock
}

// WithContext returns ctx carrying e. Units executing under the engine use
// FromContext to reach it.
func WithContext(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the engine executing the current unit.
func FromContext(ctx context.Context) (*Engine, bool) {
	e, ok := ctx.Value(ctxKey{}).(*Engine)
	return e, ok
}

// IsLoadError reports whether err is a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
