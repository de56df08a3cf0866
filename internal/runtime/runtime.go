// Package runtime assembles a load engine, its script evaluator and its
// observers from configuration. It is the composition root shared by every
// CLI command.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/leapstack-labs/starload/internal/config"
	"github.com/leapstack-labs/starload/internal/deferred"
	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/extension"
	"github.com/leapstack-labs/starload/internal/features"
	"github.com/leapstack-labs/starload/internal/journal"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/metrics"
	"github.com/leapstack-labs/starload/internal/namespace"
	starctx "github.com/leapstack-labs/starload/internal/starlark"
	"github.com/prometheus/client_golang/prometheus"
	"go.starlark.net/starlark"
)

// Runtime owns one engine and everything wired into it.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer

	engine    *engine.Engine
	evaluator *starctx.Evaluator
	metrics   *metrics.Collector
	journal   *journal.Journal
	loader    *extension.StaticLoader
}

type options struct {
	stdout     io.Writer
	stderr     io.Writer
	registry   *prometheus.Registry
	extensions map[string]extension.Extension
	observers  []engine.Observer
	fallback   extension.Loader
}

// Option configures a Runtime.
type Option func(*options)

// WithStdout sets where script print() output goes. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets where uncaught errors are reported. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithRegistry registers the load metrics on registry instead of a private
// one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithExtension links a native extension statically. It is used whenever a
// resolved native unit has the file name name (e.g. "socket.so").
func WithExtension(name string, ext extension.Extension) Option {
	return func(o *options) {
		if o.extensions == nil {
			o.extensions = make(map[string]extension.Extension)
		}
		o.extensions[name] = ext
	}
}

// WithObserver adds an engine observer.
func WithObserver(obs engine.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithExtensionFallback replaces the plugin loader used for native units
// that are not statically linked.
func WithExtensionFallback(l extension.Loader) Option {
	return func(o *options) { o.fallback = l }
}

// New builds a runtime from cfg. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	o := &options{stdout: os.Stdout, stderr: os.Stderr, fallback: extension.PluginLoader{}}
	for _, opt := range opts {
		opt(o)
	}

	trust, err := engine.ParseTrustLevel(cfg.TrustLevel)
	if err != nil {
		return nil, err
	}

	lp := NewLoadPath(cfg, logger)
	reg := features.New()
	for _, name := range cfg.ProvidedFeatures {
		reg.Provide(name)
	}

	loader := extension.NewStaticLoader(o.fallback)
	for name, ext := range o.extensions {
		loader.Register(name, ext)
	}

	r := &Runtime{
		cfg:    cfg,
		logger: logger,
		stdout: o.stdout,
		stderr: o.stderr,
		loader: loader,
	}
	r.evaluator = starctx.NewEvaluator(starctx.WithStdout(o.stdout), starctx.WithLogger(logger))
	r.metrics = metrics.NewCollector(o.registry, reg)

	engineOpts := []engine.Option{
		engine.WithEvaluator(r.evaluator),
		engine.WithExtensionLoader(loader),
		engine.WithObserver(r.metrics),
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal, logger)
		if err != nil {
			return nil, err
		}
		r.journal = j
		engineOpts = append(engineOpts, engine.WithObserver(j))
	}
	for _, obs := range o.observers {
		engineOpts = append(engineOpts, engine.WithObserver(obs))
	}

	r.engine, err = engine.New(engine.Config{
		LoadPath:         lp,
		Features:         reg,
		Namespace:        namespace.New(),
		Deferred:         deferred.New(logger),
		TrustLevel:       trust,
		ScriptExtensions: cfg.ScriptExtensions,
		NativeExtensions: cfg.NativeExtensions,
		WorkDir:          cfg.WorkDir,
		Logger:           logger,
	}, engineOpts...)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if err := r.defineConstants(cfg.Constants); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) defineConstants(constants map[string]any) error {
	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)

	ns := r.engine.Namespace()
	for _, name := range names {
		if _, err := ns.SetConst(name, constants[name]); err != nil {
			return fmt.Errorf("constants: %w", err)
		}
	}
	return nil
}

// NewLoadPath builds the load path cfg describes: load_path entries
// (trusted), then untrusted_load_path entries, then the search_path list.
func NewLoadPath(cfg *config.Config, logger *slog.Logger) *loadpath.LoadPath {
	home := cfg.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	lp := loadpath.New(home, logger)
	for _, dir := range cfg.LoadPath {
		lp.Append(dir, loadpath.Trusted)
	}
	for _, dir := range cfg.UntrustedLoadPath {
		lp.Append(dir, loadpath.Untrusted)
	}
	if cfg.SearchPath != "" {
		lp.AppendList(cfg.SearchPath, loadpath.Trusted)
	}
	return lp
}

// Engine returns the load engine.
func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Evaluator returns the Starlark evaluator.
func (r *Runtime) Evaluator() *starctx.Evaluator { return r.evaluator }

// Metrics returns the metrics collector.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// Journal returns the load journal, or nil when disabled.
func (r *Runtime) Journal() *journal.Journal { return r.journal }

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() *config.Config { return r.cfg }

// StaticExtensions lists the statically linked native extensions.
func (r *Runtime) StaticExtensions() []string { return r.loader.Names() }

// NewSession starts an interactive session on the engine.
func (r *Runtime) NewSession() *starctx.Session {
	return starctx.NewSession(r.engine, r.evaluator)
}

// Close releases the journal. It does not run deferred callbacks.
func (r *Runtime) Close() error {
	if r.journal != nil {
		return r.journal.Close()
	}
	return nil
}

// Main runs script the way an interpreter's entry point does: preload
// requires first, then the script (searched on script_path when search is
// set), then the deferred callbacks. Failures are reported on stderr and
// folded into the returned exit code.
func (r *Runtime) Main(ctx context.Context, script string, search bool, requires []string) int {
	code := 0
	if err := r.runMain(ctx, script, search, requires); err != nil {
		r.Report(script, err)
		code = 1
	}
	if errs := r.Shutdown(ctx); deferred.ExitCode(errs) != 0 {
		code = 1
	}
	return code
}

func (r *Runtime) runMain(ctx context.Context, script string, search bool, requires []string) error {
	for _, feature := range requires {
		if _, err := r.engine.Require(ctx, feature); err != nil {
			return err
		}
	}
	if search {
		return r.engine.RunSearch(ctx, script, loadpath.SplitList(r.cfg.ScriptPath))
	}
	return r.engine.Run(ctx, script)
}

// Shutdown drains deferred callbacks once, reporting each failure.
func (r *Runtime) Shutdown(ctx context.Context) []error {
	errs := r.engine.Shutdown(ctx)
	for _, err := range errs {
		r.Report("at_exit", err)
	}
	return errs
}

// Report prints err like an uncaught exception: "where: message". Starlark
// errors carry their own backtrace.
func (r *Runtime) Report(where string, err error) {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		_, _ = fmt.Fprintln(r.stderr, evalErr.Backtrace())
		return
	}
	_, _ = fmt.Fprintf(r.stderr, "%s: %v\n", where, err)
}
