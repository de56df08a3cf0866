// Package starlark runs script units with go.starlark.net and binds the
// load engine's operations as Starlark builtins.
package starlark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/starload/internal/canon"
	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/namespace"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// fileOptions enables the statement forms scripts commonly need at top level.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Evaluator executes .star units for the engine.
type Evaluator struct {
	stdout io.Writer
	logger *slog.Logger

	// exports holds the exported globals of every unit executed so far,
	// keyed by identity; load() statements read from it.
	mu      sync.Mutex
	exports map[string]starlark.StringDict
}

var _ engine.Evaluator = (*Evaluator)(nil)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStdout sets where print() writes.
func WithStdout(w io.Writer) Option {
	return func(ev *Evaluator) {
		if w != nil {
			ev.stdout = w
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ev *Evaluator) {
		if logger != nil {
			ev.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator. print() output is discarded unless
// WithStdout is given.
func NewEvaluator(opts ...Option) *Evaluator {
	ev := &Evaluator{
		stdout:  io.Discard,
		logger:  slog.New(slog.DiscardHandler),
		exports: make(map[string]starlark.StringDict),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Execute runs unit with ns as its constant namespace. Exported globals that
// are valid constant names are published into ns afterwards. Script errors
// are returned as produced by the interpreter.
func (ev *Evaluator) Execute(ctx context.Context, unit *engine.Unit, ns *namespace.Namespace) error {
	eng, ok := engine.FromContext(ctx)
	if !ok {
		return errNoEngine
	}
	src, err := os.ReadFile(unit.Path) //nolint:gosec // G304: path was resolved by the engine
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", unit.Path, err)
	}

	st := &execState{ctx: ctx, eng: eng, ev: ev, ns: ns, unit: unit}
	thread, release := ev.newThread(unit.Identity, st)
	defer release()

	predeclared, err := ev.predeclared(ns)
	if err != nil {
		return err
	}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, unit.Path, src, predeclared)
	if err != nil {
		return err
	}
	globals.Freeze()

	exports := exported(globals)
	ev.mu.Lock()
	ev.exports[unit.Identity] = exports
	ev.mu.Unlock()

	if err := publish(ns, exports); err != nil {
		return err
	}
	ev.logger.Debug("unit executed", "identity", unit.Identity, "exports", len(exports), "wrapped", unit.Wrapped)
	return nil
}

// Exports returns the exported globals of an executed unit.
func (ev *Evaluator) Exports(identity string) (starlark.StringDict, bool) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	d, ok := ev.exports[identity]
	return d, ok
}

// predeclared returns the builtins plus every top-level constant visible in
// ns, so scripts can name classes directly.
func (ev *Evaluator) predeclared(ns *namespace.Namespace) (starlark.StringDict, error) {
	dict := make(starlark.StringDict, len(builtins)+16)
	var scopes []*namespace.Namespace
	for n := ns; n != nil; n = n.Parent() {
		scopes = append(scopes, n)
	}
	// Outermost first so local definitions win.
	for i := len(scopes) - 1; i >= 0; i-- {
		for _, name := range scopes[i].Names() {
			c, ok := scopes[i].Lookup(name)
			if !ok {
				continue
			}
			v, err := constantValue(c)
			if err != nil {
				return nil, fmt.Errorf("constant %s: %w", name, err)
			}
			dict[name] = v
		}
	}
	for name, b := range builtins {
		dict[name] = b
	}
	return dict, nil
}

// load implements Starlark load() statements. The module is looked up
// relative to the loading unit first, then on the load path, and executed at
// most once like require.
func (ev *Evaluator) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}

	var res engine.Result
	if st.unit != nil && ev.relativeExists(st, module) {
		res, err = st.eng.RequireRelative(st.ctx, module)
	} else {
		res, err = st.eng.Require(st.ctx, module)
	}
	if err != nil {
		return nil, err
	}

	if exports, ok := ev.Exports(res.Identity); ok {
		return exports, nil
	}
	for _, f := range st.eng.Stack() {
		if f.Identity == res.Identity {
			return nil, fmt.Errorf("cycle in load graph involving %s", module)
		}
	}
	// Native extensions and builtin features export nothing.
	return starlark.StringDict{}, nil
}

func (ev *Evaluator) relativeExists(st *execState, module string) bool {
	if filepath.IsAbs(module) {
		return false
	}
	slashed := filepath.ToSlash(module)
	if strings.HasPrefix(slashed, "./") || strings.HasPrefix(slashed, "../") {
		return true
	}
	base := filepath.Join(st.unit.Dir, module)
	for _, name := range loadpath.Expansions(base, st.eng.Extensions()) {
		if ok, err := canon.Exists(name); err == nil && ok {
			return true
		}
	}
	return false
}

// exported drops private names.
func exported(globals starlark.StringDict) starlark.StringDict {
	out := make(starlark.StringDict, len(globals))
	for name, v := range globals {
		if !strings.HasPrefix(name, "_") {
			out[name] = v
		}
	}
	return out
}

// publish binds exports with constant-like names as value constants. A
// binding that merely re-exports the constant of the same name is skipped.
func publish(ns *namespace.Namespace, exports starlark.StringDict) error {
	for _, name := range exports.Keys() {
		if namespace.ValidateName(name) != nil || strings.Contains(name, namespace.Separator) {
			continue
		}
		v := exports[name]
		if c, ok := v.(*Constant); ok && c.Name() == name {
			continue
		}
		if _, err := ns.SetConst(name, v); err != nil {
			var ne *namespace.NameError
			if errors.As(err, &ne) {
				continue
			}
			return err
		}
	}
	return nil
}
