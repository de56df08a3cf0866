package starlark

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/starload/internal/engine"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Session evaluates interactive chunks against the global namespace, keeping
// the globals of earlier chunks.
type Session struct {
	ev      *Evaluator
	eng     *engine.Engine
	globals starlark.StringDict
	chunks  int
}

// NewSession creates a session bound to eng.
func NewSession(eng *engine.Engine, ev *Evaluator) *Session {
	return &Session{ev: ev, eng: eng, globals: make(starlark.StringDict)}
}

// Eval runs one chunk. An expression yields its value; statements yield
// None. Top-level bindings with constant names are published like a unit's.
func (s *Session) Eval(ctx context.Context, src string) (starlark.Value, error) {
	s.chunks++
	name := fmt.Sprintf("<repl:%d>", s.chunks)

	ns := s.eng.Namespace()
	st := &execState{ctx: engine.WithContext(ctx, s.eng), eng: s.eng, ev: s.ev, ns: ns}
	thread, release := s.ev.newThread(name, st)
	defer release()

	env, err := s.ev.predeclared(ns)
	if err != nil {
		return nil, err
	}
	for k, v := range s.globals {
		env[k] = v
	}

	if expr, err := fileOptions.ParseExpr(name, src, 0); err == nil {
		v, err := starlark.EvalExprOptions(fileOptions, thread, expr, env)
		if err != nil {
			return nil, newEvalError(name, src, err)
		}
		return v, nil
	}

	globals, err := starlark.ExecFileOptions(fileOptions, thread, name, src, env)
	if err != nil {
		return nil, newEvalError(name, src, err)
	}
	for k, v := range globals {
		s.globals[k] = v
	}
	if err := publish(ns, exported(globals)); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// Globals lists the names bound so far, sorted.
func (s *Session) Globals() []string {
	names := make([]string, 0, len(s.globals))
	for name := range s.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EvalError represents an error evaluating an interactive chunk.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
	Err     error
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func newEvalError(file, src string, err error) *EvalError {
	out := &EvalError{File: file, Expr: src, Message: err.Error(), Err: err}
	var se *starlark.EvalError
	var syn syntax.Error
	switch {
	case errors.As(err, &se):
		out.Message = se.Msg
		if len(se.CallStack) > 0 {
			out.Line = int(se.CallStack.At(0).Pos.Line)
		}
	case errors.As(err, &syn):
		out.Message = syn.Msg
		out.Line = int(syn.Pos.Line)
	}
	return out
}
