package starlark

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/namespace"
	"go.starlark.net/starlark"
)

const stateKey = "starload.state"

// execState is what builtins need from the unit they run in. It travels as a
// thread-local.
type execState struct {
	ctx  context.Context
	eng  *engine.Engine
	ev   *Evaluator
	ns   *namespace.Namespace
	unit *engine.Unit // nil in sessions and at_exit callbacks
}

var errNoEngine = errors.New("not running under a load engine")

func stateOf(thread *starlark.Thread) (*execState, error) {
	st, ok := thread.Local(stateKey).(*execState)
	if !ok || st == nil || st.eng == nil {
		return nil, errNoEngine
	}
	return st, nil
}

// newThread creates a thread named after what it runs; print writes a line
// to the evaluator's stdout. The returned release func must be called once
// the thread is done.
func (ev *Evaluator) newThread(name string, st *execState) (*starlark.Thread, func()) {
	out := ev.stdout
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			_, _ = fmt.Fprintln(out, msg)
		},
		Load: ev.load,
	}
	thread.SetLocal(stateKey, st)

	release := func() {}
	if st != nil && st.ctx != nil {
		stop := context.AfterFunc(st.ctx, func() {
			thread.Cancel(context.Cause(st.ctx).Error())
		})
		release = func() { stop() }
	}
	return thread, release
}
