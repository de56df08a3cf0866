// Package deferred holds callbacks registered with at_exit and runs them,
// newest first, when the runtime shuts down.
package deferred

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Callback is a unit of work deferred until shutdown.
type Callback func(ctx context.Context) error

// ArgumentError reports a registration without a callback.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message + " (ArgumentError)"
}

// Stack is a LIFO of deferred callbacks. It is drained at most once.
// Callbacks pushed while draining run next, before older ones.
type Stack struct {
	mu        sync.Mutex
	callbacks []Callback
	draining  bool
	drained   bool
	logger    *slog.Logger
}

// New creates an empty stack.
func New(logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stack{logger: logger}
}

// Push registers cb to run at shutdown.
func (s *Stack) Push(cb Callback) error {
	if cb == nil {
		return &ArgumentError{Message: "called without a block"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		s.logger.Warn("at_exit after shutdown ignored")
		return nil
	}
	s.callbacks = append(s.callbacks, cb)
	return nil
}

// Len returns the number of pending callbacks.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// Drain runs every callback in reverse registration order. A failing
// callback does not stop the ones registered before it. A callback may push
// more callbacks; they run as soon as it returns. Later calls, including
// ones made from a callback, return nil without running anything.
func (s *Stack) Drain(ctx context.Context) []error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	var errs []error
	ran := 0
	for {
		cb, i, ok := s.pop()
		if !ok {
			break
		}
		ran++
		if err := s.run(ctx, i, cb); err != nil {
			s.logger.Error("at_exit callback failed", "index", i, "error", err)
			errs = append(errs, err)
		}
	}
	s.logger.Debug("deferred callbacks drained", "count", ran, "failed", len(errs))
	return errs
}

// pop removes the newest callback. Once the stack is empty it is marked
// drained, so pushes from then on are ignored.
func (s *Stack) pop() (Callback, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.callbacks)
	if n == 0 {
		s.drained = true
		return nil, 0, false
	}
	cb := s.callbacks[n-1]
	s.callbacks = s.callbacks[:n-1]
	return cb, n - 1, true
}

func (s *Stack) run(ctx context.Context, i int, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("at_exit callback %d panicked: %v", i, r)
		}
	}()
	return cb(ctx)
}

// ExitCode maps drain failures to a process exit status.
func ExitCode(errs []error) int {
	if len(errs) > 0 {
		return 1
	}
	return 0
}
