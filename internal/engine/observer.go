package engine

import (
	"time"
)

// Op names the engine operation an Event describes.
type Op string

// Operations.
const (
	OpRequire         Op = "require"
	OpRequireRelative Op = "require_relative"
	OpLoad            Op = "load"
	OpRun             Op = "run"
)

// Event is emitted once per operation, after it finishes.
type Event struct {
	Op       Op
	Feature  string
	Identity string
	Status   Status
	Err      error
	Duration time.Duration
}

// Observer receives engine events. Implementations must not call back into
// the engine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

func (e *Engine) notify(op Op, feature, identity string, status Status, err error, start time.Time) {
	if err != nil {
		status = Failed
	}
	ev := Event{
		Op:       op,
		Feature:  feature,
		Identity: identity,
		Status:   status,
		Err:      err,
		Duration: time.Since(start),
	}
	for _, o := range e.observers {
		o.Observe(ev)
	}
}
