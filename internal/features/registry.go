// Package features tracks every unit that has been loaded by require, keyed by
// canonical identity. The registry only grows: identities are never removed,
// and they stay valid after later load-path changes.
package features

import (
	"path/filepath"
	"sync"
	"time"
)

// BuiltinPrefix marks identities of features provided without a file.
const BuiltinPrefix = "builtin:"

// Feature is a recorded load.
type Feature struct {
	Identity   string    `json:"identity" yaml:"identity"`
	Request    string    `json:"request" yaml:"request"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Registry is the set of loaded features.
type Registry struct {
	mu sync.RWMutex

	// byIdentity holds the authoritative set.
	byIdentity map[string]int

	// byRequest maps request strings that were satisfied to their identity:
	// "socket" -> "/usr/lib/starload/socket.so". A hint only; the load path
	// may have changed since, so callers confirm with Contains.
	byRequest map[string]string

	ordered []Feature
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byIdentity: make(map[string]int),
		byRequest:  make(map[string]string),
	}
}

// Contains reports whether identity has been recorded.
func (r *Registry) Contains(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byIdentity[identity]
	return ok
}

// Record adds identity, remembering the request string that produced it.
// It returns false if the identity was already present.
func (r *Registry) Record(identity, request string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if request != "" {
		r.byRequest[request] = identity
		if trimmed := trimExt(request); trimmed != request {
			r.byRequest[trimmed] = identity
		}
	}

	if _, ok := r.byIdentity[identity]; ok {
		return false
	}
	r.byIdentity[identity] = len(r.ordered)
	r.ordered = append(r.ordered, Feature{
		Identity:   identity,
		Request:    request,
		RecordedAt: time.Now().UTC(),
	})
	return true
}

// Lookup returns the identity last recorded for an exact request string.
func (r *Registry) Lookup(request string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRequest[request]
	return id, ok
}

// Provide records a builtin feature that has no backing file.
func (r *Registry) Provide(name string) bool {
	return r.Record(BuiltinPrefix+trimExt(name), name)
}

// List returns the recorded features in recording order.
func (r *Registry) List() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Feature(nil), r.ordered...)
}

// Len returns the number of recorded identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
