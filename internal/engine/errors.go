package engine

import (
	"fmt"
)

// LoadError reports a feature that could not be resolved or a native unit
// that failed to load.
type LoadError struct {
	Feature string
	Path    string // resolved path, when known
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "cannot load such file"
	}
	subject := e.Feature
	if e.Path != "" {
		subject = e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s -- %s: %v (LoadError)", msg, subject, e.Err)
	}
	return fmt.Sprintf("%s -- %s (LoadError)", msg, subject)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// TrustViolationError reports a unit resolved through an untrusted load-path
// entry while the engine runs restricted.
type TrustViolationError struct {
	Feature string
	Path    string
	Entry   string
}

func (e *TrustViolationError) Error() string {
	return fmt.Sprintf("loading from untrusted path %s is not allowed -- %s (TrustViolationError)", e.Entry, e.Feature)
}

func notFound(feature string, err error) *LoadError {
	return &LoadError{Feature: feature, Err: err}
}
