package engine

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/starload/internal/canon"
	"github.com/leapstack-labs/starload/internal/features"
	"github.com/leapstack-labs/starload/internal/loadpath"
)

// Resolution describes where a feature was found.
type Resolution struct {
	Feature  string
	Path     string
	Identity string
	Native   bool
	// Entry is the load-path entry the unit was found through, nil for
	// explicit paths.
	Entry *loadpath.Entry
	// Recorded is set when Identity is already in the registry.
	Recorded bool
}

// Dir returns the canonical directory of the resolved unit.
func (r Resolution) Dir() string {
	if r.Identity == "" || strings.HasPrefix(r.Identity, features.BuiltinPrefix) {
		return ""
	}
	return filepath.Dir(r.Identity)
}

// Resolve locates feature the way Require does, without loading it.
func (e *Engine) Resolve(feature string) (Resolution, error) {
	if feature == "" {
		return Resolution{}, notFound(feature, nil)
	}
	if err := canon.CheckLength(feature); err != nil {
		return Resolution{}, notFound(feature, err)
	}
	if isExplicit(feature) {
		return e.resolveExplicit(feature, e.anchor(feature))
	}

	// A request seen before is only a hint: the load path may have changed
	// since, so the file it resolves to now decides.
	hint, hinted := e.features.Lookup(feature)
	if hinted && strings.HasPrefix(hint, features.BuiltinPrefix) {
		return Resolution{Feature: feature, Identity: hint, Recorded: true}, nil
	}

	c, err := e.lp.Find(feature, e.Extensions())
	if err != nil {
		if hinted {
			// The unit that satisfied this request is gone from disk; it
			// stays loaded.
			return Resolution{Feature: feature, Identity: hint, Recorded: true}, nil
		}
		if errors.Is(err, loadpath.ErrNotFound) {
			var pre *canon.PathResolutionError
			if errors.As(err, &pre) {
				return Resolution{}, notFound(feature, pre)
			}
			return Resolution{}, notFound(feature, nil)
		}
		return Resolution{}, notFound(feature, err)
	}
	return e.resolved(feature, c.Path, &c.Entry)
}

// resolveExplicit tries base with each known extension, never consulting
// the load path.
func (e *Engine) resolveExplicit(feature, base string) (Resolution, error) {
	for _, name := range loadpath.Expansions(base, e.Extensions()) {
		ok, err := canon.Exists(name)
		if err != nil {
			return Resolution{}, notFound(feature, err)
		}
		if ok {
			return e.resolved(feature, name, nil)
		}
	}
	return Resolution{}, notFound(feature, nil)
}

// resolveFile finds a file for load: the exact name, anchored at the working
// directory, then under each load-path entry.
func (e *Engine) resolveFile(path string) (Resolution, error) {
	if path == "" {
		return Resolution{}, notFound(path, nil)
	}
	if err := canon.CheckLength(path); err != nil {
		return Resolution{}, notFound(path, err)
	}

	ok, err := canon.Exists(e.anchor(path))
	if err != nil {
		return Resolution{}, notFound(path, err)
	}
	if ok {
		return e.resolved(path, e.anchor(path), nil)
	}
	if isExplicit(path) {
		return Resolution{}, notFound(path, nil)
	}

	// The name is used as-is: load never appends extensions.
	c, err := e.lp.Find(path, []string{filepath.Ext(path)})
	if err != nil {
		return Resolution{}, notFound(path, nil)
	}
	return e.resolved(path, c.Path, &c.Entry)
}

func (e *Engine) resolved(feature, path string, entry *loadpath.Entry) (Resolution, error) {
	identity, err := canon.Canonicalize(path)
	if err != nil {
		return Resolution{}, &LoadError{Feature: feature, Path: path, Err: err}
	}
	return Resolution{
		Feature:  feature,
		Path:     path,
		Identity: identity,
		Native:   loadpath.HasKnownExt(path, e.nativeExts),
		Entry:    entry,
		Recorded: e.features.Contains(identity),
	}, nil
}

// checkTrust rejects units found through untrusted entries when restricted.
func (e *Engine) checkTrust(res Resolution) error {
	if e.trust != Restricted || res.Entry == nil || res.Entry.Trust != loadpath.Untrusted {
		return nil
	}
	return &TrustViolationError{Feature: res.Feature, Path: res.Path, Entry: res.Entry.Dir}
}

func (e *Engine) anchor(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workDir, path)
}

// isExplicit reports whether feature names a file directly instead of being
// searched for on the load path.
func isExplicit(feature string) bool {
	if filepath.IsAbs(feature) {
		return true
	}
	slashed := filepath.ToSlash(feature)
	return slashed == "." || slashed == ".." ||
		strings.HasPrefix(slashed, "./") || strings.HasPrefix(slashed, "../")
}
