// Package canon resolves paths to their canonical identity: the absolute,
// symlink-free location of a file on disk. Two requests that canonicalize to
// the same path refer to the same loadable unit.
package canon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Platform limits enforced before touching the filesystem.
const (
	MaxSegment = 255
	MaxPath    = 4096
)

// PathResolutionError reports a path that cannot be resolved to an identity.
type PathResolutionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", truncate(e.Path), e.Reason)
}

func (e *PathResolutionError) Unwrap() error {
	return e.Err
}

// TooLong reports whether the error was caused by a length limit.
func (e *PathResolutionError) TooLong() bool {
	return errors.Is(e.Err, syscall.ENAMETOOLONG)
}

// CheckLength fails when the path or any of its segments exceeds the
// platform limits.
func CheckLength(path string) error {
	if len(path) > MaxPath {
		return &PathResolutionError{Path: path, Reason: "pathname too long", Err: syscall.ENAMETOOLONG}
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if len(seg) > MaxSegment {
			return &PathResolutionError{Path: path, Reason: "path segment too long", Err: syscall.ENAMETOOLONG}
		}
	}
	return nil
}

// Canonicalize returns the absolute, symlink-resolved form of path.
// The path must exist.
func Canonicalize(path string) (string, error) {
	if err := CheckLength(path); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PathResolutionError{Path: path, Reason: "cannot make absolute", Err: err}
	}
	if err := CheckLength(abs); err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", classify(path, err)
	}
	return resolved, nil
}

// Dir returns the canonical directory containing path. For a symlink this is
// the directory of the link target, not of the link itself.
func Dir(path string) (string, error) {
	resolved, err := Canonicalize(path)
	if err != nil {
		return "", err
	}
	return filepath.Dir(resolved), nil
}

// Exists reports whether path names an existing regular file (following
// symlinks). A missing file is not an error; length and permission problems
// are.
func Exists(path string) (bool, error) {
	if err := CheckLength(path); err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, classify(path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Same reports whether a and b resolve to the same identity.
func Same(a, b string) bool {
	ra, err := Canonicalize(a)
	if err != nil {
		return false
	}
	rb, err := Canonicalize(b)
	if err != nil {
		return false
	}
	return ra == rb
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, syscall.ENAMETOOLONG):
		return &PathResolutionError{Path: path, Reason: "pathname too long", Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &PathResolutionError{Path: path, Reason: "no such file or directory", Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &PathResolutionError{Path: path, Reason: "permission denied", Err: err}
	default:
		return &PathResolutionError{Path: path, Reason: "cannot resolve path", Err: err}
	}
}

// truncate keeps error messages readable for pathological inputs.
func truncate(s string) string {
	const limit = 256
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
