// Package loadpath provides the ordered, mutable list of directories searched
// when a feature is required by name.
//
// Every entry carries a trust tag. Entries are expanded exactly once, when
// they are appended: a leading "~" is replaced by the configured home value,
// and list values are split on the platform list separator. Nothing is
// re-expanded at search time.
package loadpath

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/starload/internal/canon"
)

// Trust tags the origin of a load-path entry.
type Trust int

// Trust values.
const (
	Trusted Trust = iota
	Untrusted
)

func (t Trust) String() string {
	if t == Untrusted {
		return "untrusted"
	}
	return "trusted"
}

// Entry is a single directory on the load path.
type Entry struct {
	Dir   string
	Trust Trust
}

// Candidate is a file path produced by a search together with the entry it
// was derived from.
type Candidate struct {
	Path  string
	Entry Entry
}

// ErrNotFound is returned by Find when no candidate exists.
var ErrNotFound = errors.New("not found on load path")

// LoadPath is an ordered list of entries. The first existing match wins.
type LoadPath struct {
	mu      sync.RWMutex
	entries []Entry
	home    string
	logger  *slog.Logger
}

// New creates an empty load path. home is used to expand a leading "~".
func New(home string, logger *slog.Logger) *LoadPath {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LoadPath{home: home, logger: logger}
}

// Home returns the home value used for expansion.
func (lp *LoadPath) Home() string {
	return lp.home
}

// Append expands raw and adds it to the end of the load path. Entries that
// exceed the platform path limits after expansion are ignored with a warning.
// It reports whether the entry was added.
func (lp *LoadPath) Append(raw string, trust Trust) bool {
	dir, ok := lp.expand(raw)
	if !ok {
		return false
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.entries = append(lp.entries, Entry{Dir: dir, Trust: trust})
	return true
}

// AppendList splits value on the platform list separator and appends each
// piece independently. Empty pieces are skipped.
func (lp *LoadPath) AppendList(value string, trust Trust) int {
	added := 0
	for _, piece := range SplitList(value) {
		if lp.Append(piece, trust) {
			added++
		}
	}
	return added
}

// Replace swaps the whole list. Entries are taken as already expanded.
func (lp *LoadPath) Replace(entries []Entry) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.entries = append([]Entry(nil), entries...)
}

// Remove deletes every entry whose directory equals dir.
func (lp *LoadPath) Remove(dir string) int {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	kept := lp.entries[:0]
	removed := 0
	for _, e := range lp.entries {
		if e.Dir == dir {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	lp.entries = kept
	return removed
}

// Entries returns a copy of the current entries in search order.
func (lp *LoadPath) Entries() []Entry {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return append([]Entry(nil), lp.entries...)
}

// Len returns the number of entries.
func (lp *LoadPath) Len() int {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return len(lp.entries)
}

// Search lists every candidate path for feature in precedence order. When
// feature already ends in one of exts it is tried as-is; otherwise each
// extension is appended in order.
func (lp *LoadPath) Search(feature string, exts []string) []Candidate {
	names := Expansions(feature, exts)
	entries := lp.Entries()

	candidates := make([]Candidate, 0, len(entries)*len(names))
	for _, e := range entries {
		for _, name := range names {
			candidates = append(candidates, Candidate{
				Path:  filepath.Join(e.Dir, name),
				Entry: e,
			})
		}
	}
	return candidates
}

// Find returns the first existing candidate for feature. Candidates that
// violate path limits are skipped; if nothing is found and at least one
// candidate was too long, the returned error wraps the length error.
func (lp *LoadPath) Find(feature string, exts []string) (Candidate, error) {
	var lengthErr error
	for _, c := range lp.Search(feature, exts) {
		ok, err := canon.Exists(c.Path)
		if err != nil {
			var pre *canon.PathResolutionError
			if errors.As(err, &pre) && pre.TooLong() {
				if lengthErr == nil {
					lengthErr = err
				}
				continue
			}
			return Candidate{}, fmt.Errorf("probing %s: %w", c.Path, err)
		}
		if ok {
			return c, nil
		}
	}
	if lengthErr != nil {
		return Candidate{}, fmt.Errorf("%w: %w", ErrNotFound, lengthErr)
	}
	return Candidate{}, ErrNotFound
}

// expand applies home expansion and validates path limits.
func (lp *LoadPath) expand(raw string) (string, bool) {
	dir := ExpandHome(raw, lp.home)
	if err := canon.CheckLength(dir); err != nil {
		lp.logger.Warn("openpath: pathname too long (ignored)", slog.Int("length", len(dir)))
		return "", false
	}
	return dir, true
}

// ExpandHome replaces a leading "~" (alone or followed by a separator) with
// home. Other "~user" forms are left untouched.
func ExpandHome(raw, home string) string {
	if raw == "~" {
		return home
	}
	if strings.HasPrefix(raw, "~/") || strings.HasPrefix(raw, "~"+string(os.PathSeparator)) {
		return home + raw[1:]
	}
	return raw
}

// SplitList splits a search-path value on the platform list separator,
// dropping empty pieces.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, piece := range strings.Split(value, string(os.PathListSeparator)) {
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// Expansions returns the file names tried for feature given the known
// extensions, in order.
func Expansions(feature string, exts []string) []string {
	if HasKnownExt(feature, exts) {
		return []string{feature}
	}
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, feature+ext)
	}
	return names
}

// HasKnownExt reports whether name ends in one of exts.
func HasKnownExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
