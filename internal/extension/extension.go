// Package extension opens native extensions: compiled units that declare the
// classes and modules they define and then initialize them.
package extension

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/starload/internal/namespace"
)

// Symbol is the name a plugin must export its extension under.
const Symbol = "Extension"

var (
	// ErrUnsupported is returned by PluginLoader on platforms without
	// plugin support.
	ErrUnsupported = errors.New("native extensions are not supported on this platform")
	// ErrSymbolNotFound means the plugin does not export Symbol.
	ErrSymbolNotFound = errors.New("extension symbol not found")
	// ErrInvalidExtension means the exported symbol has the wrong type.
	ErrInvalidExtension = errors.New("exported symbol is not an extension")
)

// Extension is a loaded native unit. Definitions must be side-effect free;
// Init runs only after every definition passed the conflict check.
type Extension interface {
	Definitions() []namespace.Definition
	Init(scope *namespace.Namespace) error
}

// Loader opens the native unit at path.
type Loader interface {
	Open(path string) (Extension, error)
}

// Func builds an Extension from a definition list and an optional init
// function.
type Func struct {
	Defs   []namespace.Definition
	InitFn func(scope *namespace.Namespace) error
}

// Definitions implements Extension.
func (f Func) Definitions() []namespace.Definition { return f.Defs }

// Init implements Extension.
func (f Func) Init(scope *namespace.Namespace) error {
	if f.InitFn == nil {
		return nil
	}
	return f.InitFn(scope)
}

// StaticLoader serves extensions linked into the binary, keyed by file base
// name ("socket.so"). Paths with no static entry go to Fallback.
type StaticLoader struct {
	mu       sync.RWMutex
	builtins map[string]Extension
	Fallback Loader
}

// NewStaticLoader creates a loader that falls back to fallback (may be nil).
func NewStaticLoader(fallback Loader) *StaticLoader {
	return &StaticLoader{builtins: make(map[string]Extension), Fallback: fallback}
}

// Register links ext under base name name.
func (s *StaticLoader) Register(name string, ext Extension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builtins[name] = ext
}

// Names lists registered base names.
func (s *StaticLoader) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.builtins))
	for name := range s.builtins {
		names = append(names, name)
	}
	return names
}

// Open implements Loader.
func (s *StaticLoader) Open(path string) (Extension, error) {
	s.mu.RLock()
	ext, ok := s.builtins[filepath.Base(path)]
	s.mu.RUnlock()
	if ok {
		return ext, nil
	}
	if s.Fallback == nil {
		return nil, fmt.Errorf("no extension linked for %s", filepath.Base(path))
	}
	return s.Fallback.Open(path)
}

// PluginLoader opens Go plugins that export an Extension under Symbol.
type PluginLoader struct{}

func fromSymbol(sym any, path string) (Extension, error) {
	switch v := sym.(type) {
	case Extension:
		return v, nil
	case *Extension:
		if v != nil && *v != nil {
			return *v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrInvalidExtension, Symbol, path)
}
