//go:build linux || darwin || freebsd

package extension

import (
	"fmt"
	"plugin"
)

// Open implements Loader.
func (PluginLoader) Open(path string) (Extension, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, Symbol, path)
	}
	return fromSymbol(sym, path)
}
