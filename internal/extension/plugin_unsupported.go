//go:build !(linux || darwin || freebsd)

package extension

// Open implements Loader.
func (PluginLoader) Open(string) (Extension, error) {
	return nil, ErrUnsupported
}
