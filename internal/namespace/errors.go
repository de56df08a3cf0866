package namespace

// TypeError reports a constant whose fundamental kind (or top-level
// superclass) is incompatible with a definition.
type TypeError struct {
	Name    string
	Message string
}

func (e *TypeError) Error() string {
	return e.Message + " (TypeError)"
}

// NameError reports a constant that exists with a compatible kind but the
// wrong identity, or a name that cannot be resolved.
type NameError struct {
	Name    string
	Message string
}

func (e *NameError) Error() string {
	return e.Message + " (NameError)"
}
