package starlark

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/starload/internal/namespace"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Constant exposes a class or module to scripts. Nested constants are
// attributes: Zlib.Error.
type Constant struct {
	c *namespace.Constant
}

var (
	_ starlark.HasAttrs   = (*Constant)(nil)
	_ starlark.Comparable = (*Constant)(nil)
)

// NewConstant wraps c.
func NewConstant(c *namespace.Constant) *Constant {
	return &Constant{c: c}
}

// Name returns the qualified name.
func (v *Constant) Name() string { return v.c.Name() }

// Unwrap returns the namespace entry.
func (v *Constant) Unwrap() *namespace.Constant { return v.c }

func (v *Constant) String() string      { return v.c.Name() }
func (v *Constant) Type() string        { return v.c.Kind().String() }
func (v *Constant) Freeze()             {}
func (v *Constant) Truth() starlark.Bool { return starlark.True }

func (v *Constant) Hash() (uint32, error) {
	return starlark.String(v.c.Name()).Hash()
}

// Attr returns a nested constant, or one of name, kind, superclass.
func (v *Constant) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.c.Name()), nil
	case "kind":
		return starlark.String(v.c.Kind().String()), nil
	case "superclass":
		if s := v.c.Superclass(); s != nil {
			return NewConstant(s), nil
		}
		return starlark.None, nil
	}
	if child, ok := v.c.Child(name); ok {
		return constantValue(child)
	}
	return nil, nil
}

func (v *Constant) AttrNames() []string {
	names := append([]string{"kind", "name", "superclass"}, v.c.ChildNames()...)
	sort.Strings(names)
	return names
}

func (v *Constant) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*Constant)
	switch op {
	case syntax.EQL:
		return v.c == other.c, nil
	case syntax.NEQ:
		return v.c != other.c, nil
	default:
		return false, fmt.Errorf("%s %s %s not implemented", v.Type(), op, y.Type())
	}
}

// constantValue converts a namespace entry to what scripts see: scopes stay
// wrapped, value constants yield their payload.
func constantValue(c *namespace.Constant) (starlark.Value, error) {
	if c.IsScope() {
		return NewConstant(c), nil
	}
	return GoToStarlark(c.Value())
}
