package starlark

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/starload/internal/deferred"
	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/namespace"
	"go.starlark.net/starlark"
)

// builtins are predeclared in every unit. They reach the engine through the
// thread's execState.
var builtins starlark.StringDict

func init() {
	builtins = starlark.StringDict{
		"require":          starlark.NewBuiltin("require", builtinRequire),
		"require_relative": starlark.NewBuiltin("require_relative", builtinRequireRelative),
		"load_file":        starlark.NewBuiltin("load_file", builtinLoadFile),
		"at_exit":          starlark.NewBuiltin("at_exit", builtinAtExit),
		"define_module":    starlark.NewBuiltin("define_module", builtinDefineModule),
		"define_class":     starlark.NewBuiltin("define_class", builtinDefineClass),
		"const_set":        starlark.NewBuiltin("const_set", builtinConstSet),
		"const_get":        starlark.NewBuiltin("const_get", builtinConstGet),
		"const_defined":    starlark.NewBuiltin("const_defined", builtinConstDefined),
		"load_path_append": starlark.NewBuiltin("load_path_append", builtinLoadPathAppend),
		"loaded_features":  starlark.NewBuiltin("loaded_features", builtinLoadedFeatures),
	}
}

// BuiltinNames lists the predeclared builtins.
func BuiltinNames() []string {
	return builtins.Keys()
}

func builtinRequire(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var feature string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &feature); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	res, err := st.eng.Require(st.ctx, feature)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(res.Loaded()), nil
}

func builtinRequireRelative(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	res, err := st.eng.RequireRelative(st.ctx, name)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(res.Loaded()), nil
}

func builtinLoadFile(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path string
		wrap bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "wrap?", &wrap); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	if err := st.eng.Load(st.ctx, path, wrap); err != nil {
		return nil, err
	}
	return starlark.True, nil
}

func builtinAtExit(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn?", &fn); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, st.eng.AtExit(nil)
	}
	if err := st.eng.AtExit(callback(st, fn)); err != nil {
		return nil, err
	}
	return fn, nil
}

// callback adapts a Starlark callable to a deferred callback. It runs later
// on a fresh thread; fail() becomes the callback's error.
func callback(st *execState, fn starlark.Callable) deferred.Callback {
	return func(ctx context.Context) error {
		cbState := &execState{ctx: engine.WithContext(ctx, st.eng), eng: st.eng, ev: st.ev, ns: st.ns}
		thread, release := st.ev.newThread("at_exit:"+fn.Name(), cbState)
		defer release()
		_, err := starlark.Call(thread, fn, nil, nil)
		return err
	}
}

func builtinDefineModule(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	c, err := st.ns.DefineModule(name)
	if err != nil {
		return nil, err
	}
	return NewConstant(c), nil
}

func builtinDefineClass(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name  string
		super starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "superclass?", &super); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}

	var base *namespace.Constant
	switch s := super.(type) {
	case starlark.NoneType:
	case *Constant:
		base = s.Unwrap()
	case starlark.String:
		c, ok := st.ns.Lookup(string(s))
		if !ok {
			return nil, &namespace.NameError{Name: string(s), Message: "uninitialized constant " + string(s)}
		}
		base = c
	default:
		return nil, fmt.Errorf("%s: superclass must be a class or a name, got %s", b.Name(), super.Type())
	}

	c, err := st.ns.DefineClass(name, base)
	if err != nil {
		return nil, err
	}
	return NewConstant(c), nil
}

func builtinConstSet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name  string
		value starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &value); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	value.Freeze()
	// Plain data is stored as Go values so native extensions can read it;
	// functions and class handles stay Starlark values.
	var payload any = value
	if data, err := ToGo(value); err == nil {
		payload = data
	}
	if _, err := st.ns.SetConst(name, payload); err != nil {
		return nil, err
	}
	return value, nil
}

func builtinConstGet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	c, ok := st.ns.Lookup(name)
	if !ok {
		return nil, &namespace.NameError{Name: name, Message: "uninitialized constant " + name}
	}
	return constantValue(c)
}

func builtinConstDefined(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(st.ns.Defined(name)), nil
}

func builtinLoadPathAppend(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		dir       string
		untrusted bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "dir", &dir, "untrusted?", &untrusted); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	trust := loadpath.Trusted
	if untrusted {
		trust = loadpath.Untrusted
	}
	return starlark.Bool(st.eng.LoadPath().Append(dir, trust)), nil
}

func builtinLoadedFeatures(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	st, err := stateOf(thread)
	if err != nil {
		return nil, err
	}
	list := st.eng.Features().List()
	out := make([]starlark.Value, len(list))
	for i, f := range list {
		out[i] = starlark.String(f.Identity)
	}
	return starlark.NewList(out), nil
}
