package starlark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/starload/internal/deferred"
	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/namespace"
	"github.com/leapstack-labs/starload/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type harness struct {
	t    *testing.T
	dir  string
	out  *bytes.Buffer
	ev   *Evaluator
	eng  *engine.Engine
	ctx  context.Context
	path *loadpath.LoadPath
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	logger := testutil.NewTestLogger(t)
	out := &bytes.Buffer{}
	ev := NewEvaluator(WithStdout(out), WithLogger(logger))
	lp := loadpath.New(dir, logger)
	lp.Append(filepath.Join(dir, "lib"), loadpath.Trusted)

	eng, err := engine.New(engine.Config{
		LoadPath: lp,
		WorkDir:  dir,
		Logger:   logger,
	}, engine.WithEvaluator(ev))
	require.NoError(t, err)

	return &harness{t: t, dir: dir, out: out, ev: ev, eng: eng, ctx: context.Background(), path: lp}
}

func (h *harness) write(rel, src string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRequire_FromScript(t *testing.T) {
	h := newHarness(t)
	h.write("lib/greeting.star", `print("loading greeting")`)
	h.write("main.star", `
print(require("greeting"))
print(require("greeting.star"))
print(require("./lib/greeting"))
`)

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "loading greeting\nTrue\nFalse\nFalse\n", h.out.String())
}

func TestRequire_MissingFeatureIsLoadError(t *testing.T) {
	h := newHarness(t)
	h.write("main.star", `require("no_such_feature")`)

	err := h.eng.Run(h.ctx, "main.star")
	var le *engine.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "no_such_feature", le.Feature)
}

func TestLoadFile_WrapIsolatesConstants(t *testing.T) {
	h := newHarness(t)
	h.write("wrapped.star", `
Hello = "hello"
Foo = define_class("Foo")
print(Hello)
def _bye():
    print("bar")
at_exit(_bye)
`)
	h.write("main.star", `
def _first():
    print("foo")
at_exit(_first)
load_file("wrapped.star", wrap=True)
print(const_defined("Hello"), const_defined("Foo"))
def _last():
    fail("last failed")
at_exit(_last)
`)

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "hello\nFalse False\n", h.out.String())

	errs := h.eng.Shutdown(h.ctx)
	assert.Equal(t, "hello\nFalse False\nbar\nfoo\n", h.out.String())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "last failed")
	assert.Equal(t, 1, deferred.ExitCode(errs))
}

func TestLoadFile_Unwrapped(t *testing.T) {
	h := newHarness(t)
	h.write("plain.star", `Hello = "hello"`)
	h.write("main.star", `
load_file("plain.star")
print(const_get("Hello"))
`)

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "hello\n", h.out.String())
}

func TestAtExit_WithoutFunction(t *testing.T) {
	h := newHarness(t)
	h.write("main.star", `at_exit()`)

	err := h.eng.Run(h.ctx, "main.star")
	var ae *deferred.ArgumentError
	assert.ErrorAs(t, err, &ae)
}

func TestLoadStatement(t *testing.T) {
	h := newHarness(t)
	h.write("helpers.star", `
def greet(name):
    return "hello " + name
_private = 1
`)
	h.write("lib/shared.star", `VERSION = "1.0"`)
	h.write("main.star", `
load("helpers.star", "greet")
load("shared", "VERSION")
print(greet("world"), VERSION)
print(require("shared"))
`)

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "hello world 1.0\nFalse\n", h.out.String())

	exports, ok := h.ev.Exports(filepath.Join(h.dir, "helpers.star"))
	require.True(t, ok)
	assert.Contains(t, exports.Keys(), "greet")
	assert.NotContains(t, exports.Keys(), "_private")
}

func TestRequireRelative_ThroughSymlink(t *testing.T) {
	h := newHarness(t)
	h.write("a/lib.star", `print("a/lib")`)
	h.write("a/tst.star", `require_relative("lib")`)
	h.write("b/lib.star", `fail("resolved against the symlink directory")`)
	require.NoError(t, os.Symlink("../a/tst.star", filepath.Join(h.dir, "b", "tst.star")))

	require.NoError(t, h.eng.Run(h.ctx, "b/tst.star"))
	assert.Equal(t, "a/lib\n", h.out.String())
}

func TestDefineClassAndConstants(t *testing.T) {
	h := newHarness(t)
	h.write("main.star", `
Zlib = define_module("Zlib")
Error = define_class("Zlib::Error", "StandardError")
print(Error, Error.kind, Error.superclass)
print(Zlib.Error == Error, Zlib.Error == const_get("Zlib::Error"))
const_set("Zlib::VERSION", "1.3")
print(Zlib.VERSION)
print(define_class("Custom", StandardError).superclass)
print(IO, File.superclass == IO)
Answer = 42
`)

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "Zlib::Error class StandardError\nTrue True\n1.3\nStandardError\nIO True\n", h.out.String())

	ns := h.eng.Namespace()
	zlib, ok := ns.Lookup("Zlib")
	require.True(t, ok)
	assert.Equal(t, namespace.KindModule, zlib.Kind(), "re-exported constants keep their kind")

	answer, ok := ns.Lookup("Answer")
	require.True(t, ok)
	value, ok := answer.Value().(starlark.Value)
	require.True(t, ok)
	assert.Equal(t, "42", value.String())

	errc, ok := ns.Lookup("Error")
	require.True(t, ok, "binding under another name is an alias")
	assert.Equal(t, namespace.KindValue, errc.Kind())
}

func TestDefineConflictsSurfaceTypedErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"module over class", `define_module("IO")`, &namespace.TypeError{}},
		{"superclass mismatch", `define_class("File", "Object")`, &namespace.TypeError{}},
		{"missing scope", `define_class("Nope::Thing")`, &namespace.NameError{}},
		{"missing superclass name", `define_class("Thing", "Nope")`, &namespace.NameError{}},
		{"missing constant", `const_get("Nope")`, &namespace.NameError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.write("main.star", tt.src)

			err := h.eng.Run(h.ctx, "main.star")
			require.Error(t, err)
			switch tt.want.(type) {
			case *namespace.TypeError:
				var te *namespace.TypeError
				assert.True(t, errors.As(err, &te), "want TypeError, got %v", err)
			case *namespace.NameError:
				var ne *namespace.NameError
				assert.True(t, errors.As(err, &ne), "want NameError, got %v", err)
			}
		})
	}
}

func TestPredefinedValueBlocksLaterDefinition(t *testing.T) {
	h := newHarness(t)
	h.write("first.star", `Zlib = 1`)
	h.write("second.star", `define_module("Zlib")`)

	require.NoError(t, h.eng.Load(h.ctx, "first.star", false))
	err := h.eng.Load(h.ctx, "second.star", false)
	var te *namespace.TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Zlib is not a module (TypeError)", te.Error())
}

func TestLoadPathAppendAndLoadedFeatures(t *testing.T) {
	h := newHarness(t)
	h.write("extra/tool.star", ``)
	h.write("main.star", fmt.Sprintf(`
print(load_path_append(%q, untrusted=True))
require("tool")
print(len(loaded_features()))
`, filepath.Join(h.dir, "extra")))

	require.NoError(t, h.eng.Run(h.ctx, "main.star"))
	assert.Equal(t, "True\n1\n", h.out.String())
	entries := h.path.Entries()
	assert.Equal(t, loadpath.Untrusted, entries[len(entries)-1].Trust)
}

func TestExecute_RequiresEngineInContext(t *testing.T) {
	ev := NewEvaluator()
	err := ev.Execute(context.Background(), &engine.Unit{Path: "x.star"}, namespace.New())
	assert.ErrorIs(t, err, errNoEngine)
}

func TestSession(t *testing.T) {
	h := newHarness(t)
	h.write("lib/util.star", `print("util loaded")`)
	s := NewSession(h.eng, h.ev)

	v, err := s.Eval(h.ctx, "x = 20")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)

	v, err = s.Eval(h.ctx, "x * 2 + 2")
	require.NoError(t, err)
	assert.Equal(t, "42", v.String())

	v, err = s.Eval(h.ctx, `require("util")`)
	require.NoError(t, err)
	assert.Equal(t, starlark.True, v)
	assert.Equal(t, "util loaded\n", h.out.String())

	_, err = s.Eval(h.ctx, `Greeting = "hi"`)
	require.NoError(t, err)
	assert.True(t, h.eng.Namespace().Defined("Greeting"))
	assert.Equal(t, []string{"Greeting", "x"}, s.Globals())

	_, err = s.Eval(h.ctx, "undefined_name + 1")
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "<repl:5>", ee.File)

	_, err = s.Eval(h.ctx, "require_relative('x')")
	var le *engine.LoadError
	assert.ErrorAs(t, err, &le, "no unit is loading in a session")
}

func TestConstant_Attrs(t *testing.T) {
	ns := namespace.New()
	zlib, err := ns.DefineModule("Zlib")
	require.NoError(t, err)
	_, err = ns.SetConst("Zlib::VERSION", "1.3")
	require.NoError(t, err)

	v := NewConstant(zlib)
	assert.Equal(t, "module", v.Type())
	assert.Equal(t, []string{"VERSION", "kind", "name", "superclass"}, v.AttrNames())

	got, err := v.Attr("VERSION")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("1.3"), got)

	missing, err := v.Attr("Missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	super, err := v.Attr("superclass")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, super)
}
