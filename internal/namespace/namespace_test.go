package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLookup(t *testing.T, ns *Namespace, name string) *Constant {
	t.Helper()
	c, ok := ns.Lookup(name)
	require.True(t, ok, "constant %s not defined", name)
	return c
}

func TestNew_CoreHierarchy(t *testing.T) {
	ns := New()

	file := mustLookup(t, ns, "File")
	io := mustLookup(t, ns, "IO")
	object := mustLookup(t, ns, "Object")

	assert.Equal(t, KindClass, file.Kind())
	assert.Same(t, io, file.Superclass())
	assert.True(t, file.DescendsFrom(object))
	assert.False(t, io.DescendsFrom(file))
	assert.Equal(t, KindModule, mustLookup(t, ns, "Kernel").Kind())

	names := []string{}
	for _, a := range mustLookup(t, ns, "StandardError").Ancestors() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"Exception", "Object", "BasicObject"}, names)
}

func TestDefineClass(t *testing.T) {
	ns := New()
	io := mustLookup(t, ns, "IO")

	c, err := ns.DefineClass("BasicSocket", io)
	require.NoError(t, err)
	assert.Equal(t, "class BasicSocket < IO", c.String())

	again, err := ns.DefineClass("BasicSocket", nil)
	require.NoError(t, err)
	assert.Same(t, c, again, "reopen without superclass returns the same class")

	_, err = ns.DefineClass("BasicSocket", mustLookup(t, ns, "Object"))
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "superclass mismatch for class BasicSocket")

	_, err = ns.DefineModule("BasicSocket")
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "BasicSocket is not a module (TypeError)", te.Error())
}

func TestDefineNested(t *testing.T) {
	ns := New()
	_, err := ns.DefineModule("Zlib")
	require.NoError(t, err)

	errc, err := ns.DefineClass("Zlib::Error", mustLookup(t, ns, "StandardError"))
	require.NoError(t, err)
	assert.Equal(t, "Zlib::Error", errc.Name())

	zlib := mustLookup(t, ns, "Zlib")
	assert.Equal(t, []string{"Error"}, zlib.ChildNames())

	_, err = ns.DefineClass("Missing::Thing", nil)
	var ne *NameError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "Missing", ne.Name)

	_, err = ns.SetConst("Answer", 42)
	require.NoError(t, err)
	_, err = ns.DefineModule("Answer::Inner")
	var te *TypeError
	require.ErrorAs(t, err, &te)
}

func TestSetConst(t *testing.T) {
	ns := New()
	c, err := ns.SetConst("Hello", "hello")
	require.NoError(t, err)
	assert.Equal(t, KindValue, c.Kind())
	assert.Equal(t, "hello", c.Value())

	_, err = ns.SetConst("Hello", "again")
	require.NoError(t, err)
	assert.Equal(t, "again", mustLookup(t, ns, "Hello").Value())

	_, err = ns.SetConst("lower", 1)
	var ne *NameError
	require.ErrorAs(t, err, &ne)
}

func TestWrapped_IsolatesDefinitions(t *testing.T) {
	global := New()
	_, err := global.SetConst("Shared", 1)
	require.NoError(t, err)

	wrap := NewWrapped(global, "wrap")
	assert.True(t, wrap.Wrapped())

	_, err = wrap.DefineModule("Foo")
	require.NoError(t, err)
	_, err = wrap.SetConst("Hello", "hello")
	require.NoError(t, err)

	assert.True(t, wrap.Defined("Foo"))
	assert.True(t, wrap.Defined("Shared"), "lookups fall back to the parent")
	assert.Equal(t, []string{"Foo", "Hello"}, wrap.Names())

	assert.False(t, global.Defined("Foo"))
	assert.False(t, global.Defined("Hello"))
	assert.Same(t, global.Object(), wrap.Object())
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Zlib", false},
		{"Zlib::Error", false},
		{"Socket::Constants", false},
		{"A1_b", false},
		{"", true},
		{"zlib", true},
		{"Zlib::", true},
		{"::Zlib", true},
		{"Zl-ib", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	outer, leaf := Split("A::B::C")
	assert.Equal(t, "A::B", outer)
	assert.Equal(t, "C", leaf)

	outer, leaf = Split("A")
	assert.Equal(t, "", outer)
	assert.Equal(t, "A", leaf)
}

func TestDefineNested_ThroughValueScope(t *testing.T) {
	ns := New()
	_, err := ns.SetConst("A", 1)
	require.NoError(t, err)

	_, err = ns.DefineClass("A::B::C", nil)
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "A", te.Name)

	_, err = ns.DefineModule("M")
	require.NoError(t, err)
	_, err = ns.DefineModule("M::Missing::Inner")
	var ne *NameError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "M::Missing", ne.Name)
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, []string{"A"}, Prefixes("A"))
	assert.Equal(t, []string{"A", "A::B", "A::B::C"}, Prefixes("A::B::C"))
}
