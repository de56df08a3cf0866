package starlark

import (
	"math/big"
	"testing"

	"github.com/leapstack-labs/starload/internal/namespace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestGoToStarlark_Repr(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	for _, tc := range []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{"hello", `"hello"`},
		{true, "True"},
		{42, "42"},
		{int32(-7), "-7"},
		{int64(1 << 40), "1099511627776"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{huge, "123456789012345678901234567890"},
		{2.5, "2.5"},
		{[]string{}, "[]"},
		{[]string{"a", "b"}, `["a", "b"]`},
		{[]any{1, "x", nil}, `[1, "x", None]`},
		{map[string]string{"b": "2", "a": "1"}, `{"a": "1", "b": "2"}`},
		{map[string]any{"z": []any{true}, "m": map[string]any{"k": 1}}, `{"m": {"k": 1}, "z": [True]}`},
		{starlark.MakeInt(5), "5"},
	} {
		got, err := GoToStarlark(tc.in)
		require.NoError(t, err, "%T", tc.in)
		assert.Equal(t, tc.want, got.String(), "%T", tc.in)
	}
}

func TestGoToStarlark_NamespaceEntry(t *testing.T) {
	ns := namespace.New()
	zlib, err := ns.DefineModule("Zlib")
	require.NoError(t, err)

	v, err := GoToStarlark(zlib)
	require.NoError(t, err)
	c, ok := v.(*Constant)
	require.True(t, ok)
	assert.Equal(t, "Zlib", c.Name())
}

func TestGoToStarlark_Unsupported(t *testing.T) {
	_, err := GoToStarlark(struct{}{})
	assert.ErrorContains(t, err, "cannot convert struct {}")

	_, err = GoToStarlark(map[string]any{"ok": 1, "bad": make(chan int)})
	assert.ErrorContains(t, err, `["bad"]`)
}

func TestToGo_Data(t *testing.T) {
	list := starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("two")})
	dict := starlark.NewDict(2)
	require.NoError(t, dict.SetKey(starlark.String("list"), list))
	require.NoError(t, dict.SetKey(starlark.String("pair"), starlark.Tuple{starlark.True, starlark.None}))
	set := starlark.NewSet(1)
	require.NoError(t, set.Insert(starlark.String("only")))
	huge := starlark.MakeBigInt(new(big.Int).Lsh(big.NewInt(1), 80))

	for name, tc := range map[string]struct {
		in   starlark.Value
		want any
	}{
		"none":   {starlark.None, nil},
		"string": {starlark.String("s"), "s"},
		"bool":   {starlark.False, false},
		"int":    {starlark.MakeInt(-3), int64(-3)},
		"bigint": {huge, new(big.Int).Lsh(big.NewInt(1), 80)},
		"float":  {starlark.Float(0.25), 0.25},
		"set":    {set, []any{"only"}},
		"nested": {dict, map[string]any{
			"list": []any{int64(1), "two"},
			"pair": []any{true, nil},
		}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ToGo(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToGo_NotData(t *testing.T) {
	fn := starlark.NewBuiltin("f", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return starlark.None, nil
	})
	intKeys := starlark.NewDict(1)
	require.NoError(t, intKeys.SetKey(starlark.MakeInt(1), starlark.None))

	for _, v := range []starlark.Value{
		fn,
		intKeys,
		starlark.NewList([]starlark.Value{fn}),
	} {
		_, err := ToGo(v)
		assert.ErrorIs(t, err, ErrNotData, v.String())
	}
}

func TestConversionRoundTripKeepsDictOrderSorted(t *testing.T) {
	v, err := GoToStarlark(map[string]any{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)

	dict, ok := v.(*starlark.Dict)
	require.True(t, ok)
	var keys []string
	for _, k := range dict.Keys() {
		keys = append(keys, string(k.(starlark.String)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	back, err := ToGo(dict)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2), "c": int64(3)}, back)
}
