package starlark

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/leapstack-labs/starload/internal/namespace"
	"go.starlark.net/starlark"
)

// ErrNotData is returned by ToGo for values with no plain-data form, such
// as functions and class handles.
var ErrNotData = errors.New("not plain data")

// GoToStarlark converts a value constant's payload to what scripts see.
// Values that already are Starlark values pass through; namespace entries
// are wrapped; YAML-shaped data (scalars, slices, string-keyed maps)
// becomes strings, numbers, lists and dicts. Dict keys are inserted in
// sorted order so printing a converted map is deterministic.
func GoToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return val, nil
	case *namespace.Constant:
		return NewConstant(val), nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint:
		return starlark.MakeUint(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case *big.Int:
		return starlark.MakeBigInt(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case []string:
		elems := make([]starlark.Value, len(val))
		for i, s := range val {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []any:
		elems, err := convertSlice(val)
		if err != nil {
			return nil, err
		}
		return starlark.NewList(elems), nil
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return convertMap(m)
	case map[string]any:
		return convertMap(val)
	}
	return nil, fmt.Errorf("cannot convert %T to a starlark value", v)
}

func convertSlice(items []any) ([]starlark.Value, error) {
	elems := make([]starlark.Value, len(items))
	for i, item := range items {
		sv, err := GoToStarlark(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		elems[i] = sv
	}
	return elems, nil
}

func convertMap(m map[string]any) (*starlark.Dict, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := starlark.NewDict(len(m))
	for _, k := range keys {
		sv, err := GoToStarlark(m[k])
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// ToGo converts plain Starlark data to Go: nil, string, bool, int64 (or
// *big.Int when it does not fit), float64, []any for lists, tuples
// and sets, and map[string]any for dicts with string keys. Anything
// else fails with ErrNotData.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return val.BigInt(), nil
	case starlark.Float:
		return float64(val), nil
	case *starlark.List:
		return indexToGo(val)
	case starlark.Tuple:
		return indexToGo(val)
	case *starlark.Set:
		return setToGo(val)
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, kv := range val.Items() {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s: %w", kv[0].Type(), ErrNotData)
			}
			gv, err := ToGo(kv[1])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			out[key] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", v.Type(), ErrNotData)
}

func indexToGo(seq starlark.Indexable) ([]any, error) {
	out := make([]any, seq.Len())
	for i := range out {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = gv
	}
	return out, nil
}

func setToGo(set *starlark.Set) ([]any, error) {
	iter := set.Iterate()
	defer iter.Done()

	out := make([]any, 0, set.Len())
	var elem starlark.Value
	for iter.Next(&elem) {
		gv, err := ToGo(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, gv)
	}
	return out, nil
}
