package program

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// plain normalizes v to the shape encoding/json decodes into any.
func plain(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("value is not JSON: %w", err)
	}
	return out, nil
}

// mustPlain is plain for values produced inside a step. A failure panics
// and is reported as a step error.
func mustPlain(v any) any {
	out, err := plain(v)
	if err != nil {
		panic(err)
	}
	return out
}

// number returns v as a float64. Nil counts as zero.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}

// appended returns a new list holding cur followed by v. A nil cur is an
// empty list.
func appended(cur, v any) ([]any, error) {
	if cur == nil {
		return []any{v}, nil
	}
	list, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not a list", cur, cur)
	}
	out := slices.Clip(list)
	return append(out, v), nil
}

// key renders a lookup key. Strings are used as is; integral numbers
// print without a fraction.
func key(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case float64:
		if k == math.Trunc(k) && math.Abs(k) < 1e15 {
			return fmt.Sprintf("%d", int64(k))
		}
		return fmt.Sprint(k)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(k)
		if err != nil {
			return fmt.Sprint(k)
		}
		return string(data)
	}
}
