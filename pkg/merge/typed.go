package merge

import "fmt"

// TypedFn is a merge function operating on decoded values rather than raw
// bytes — the shape pkg/staged's typed Set/Get layer needs. old is nil
// when the key did not exist at the common ancestor; ours or theirs is
// nil when that side removed the key.
type TypedFn func(old, ours, theirs any) (any, error)

// numeric coerces a decoded value to float64 so Counter works whether the
// value came through encoding/json (float64) or was set directly as an
// int/int64 before encoding.
func numeric(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("merge: value %v is not numeric", v)
	}
}

// Counter returns a TypedFn for additive counters: the merged value is
// ours + theirs - old, so two independent increments off the same base
// both land instead of one clobbering the other.
func Counter() TypedFn {
	return func(old, ours, theirs any) (any, error) {
		base := 0.0
		if old != nil {
			v, err := numeric(old)
			if err != nil {
				return nil, err
			}
			base = v
		}
		oursN, err := numeric(ours)
		if err != nil {
			return nil, err
		}
		theirsN, err := numeric(theirs)
		if err != nil {
			return nil, err
		}
		return oursN + theirsN - base, nil
	}
}

// LastWriterWins returns a TypedFn that always resolves to theirs,
// regardless of value type.
func LastWriterWins() TypedFn {
	return func(old, ours, theirs any) (any, error) {
		return theirs, nil
	}
}
