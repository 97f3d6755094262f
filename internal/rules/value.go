package rules

import "strconv"

// toFloat attempts numeric coercion of a context value. JSON decoding hands
// us float64, but account snapshots frequently carry numbers as strings
// (Alpaca reports buying_power as "40000.32").
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy mirrors the loose boolean semantics of account flag fields, which
// arrive as bools, "true"/"false" strings, or 0/1 numbers depending on the
// provider.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "True" || b == "1"
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return false
	}
}

// valuesEqual compares two context values, preferring numeric comparison when
// both sides coerce.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return sa == sb
	}
	return a == b
}
