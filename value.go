package pikav

import "math"

// SanitizeValue recursively replaces IEEE-754 NaN and Infinity float64
// values with nil so that the result can always be marshaled by
// encoding/json and gob without error. This is the Go rendering of the
// upstream Value/Kind sum type's "lossless except NaN/Infinity collapse to
// null" rule (spec §6); see DESIGN.md for why this build uses `any` plus a
// sanitizing pass instead of a hand-rolled tagged union.
func SanitizeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = SanitizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = SanitizeValue(e)
		}
		return out
	default:
		return v
	}
}
