// decimal.go converts floating-point values to a decimal representation
// at the store boundary to avoid float drift, recursing into nested maps
// and lists.
package structured

import (
	"github.com/shopspring/decimal"
)

// ToStorageValue recursively replaces every float64 in v (including inside
// nested maps and slices) with a shopspring/decimal.Decimal, so the JSON
// this package persists never carries raw binary floats.
func ToStorageValue(v any) any {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = ToStorageValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = ToStorageValue(val)
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = decimal.NewFromFloat(val)
		}
		return out
	default:
		return v
	}
}

// FromStorageValue is ToStorageValue's inverse, used when rehydrating a
// persisted payload back into plain float64s for callers that don't care
// about the decimal representation (e.g. the pipeline's in-memory types).
func FromStorageValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = FromStorageValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = FromStorageValue(val)
		}
		return out
	default:
		return v
	}
}
