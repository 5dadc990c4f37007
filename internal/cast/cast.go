// Package cast decodes loosely typed option values (map[string]any from JSON, YAML or
// row pipelines) into concrete Go types. Every helper reports ok=false instead of
// guessing when the value has the wrong shape.
package cast

import (
	"encoding/json"
	"math"
	"time"
)

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// ToString accepts string and json.Number.
func ToString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// ToBool accepts bool only.
func ToBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// ToFloat64 accepts any Go numeric type and json.Number.
func ToFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case int8, int16, uint8, uint16:
		i, _ := ToInt64(x)
		return float64(i), true
	default:
		return 0, false
	}
}

// ToInt64 accepts integer types, json.Number and floats without a fractional part.
// Unsigned values above math.MaxInt64 are rejected.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return fromSigned(x)
	case int8:
		return fromSigned(x)
	case int16:
		return fromSigned(x)
	case int32:
		return fromSigned(x)
	case int64:
		return x, true
	case uint:
		return fromUnsigned(x)
	case uint8:
		return fromUnsigned(x)
	case uint16:
		return fromUnsigned(x)
	case uint32:
		return fromUnsigned(x)
	case uint64:
		return fromUnsigned(x)
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return fromFloat(f)
	default:
		return 0, false
	}
}

func fromSigned[T signed](x T) (int64, bool) { return int64(x), true }

func fromUnsigned[T unsigned](x T) (int64, bool) {
	if uint64(x) > math.MaxInt64 {
		return 0, false
	}
	return int64(x), true
}

func fromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToStringSlice accepts []string, []any of strings, or a single string (one element).
func ToStringSlice(v any) ([]string, bool) {
	switch x := v.(type) {
	case string:
		return []string{x}, true
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// ToStringMap accepts map[string]string and map[string]any whose values are strings
// (json.Number is rendered as its literal).
func ToStringMap(v any) (map[string]string, bool) {
	switch x := v.(type) {
	case map[string]string:
		return x, true
	case map[string]any:
		out := make(map[string]string, len(x))
		for k, e := range x {
			s, ok := ToString(e)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// ToMap accepts map[string]any and map[string]string.
func ToMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// ToDuration accepts a time.Duration, a number of seconds, or a string understood by
// time.ParseDuration. Negative durations are rejected.
func ToDuration(v any) (time.Duration, bool) {
	var d time.Duration
	switch x := v.(type) {
	case time.Duration:
		d = x
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return 0, false
		}
		d = parsed
	default:
		secs, ok := ToFloat64(v)
		if !ok || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, false
	}
	return d, true
}
