package cast

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want float64
		ok   bool
	}{
		{"float64", 0.7, 0.7, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 3, 3, true},
		{"int8", int8(-7), -7, true},
		{"uint64", uint64(12), 12, true},
		{"json number", json.Number("0.25"), 0.25, true},
		{"bad json number", json.Number("x"), 0, false},
		{"string", "1.0", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToFloat64(tt.v)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestToInt64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want int64
		ok   bool
	}{
		{"int", 256, 256, true},
		{"int16", int16(4), 4, true},
		{"uint32", uint32(9), 9, true},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, 0, false},
		{"integral float (YAML/JSON)", 512.0, 512, true},
		{"fractional float", 1.5, 0, false},
		{"NaN", math.NaN(), 0, false},
		{"json integer", json.Number("42"), 42, true},
		{"json integral exponent", json.Number("1e3"), 1000, true},
		{"json fraction", json.Number("4.2"), 0, false},
		{"string", "1", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToInt64(tt.v)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToString(t *testing.T) {
	t.Parallel()
	s, ok := ToString("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o", s)

	s, ok = ToString(json.Number("7"))
	assert.True(t, ok)
	assert.Equal(t, "7", s)

	_, ok = ToString(7)
	assert.False(t, ok)
}

func TestToBool(t *testing.T) {
	t.Parallel()
	b, ok := ToBool(true)
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = ToBool("true")
	assert.False(t, ok)
}

func TestToStringSlice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		v      any
		want   []string
		wantOk bool
	}{
		{"single string", "END", []string{"END"}, true},
		{"[]string", []string{"a", "b"}, []string{"a", "b"}, true},
		{"[]any of strings", []any{"x", "y"}, []string{"x", "y"}, true},
		{"[]any empty", []any{}, []string{}, true},
		{"[]any mixed", []any{"a", 123}, nil, false},
		{"nil", nil, nil, false},
		{"map", map[string]any{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToStringSlice(tt.v)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStringMap(t *testing.T) {
	t.Parallel()
	got, ok := ToStringMap(map[string]any{"X-Trace": "abc", "X-N": json.Number("3")})
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"X-Trace": "abc", "X-N": "3"}, got)

	got, ok = ToStringMap(map[string]string{"a": "b"})
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"a": "b"}, got)

	_, ok = ToStringMap(map[string]any{"a": 1})
	assert.False(t, ok)
	_, ok = ToStringMap([]string{"a"})
	assert.False(t, ok)
}

func TestToMap(t *testing.T) {
	t.Parallel()
	got, ok := ToMap(map[string]string{"a": "b"})
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"a": "b"}, got)

	in := map[string]any{"nested": map[string]any{"k": 1}}
	got, ok = ToMap(in)
	assert.True(t, ok)
	assert.Equal(t, in, got)

	_, ok = ToMap("x")
	assert.False(t, ok)
}

func TestToDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want time.Duration
		ok   bool
	}{
		{"seconds int", 30, 30 * time.Second, true},
		{"seconds float", 1.5, 1500 * time.Millisecond, true},
		{"json seconds", json.Number("2"), 2 * time.Second, true},
		{"duration", 5 * time.Millisecond, 5 * time.Millisecond, true},
		{"duration string", "250ms", 250 * time.Millisecond, true},
		{"bad string", "soon", 0, false},
		{"negative", -1, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToDuration(tt.v)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
