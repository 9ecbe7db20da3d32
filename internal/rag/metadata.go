package rag

import (
	"fmt"
	"maps"
	"math"
	"strconv"
)

// MetaString returns the metadata value for key rendered as a string.
// Missing keys yield "".
func (d Document) MetaString(key string) string {
	v, ok := d.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MetaFloat returns the numeric metadata value for key. ok is false when the
// key is missing or holds a value that cannot be read as a number.
func (d Document) MetaFloat(key string) (float64, bool) {
	switch v := d.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// MetaInt returns the metadata value for key as an integer, rounding
// fractional numbers. ok is false when the value is missing or not numeric.
func (d Document) MetaInt(key string) (int64, bool) {
	switch v := d.Metadata[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	f, ok := d.MetaFloat(key)
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// normalizeMetadata converts metadata values to the scalar kinds every
// backend can store (string, int64, float64, bool). Unknown kinds are
// stringified. The input map is not modified.
func normalizeMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case nil:
		case string, int64, float64, bool:
			out[k] = tv
		case int:
			out[k] = int64(tv)
		case int32:
			out[k] = int64(tv)
		case uint:
			out[k] = int64(tv)
		case uint32:
			out[k] = int64(tv)
		case uint64:
			out[k] = int64(tv)
		case float32:
			out[k] = float64(tv)
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out
}

// cloneDocument returns a copy of d with its own metadata map.
func cloneDocument(d Document) Document {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}
