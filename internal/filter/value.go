package filter

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// absent reports whether v counts as missing: nil, a nil pointer, slice or
// map, or an empty string.
func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// stringify renders v the way a loosely typed store would display it.
// Absent values become the empty string.
func stringify(v any) string {
	if absent(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case *time.Time:
		return x.Format(time.RFC3339)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Pointer:
		return stringify(rv.Elem().Interface())
	}
	return ""
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toNumber coerces v to a float64. Anything non-numeric, absent or NaN
// becomes 0.
func toNumber(v any) float64 {
	if absent(v) {
		return 0
	}
	var f float64
	switch x := v.(type) {
	case time.Time:
		return float64(x.UnixMilli())
	case *time.Time:
		return float64(x.UnixMilli())
	case string:
		f = parseNumber(x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			f = parseNumber(rv.String())
		case reflect.Bool:
			if rv.Bool() {
				f = 1
			}
		case reflect.Slice, reflect.Array:
			if rv.Len() == 1 {
				f = toNumber(rv.Index(0).Interface())
			}
		case reflect.Pointer:
			f = toNumber(rv.Elem().Interface())
		default:
			f, _ = numeric(v)
		}
	}
	if math.IsNaN(f) {
		return 0
	}
	return f
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// numeric returns v as a float64 when v has a Go numeric kind. Strings are
// not converted.
func numeric(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// sameValue is exact, non-coercing equality. Numbers of different Go types
// compare by value; strings compare case-sensitively.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := numeric(a); ok {
		bn, ok := numeric(b)
		return ok && an == bn
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ra.Kind() {
	case reflect.String:
		return rb.Kind() == reflect.String && ra.String() == rb.String()
	case reflect.Bool:
		return rb.Kind() == reflect.Bool && ra.Bool() == rb.Bool()
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if ra.Type().Comparable() && ra.Type() == rb.Type() {
		return a == b
	}
	return false
}

// asList returns the elements of a slice or array operand.
func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
