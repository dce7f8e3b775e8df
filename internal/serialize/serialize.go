// Package serialize normalizes arbitrary procedure output into JSON-safe
// values. Procedures run interpreted and can return anything; everything that
// crosses back into the pipeline goes through Sanitize first.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"gridsense/internal/logging"
	"gridsense/internal/table"
)

// maxDepth bounds recursion so cyclic structures degrade to strings instead
// of overflowing the stack.
const maxDepth = 100

// Sanitize converts a value into a JSON-safe equivalent: non-finite floats
// become nil, timestamps become RFC 3339 strings, tables become column maps,
// and containers are sanitized recursively. It is total (never panics) and
// idempotent: Sanitize(Sanitize(v)) equals Sanitize(v).
func Sanitize(v interface{}) (out interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategorySerialize).Error("sanitize panic recovered: %v", r)
			out = fmt.Sprintf("%v", v)
		}
	}()
	return sanitize(v, 0)
}

func sanitize(v interface{}, depth int) interface{} {
	if v == nil {
		return nil
	}
	if depth > maxDepth {
		return fmt.Sprintf("%v", v)
	}

	switch val := v.(type) {
	case bool, string:
		return val
	case float64:
		return finiteOrNil(val)
	case float32:
		return finiteOrNil(float64(val))
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return finiteOrNil(f)
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339)
	case time.Duration:
		return val.String()
	case *table.Table:
		return sanitizeTable(val, depth)
	case table.Table:
		return sanitizeTable(&val, depth)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = sanitize(item, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitize(item, depth+1)
		}
		return out
	case []float64:
		out := make([]interface{}, len(val))
		for i, f := range val {
			out[i] = finiteOrNil(f)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case error:
		return val.Error()
	}

	return sanitizeReflect(reflect.ValueOf(v), depth)
}

// sanitizeTable flattens a typed table into a column-oriented map, which is
// the interchange shape downstream table descriptors expect.
func sanitizeTable(t *table.Table, depth int) interface{} {
	if t == nil {
		return nil
	}
	out := make(map[string]interface{}, t.NumCols())
	for _, name := range t.Columns() {
		cells := t.ColumnValues(name)
		col := make([]interface{}, len(cells))
		for i, c := range cells {
			col[i] = sanitize(c, depth+1)
		}
		out[name] = col
	}
	return out
}

// sanitizeReflect handles typed maps, slices, pointers, and structs that the
// fast paths above do not cover.
func sanitizeReflect(rv reflect.Value, depth int) interface{} {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[key] = sanitize(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sanitize(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Struct:
		return sanitizeStruct(rv, depth)
	case reflect.Float32, reflect.Float64:
		return finiteOrNil(rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	default:
		return fmt.Sprintf("%v", rv.Interface())
	}
}

// sanitizeStruct round-trips a struct through JSON to respect its tags, then
// sanitizes the resulting map. Structs that fail to marshal (non-finite
// floats, channels) fall back to their string form.
func sanitizeStruct(rv reflect.Value, depth int) interface{} {
	raw, err := json.Marshal(rv.Interface())
	if err != nil {
		return fmt.Sprintf("%v", rv.Interface())
	}
	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Sprintf("%v", rv.Interface())
	}
	return sanitize(decoded, depth+1)
}

func finiteOrNil(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
