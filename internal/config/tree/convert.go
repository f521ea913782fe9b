package tree

import (
	"reflect"
	"sort"
)

// FromGo converts plain Go values into a tree. Maps with string keys become
// *Map with keys in sorted order (Go maps carry no order), slices and arrays
// become []any. Values that already are tree nodes are deep-copied.
func FromGo(v any) Node {
	switch val := v.(type) {
	case nil:
		return nil
	case *Map:
		return Clone(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapWithCapacity(len(keys))
		for _, k := range keys {
			m.Set(k, FromGo(val[k]))
		}
		return m
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapWithCapacity(len(keys))
		for _, k := range keys {
			m.Set(k, val[k])
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = FromGo(item)
		}
		return s
	case []string:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = item
		}
		return s
	case []map[string]any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = FromGo(item)
		}
		return s
	case bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			// Binary blobs are not tree shaped; keep them opaque.
			return v
		}
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = FromGo(rv.Index(i).Interface())
		}
		return s
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		m := NewMapWithCapacity(len(keys))
		for _, k := range keys {
			m.Set(k, FromGo(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()))
		}
		return m
	default:
		return v
	}
}

// ToGo converts a tree into plain Go values: *Map becomes map[string]any and
// sequences become []any. Order information is lost.
func ToGo(n Node) any {
	switch v := n.(type) {
	case *Map:
		if v == nil {
			return nil
		}
		out := make(map[string]any, v.Len())
		v.Range(func(k string, val Node) bool {
			out[k] = ToGo(val)
			return true
		})
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ToGo(item)
		}
		return out
	default:
		return n
	}
}
