// Package tree provides the value model shared by every configuration layer.
//
// A tree node is one of: nil, a scalar (bool, number, string, or an opaque
// parser value such as time.Time), a sequence ([]any) or a mapping (*Map).
// Mappings preserve insertion order and may carry an annotation, a piece of
// out-of-band text (for example a TOML table comment) that is not one of the
// mapping's data keys.
package tree

// Node is any value that can appear in a configuration tree.
type Node = any

// Kind classifies a Node.
type Kind uint8

const (
	// KindNull is a nil node.
	KindNull Kind = iota
	// KindBool is a boolean scalar.
	KindBool
	// KindNumber is an integer or floating point scalar.
	KindNumber
	// KindString is a string scalar.
	KindString
	// KindSequence is an ordered []any.
	KindSequence
	// KindMapping is an ordered *Map.
	KindMapping
	// KindOther is any other scalar (dates, times, parser specific values).
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "other"
	}
}

// KindOf returns the kind of n.
func KindOf(n Node) Kind {
	switch v := n.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindSequence
	case *Map:
		if v == nil {
			return KindNull
		}
		return KindMapping
	default:
		return KindOther
	}
}

// IsComposite reports whether n is a mapping or a sequence.
func IsComposite(n Node) bool {
	k := KindOf(n)
	return k == KindMapping || k == KindSequence
}

// Map is an insertion-ordered mapping from string keys to nodes.
// The zero value is not usable; create maps with NewMap.
type Map struct {
	keys       []string
	values     map[string]Node
	annotation string
}

// NewMap creates an empty mapping.
func NewMap() *Map {
	return &Map{values: make(map[string]Node)}
}

// NewMapWithCapacity creates an empty mapping sized for n keys.
func NewMapWithCapacity(n int) *Map {
	return &Map{
		keys:   make([]string, 0, n),
		values: make(map[string]Node, n),
	}
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Node, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key. A new key is appended after the existing keys;
// an existing key keeps its position.
func (m *Map) Set(key string, value Node) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, exists := m.values[key]; !exists {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, value Node) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Annotation returns the out-of-band text attached to the mapping.
func (m *Map) Annotation() string {
	if m == nil {
		return ""
	}
	return m.annotation
}

// SetAnnotation attaches out-of-band text to the mapping.
func (m *Map) SetAnnotation(text string) {
	m.annotation = text
}

// Clone returns a deep copy of n. Mappings and sequences are copied
// recursively; scalars are returned as is. Annotations are not copied.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *Map:
		if v == nil {
			return nil
		}
		return CloneMap(v)
	case []any:
		return CloneSequence(v)
	default:
		return n
	}
}

// CloneMap returns a deep copy of m without its annotation.
func CloneMap(m *Map) *Map {
	if m == nil {
		return nil
	}
	dst := NewMapWithCapacity(len(m.keys))
	for _, k := range m.keys {
		dst.keys = append(dst.keys, k)
		dst.values[k] = Clone(m.values[k])
	}
	return dst
}

// CloneSequence returns a deep copy of s.
func CloneSequence(s []any) []any {
	if s == nil {
		return nil
	}
	dst := make([]any, len(s))
	for i, v := range s {
		dst[i] = Clone(v)
	}
	return dst
}

// Equal reports whether a and b are structurally equal. Mapping key order and
// annotations are ignored; sequence order is significant. Numbers of
// different Go types compare equal when they hold the same value.
func Equal(a, b Node) bool {
	switch va := a.(type) {
	case *Map:
		vb, ok := b.(*Map)
		if !ok {
			return va == nil && b == nil
		}
		if va.Len() != vb.Len() {
			return false
		}
		equal := true
		va.Range(func(k string, v Node) bool {
			w, ok := vb.Get(k)
			equal = ok && Equal(v, w)
			return equal
		})
		return equal
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(va[i], vb[i]) {
				return false
			}
		}
		return true
	}

	if KindOf(a) == KindNumber && KindOf(b) == KindNumber {
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		return fa == fb
	}
	if IsComposite(b) {
		return false
	}
	return scalarEqual(a, b)
}

func scalarEqual(a, b Node) (equal bool) {
	defer func() {
		// Uncomparable opaque scalars are never equal.
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(n Node) (float64, bool) {
	switch v := n.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
