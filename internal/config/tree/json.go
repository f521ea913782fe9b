package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrInvalidJSON is returned when decoding malformed JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the mapping, keeping the
// document's key order. Existing entries are discarded.
func (m *Map) UnmarshalJSON(data []byte) error {
	n, err := FromJSON(data)
	if err != nil {
		return err
	}
	decoded, ok := n.(*Map)
	if !ok {
		return fmt.Errorf("%w: expected object, got %s", ErrInvalidJSON, KindOf(n))
	}
	m.keys = decoded.keys
	m.values = decoded.values
	return nil
}

// EncodeJSON encodes n as JSON, indented when indent is true.
func EncodeJSON(n Node, indent bool) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	if indent {
		return pretty.Pretty(data), nil
	}
	return data, nil
}

// FromJSON decodes a JSON document into a tree, preserving object key order.
// Integral numbers become int64, other numbers float64.
func FromJSON(data []byte) (Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Node {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return i
			}
		}
		return r.Num
	case gjson.String:
		return r.Str
	}

	if r.IsArray() {
		s := make([]any, 0)
		r.ForEach(func(_, value gjson.Result) bool {
			s = append(s, fromResult(value))
			return true
		})
		return s
	}

	m := NewMap()
	r.ForEach(func(key, value gjson.Result) bool {
		m.Set(key.Str, fromResult(value))
		return true
	})
	return m
}
