// Package accessor reads values out of a merged configuration tree by
// dotted path.
//
// An Accessor wraps one immutable tree. Lookups are memoized per path
// string unless caching is disabled, and composite results are deep copies
// so callers can never modify the tree behind the accessor.
package accessor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dshills/strata/internal/config/tree"
)

var (
	// ErrNotFound indicates no value exists at the requested path.
	ErrNotFound = errors.New("setting not found")

	// ErrTypeMismatch indicates the value has a different type than requested.
	ErrTypeMismatch = errors.New("type mismatch")
)

// TypeError is returned when a type conversion fails.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

type lookup struct {
	value tree.Node
	found bool
}

// Accessor provides path lookups over a configuration tree.
type Accessor struct {
	root    *tree.Map
	noCache bool

	mu    sync.RWMutex
	cache map[string]lookup
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithoutCache disables memoization; every Get walks the tree.
func WithoutCache() Option {
	return func(a *Accessor) { a.noCache = true }
}

// New creates an accessor over root. The accessor takes ownership of root,
// which must not be modified afterwards. A nil root behaves as an empty tree.
func New(root *tree.Map, opts ...Option) *Accessor {
	if root == nil {
		root = tree.NewMap()
	}
	a := &Accessor{root: root}
	for _, opt := range opts {
		opt(a)
	}
	if !a.noCache {
		a.cache = make(map[string]lookup)
	}
	return a
}

// Get returns the value at path. Segments are split on "."; a segment
// addresses a mapping key or, on a sequence, a non-negative decimal index.
// Missing paths and paths running into a scalar report false.
func (a *Accessor) Get(path string) (tree.Node, bool) {
	l := a.lookup(path)
	if !l.found {
		return nil, false
	}
	return tree.Clone(l.value), true
}

func (a *Accessor) lookup(path string) lookup {
	if a.noCache {
		v, ok := tree.Lookup(a.root, path)
		return lookup{value: v, found: ok}
	}

	a.mu.RLock()
	l, hit := a.cache[path]
	a.mu.RUnlock()
	if hit {
		return l
	}

	v, ok := tree.Lookup(a.root, path)
	l = lookup{value: v, found: ok}

	a.mu.Lock()
	a.cache[path] = l
	a.mu.Unlock()
	return l
}

// Has reports whether a value exists at path.
func (a *Accessor) Has(path string) bool {
	return a.lookup(path).found
}

// Raw returns a deep copy of the whole tree.
func (a *Accessor) Raw() *tree.Map {
	return tree.CloneMap(a.root)
}

// CacheEnabled reports whether lookups are memoized.
func (a *Accessor) CacheEnabled() bool {
	return !a.noCache
}

// value returns the stored node at path without copying it.
func (a *Accessor) value(path string) (tree.Node, error) {
	l := a.lookup(path)
	if !l.found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return l.value, nil
}

// GetString returns a string value at the given path.
func (a *Accessor) GetString(path string) (string, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return "", err
	}

	s, ok := val.(string)
	if !ok {
		return "", typeError(path, "string", val)
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (a *Accessor) GetInt(path string) (int, error) {
	i, err := a.GetInt64(path)
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt || i < math.MinInt {
		return 0, &TypeError{Path: path, Expected: "integer", Actual: fmt.Sprintf("out of range value %d", i)}
	}
	return int(i), nil
}

// GetInt64 returns an int64 value at the given path. Floats are accepted
// when they hold an integral value.
func (a *Accessor) GetInt64(path string) (int64, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return 0, err
	}

	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, typeError(path, "integer", val)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, typeError(path, "integer", val)
		}
		return int64(v), nil
	case float64, float32:
		f, _ := tree.ToFloat(v)
		if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, typeError(path, "integer", val)
		}
		return int64(f), nil
	default:
		return 0, typeError(path, "integer", val)
	}
}

// GetFloat64 returns a float64 value at the given path.
func (a *Accessor) GetFloat64(path string) (float64, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return 0, err
	}

	f, ok := tree.ToFloat(val)
	if !ok {
		return 0, typeError(path, "number", val)
	}
	return f, nil
}

// GetBool returns a boolean value at the given path.
func (a *Accessor) GetBool(path string) (bool, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return false, err
	}

	b, ok := val.(bool)
	if !ok {
		return false, typeError(path, "boolean", val)
	}
	return b, nil
}

// GetStringSlice returns a string slice value at the given path.
func (a *Accessor) GetStringSlice(path string) ([]string, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return nil, err
	}

	items, ok := val.([]any)
	if !ok {
		return nil, typeError(path, "string array", val)
	}
	result := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &TypeError{
				Path:     path,
				Expected: "string array",
				Actual:   fmt.Sprintf("array with %s element", tree.KindOf(item)),
			}
		}
		result[i] = s
	}
	return result, nil
}

// GetDuration returns a time.Duration value at the given path.
// Accepts both duration strings (e.g., "500ms") and integers (milliseconds).
func (a *Accessor) GetDuration(path string) (time.Duration, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return 0, err
	}

	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string at %s: %w", path, err)
		}
		return d, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, typeError(path, "duration", val)
	}
}

// GetMap returns a copy of the mapping at the given path.
func (a *Accessor) GetMap(path string) (*tree.Map, error) {
	val, err := a.value(path)
	if err != nil || val == nil {
		return nil, err
	}

	m, ok := val.(*tree.Map)
	if !ok {
		return nil, typeError(path, "object", val)
	}
	return tree.CloneMap(m), nil
}

func typeError(path, expected string, val tree.Node) *TypeError {
	return &TypeError{Path: path, Expected: expected, Actual: tree.KindOf(val).String()}
}
