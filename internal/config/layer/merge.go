package layer

import (
	"fmt"
	"strings"

	"github.com/dshills/strata/internal/config/tree"
)

// ArrayStrategy selects how two sequences are combined during a merge.
// One strategy applies to every sequence pair of a merge session.
type ArrayStrategy uint8

const (
	// ArrayOverride replaces the target sequence with a copy of the source.
	ArrayOverride ArrayStrategy = iota
	// ArrayMergeInOrder merges elements pairwise by index and keeps the tail
	// of the longer sequence.
	ArrayMergeInOrder
	// ArrayAppend concatenates the source elements after the target elements.
	ArrayAppend
)

// String returns the strategy name as accepted by ParseArrayStrategy.
func (s ArrayStrategy) String() string {
	switch s {
	case ArrayOverride:
		return "override"
	case ArrayMergeInOrder:
		return "merge-in-order"
	case ArrayAppend:
		return "append"
	default:
		return fmt.Sprintf("ArrayStrategy(%d)", uint8(s))
	}
}

// ParseArrayStrategy parses a strategy name. Matching ignores case, dashes
// and underscores; the empty string selects ArrayOverride.
func ParseArrayStrategy(name string) (ArrayStrategy, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(name)))
	switch normalized {
	case "", "override":
		return ArrayOverride, nil
	case "mergeinorder":
		return ArrayMergeInOrder, nil
	case "append":
		return ArrayAppend, nil
	default:
		return ArrayOverride, fmt.Errorf("%w: %q", ErrUnknownArrayStrategy, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ArrayStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ArrayStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseArrayStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnsafeKeys are mapping keys that are never copied or merged, at any depth.
// They are the keys a plain object inherits in a prototype-based runtime:
// assigning either one to a re-hydrated tree rewrites shared object behavior
// instead of storing data. A plain object inherits no "prototype" slot, so
// that name stays an ordinary key.
var UnsafeKeys = []string{"__proto__", "constructor"}

var unsafeKeySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(UnsafeKeys))
	for _, k := range UnsafeKeys {
		set[k] = struct{}{}
	}
	return set
}()

// IsUnsafeKey reports whether key is excluded from every merge.
func IsUnsafeKey(key string) bool {
	_, unsafe := unsafeKeySet[key]
	return unsafe
}

// Merger deep-merges configuration trees. It holds no state besides the
// array strategy, never mutates its inputs and is safe for concurrent use.
type Merger struct {
	arrays ArrayStrategy
}

// NewMerger creates a merger using the given array strategy.
func NewMerger(arrays ArrayStrategy) *Merger {
	return &Merger{arrays: arrays}
}

// ArrayStrategy returns the strategy used for sequences.
func (m *Merger) ArrayStrategy() ArrayStrategy {
	return m.arrays
}

// Merge combines source into target and returns a new tree.
//
// Two mappings are merged key by key, two sequences according to the array
// strategy. In every other case the result is a deep copy of source.
func (m *Merger) Merge(target, source tree.Node) tree.Node {
	return m.MergeAt(target, source, nil)
}

// MergeAt is Merge for subtrees located at path.
func (m *Merger) MergeAt(target, source tree.Node, path tree.Path) tree.Node {
	switch src := source.(type) {
	case *tree.Map:
		if dst, ok := target.(*tree.Map); ok && dst != nil && src != nil {
			return m.mergeMaps(dst, src, path)
		}
	case []any:
		if dst, ok := target.([]any); ok {
			return m.mergeSequences(dst, src, path)
		}
	}
	return m.clone(source)
}

// mergeMaps implements the object merge: copy target, drop the keys the
// source's directives name, then merge or copy every safe source key.
func (m *Merger) mergeMaps(target, source *tree.Map, path tree.Path) *tree.Map {
	dest := m.cloneMap(target)

	for _, key := range ResolveDirectives(source) {
		dest.Delete(key)
	}

	source.Range(func(key string, srcVal tree.Node) bool {
		if IsUnsafeKey(key) {
			return true
		}
		if dstVal, exists := dest.Get(key); exists && sameComposite(dstVal, srcVal) {
			dest.Set(key, m.MergeAt(dstVal, srcVal, path.Child(key)))
		} else {
			dest.Set(key, m.clone(srcVal))
		}
		return true
	})

	return dest
}

func (m *Merger) mergeSequences(target, source []any, path tree.Path) []any {
	switch m.arrays {
	case ArrayMergeInOrder:
		n := min(len(target), len(source))
		dest := make([]any, 0, max(len(target), len(source)))
		for i := 0; i < n; i++ {
			dest = append(dest, m.MergeAt(target[i], source[i], path.Index(i)))
		}
		for i := n; i < len(target); i++ {
			dest = append(dest, m.clone(target[i]))
		}
		for i := n; i < len(source); i++ {
			dest = append(dest, m.clone(source[i]))
		}
		return dest
	case ArrayAppend:
		dest := make([]any, 0, len(target)+len(source))
		for _, v := range target {
			dest = append(dest, m.clone(v))
		}
		for _, v := range source {
			dest = append(dest, m.clone(v))
		}
		return dest
	default:
		return m.cloneSequence(source)
	}
}

// clone deep-copies n into a merge result. It applies the unsafe-key gate at
// every depth, including mappings nested in sequences.
func (m *Merger) clone(n tree.Node) tree.Node {
	switch v := n.(type) {
	case *tree.Map:
		if v == nil {
			return nil
		}
		return m.cloneMap(v)
	case []any:
		return m.cloneSequence(v)
	default:
		return n
	}
}

func (m *Merger) cloneMap(src *tree.Map) *tree.Map {
	dst := tree.NewMapWithCapacity(src.Len())
	src.Range(func(key string, val tree.Node) bool {
		if !IsUnsafeKey(key) {
			dst.Set(key, m.clone(val))
		}
		return true
	})
	return dst
}

func (m *Merger) cloneSequence(src []any) []any {
	if src == nil {
		return nil
	}
	dst := make([]any, len(src))
	for i, v := range src {
		dst[i] = m.clone(v)
	}
	return dst
}

// sameComposite reports whether a and b are both mappings or both sequences.
func sameComposite(a, b tree.Node) bool {
	ka, kb := tree.KindOf(a), tree.KindOf(b)
	return ka == kb && (ka == tree.KindMapping || ka == tree.KindSequence)
}
