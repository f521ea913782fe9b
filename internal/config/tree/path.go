package tree

import (
	"strconv"
	"strings"
)

// Path locates a node from the root of a tree. Elements are mapping keys or
// decimal sequence indices. A Path is never modified in place; Child and
// Index return new slices.
type Path []string

// Child returns a new path extended by key.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Index returns a new path extended by a sequence index.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// String joins the path with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// SplitPath splits a dotted path into its segments. Every dot separates two
// segments, so "a..b" yields an empty middle segment.
func SplitPath(path string) Path {
	return Path(strings.Split(path, "."))
}

// Lookup walks root along a dotted path. Mapping segments are looked up by
// key and sequence segments by non-negative decimal index. It returns false
// when a segment is missing or the walk reaches a scalar before the path is
// exhausted. The returned node is not copied.
func Lookup(root Node, path string) (Node, bool) {
	return LookupPath(root, SplitPath(path))
}

// LookupPath is Lookup for an already split path.
func LookupPath(root Node, path Path) (Node, bool) {
	current := root
	for _, segment := range path {
		switch v := current.(type) {
		case *Map:
			next, ok := v.Get(segment)
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(v) || strconv.Itoa(i) != segment {
				return nil, false
			}
			current = v[i]
		default:
			return nil, false
		}
	}
	return current, true
}
