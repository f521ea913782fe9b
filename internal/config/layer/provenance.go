package layer

import (
	"strconv"

	"github.com/dshills/strata/internal/config/tree"
)

// origin records which layer last wrote a node of the merged tree. It has
// the shape of the merged tree: keys for mappings, items for sequences.
type origin struct {
	layer *Layer
	kind  tree.Kind
	keys  map[string]*origin
	items []*origin
}

// traceFold replays the fold of layers and returns the origin of the merged
// root. It follows the merger's rules step for step, so sequence indices
// resolve to the layer that supplied the element under every array strategy.
func traceFold(merger *Merger, layers []*Layer) *origin {
	root := &origin{kind: tree.KindMapping, keys: map[string]*origin{}}
	for _, l := range layers {
		if l.Data == nil {
			continue
		}
		root = merger.trace(root, l.Data, l)
	}
	return root
}

// trace merges the origins of source, written by l, into dst.
func (m *Merger) trace(dst *origin, source tree.Node, l *Layer) *origin {
	switch src := source.(type) {
	case *tree.Map:
		if dst.kind == tree.KindMapping && src != nil {
			for _, key := range ResolveDirectives(src) {
				delete(dst.keys, key)
			}
			src.Range(func(key string, val tree.Node) bool {
				if IsUnsafeKey(key) {
					return true
				}
				if child, exists := dst.keys[key]; exists && child.kind == tree.KindOf(val) &&
					(child.kind == tree.KindMapping || child.kind == tree.KindSequence) {
					dst.keys[key] = m.trace(child, val, l)
				} else {
					dst.keys[key] = newOrigin(val, l)
				}
				return true
			})
			dst.layer = l
			return dst
		}
	case []any:
		if dst.kind == tree.KindSequence {
			switch m.arrays {
			case ArrayMergeInOrder:
				for i, val := range src {
					if i < len(dst.items) {
						dst.items[i] = m.trace(dst.items[i], val, l)
					} else {
						dst.items = append(dst.items, newOrigin(val, l))
					}
				}
			case ArrayAppend:
				for _, val := range src {
					dst.items = append(dst.items, newOrigin(val, l))
				}
			default:
				return newOrigin(source, l)
			}
			dst.layer = l
			return dst
		}
	}
	return newOrigin(source, l)
}

// newOrigin attributes every node of n to l.
func newOrigin(n tree.Node, l *Layer) *origin {
	o := &origin{layer: l, kind: tree.KindOf(n)}
	switch v := n.(type) {
	case *tree.Map:
		o.keys = make(map[string]*origin, v.Len())
		v.Range(func(key string, val tree.Node) bool {
			if !IsUnsafeKey(key) {
				o.keys[key] = newOrigin(val, l)
			}
			return true
		})
	case []any:
		o.items = make([]*origin, len(v))
		for i, val := range v {
			o.items[i] = newOrigin(val, l)
		}
	}
	return o
}

// lookup walks the origin tree the way tree.LookupPath walks the data.
func (o *origin) lookup(path tree.Path) (*origin, bool) {
	current := o
	for _, segment := range path {
		switch current.kind {
		case tree.KindMapping:
			next, ok := current.keys[segment]
			if !ok {
				return nil, false
			}
			current = next
		case tree.KindSequence:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(current.items) || strconv.Itoa(i) != segment {
				return nil, false
			}
			current = current.items[i]
		default:
			return nil, false
		}
	}
	return current, true
}
