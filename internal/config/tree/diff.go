package tree

// Entry is a leaf of a flattened tree.
type Entry struct {
	Path  string
	Value Node
}

// Flatten lists the leaves of n with dot-separated paths, in tree order.
// Sequences are leaves; empty mappings below the root are leaves too, so an
// emptied table is still visible to Diff.
func Flatten(n Node) []Entry {
	var out []Entry
	m, ok := n.(*Map)
	if !ok || m == nil {
		return out
	}
	flattenInto(m, "", &out)
	return out
}

func flattenInto(m *Map, prefix string, out *[]Entry) {
	m.Range(func(key string, val Node) bool {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(*Map); ok && nested.Len() > 0 {
			flattenInto(nested, full, out)
		} else {
			*out = append(*out, Entry{Path: full, Value: val})
		}
		return true
	})
}

// Diff returns the leaf paths that differ between old and new.
// Added and modified paths follow the order of new, removed paths the order
// of old.
func Diff(old, new Node) (added, modified, removed []string) {
	oldFlat := Flatten(old)
	newFlat := Flatten(new)

	oldIndex := make(map[string]Node, len(oldFlat))
	for _, e := range oldFlat {
		oldIndex[e.Path] = e.Value
	}
	newIndex := make(map[string]struct{}, len(newFlat))

	for _, e := range newFlat {
		newIndex[e.Path] = struct{}{}
		if oldVal, exists := oldIndex[e.Path]; exists {
			if !Equal(oldVal, e.Value) {
				modified = append(modified, e.Path)
			}
		} else {
			added = append(added, e.Path)
		}
	}

	for _, e := range oldFlat {
		if _, exists := newIndex[e.Path]; !exists {
			removed = append(removed, e.Path)
		}
	}

	return added, modified, removed
}
