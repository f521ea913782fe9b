package loader

import (
	"errors"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/dshills/strata/internal/config/tree"
)

// TOMLLoader loads configuration from TOML files.
//
// Values are decoded by go-toml. A second pass over the document's syntax
// tree records key order and table comments: every comment inside a table's
// body, including the one trailing its header, becomes the annotation of
// that table. Comments before the first header annotate the root.
type TOMLLoader struct {
	fileLoader
}

// NewTOMLLoader creates a new TOML loader for the given path.
func NewTOMLLoader(path string) *TOMLLoader {
	return NewTOMLLoaderWithFS(DefaultFS(), path)
}

// NewTOMLLoaderWithFS creates a TOML loader with a custom file system.
func NewTOMLLoaderWithFS(fs FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{fileLoader{fs: fs, path: path, parse: ParseTOML}}
}

// ParseTOML parses a TOML document. source names the document in errors.
func ParseTOML(source string, data []byte) (*tree.Map, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}

	layout, err := scanTOML(data)
	if err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}

	root, _ := layout.build(raw, nil).(*tree.Map)
	if root == nil {
		root = tree.NewMap()
	}
	return root, nil
}

// tomlLayout is what the syntax pass learns about a document: the order in
// which keys first appear in every table and the comments of every table.
// Both are keyed by the table's resolved path, where array-of-tables
// elements carry their index.
type tomlLayout struct {
	order    map[string][]string
	seen     map[string]map[string]struct{}
	comments map[string][]string
	arrays   map[string]int
}

func layoutKey(p tree.Path) string {
	return strings.Join(p, "\x00")
}

func (l *tomlLayout) touch(parent tree.Path, key string) {
	k := layoutKey(parent)
	set, ok := l.seen[k]
	if !ok {
		set = make(map[string]struct{})
		l.seen[k] = set
	}
	if _, dup := set[key]; dup {
		return
	}
	set[key] = struct{}{}
	l.order[k] = append(l.order[k], key)
}

func (l *tomlLayout) comment(table tree.Path, text []byte) {
	k := layoutKey(table)
	l.comments[k] = append(l.comments[k], string(text))
}

func scanTOML(data []byte) (*tomlLayout, error) {
	l := &tomlLayout{
		order:    make(map[string][]string),
		seen:     make(map[string]map[string]struct{}),
		comments: make(map[string][]string),
		arrays:   make(map[string]int),
	}

	p := unstable.Parser{KeepComments: true}
	p.Reset(data)

	var current tree.Path
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Comment:
			l.comment(current, expr.Data)
			continue
		case unstable.Table:
			current = l.header(expr.Key(), false)
		case unstable.ArrayTable:
			current = l.header(expr.Key(), true)
		case unstable.KeyValue:
			l.keyValue(current, expr)
		}
		if c := expr.Next(); c.Valid() && c.Kind == unstable.Comment {
			l.comment(current, c.Data)
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return l, nil
}

// header resolves a table header to its path, registering every key along
// the way. Keys naming an array of tables resolve to its last element.
func (l *tomlLayout) header(it unstable.Iterator, array bool) tree.Path {
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Node().Data))
	}

	var resolved tree.Path
	for i, key := range keys {
		l.touch(resolved, key)
		resolved = resolved.Child(key)
		last := i == len(keys)-1
		if last && array {
			idx := l.arrays[layoutKey(resolved)]
			l.arrays[layoutKey(resolved)] = idx + 1
			resolved = resolved.Index(idx)
			continue
		}
		if n, ok := l.arrays[layoutKey(resolved)]; ok && n > 0 {
			resolved = resolved.Index(n - 1)
		}
	}
	return resolved
}

// keyValue records the keys of a (possibly dotted) key-value pair and of
// any inline tables in its value.
func (l *tomlLayout) keyValue(table tree.Path, kv *unstable.Node) {
	path := table
	it := kv.Key()
	for it.Next() {
		key := string(it.Node().Data)
		l.touch(path, key)
		path = path.Child(key)
	}
	l.value(path, kv.Value())
}

func (l *tomlLayout) value(path tree.Path, v *unstable.Node) {
	if !v.Valid() {
		return
	}
	switch v.Kind {
	case unstable.InlineTable:
		it := v.Children()
		for it.Next() {
			if n := it.Node(); n.Kind == unstable.KeyValue {
				l.keyValue(path, n)
			}
		}
	case unstable.Array:
		i := 0
		it := v.Children()
		for it.Next() {
			n := it.Node()
			if n.Kind == unstable.Comment {
				continue
			}
			l.value(path.Index(i), n)
			i++
		}
	}
}

// build converts decoded values into a tree, ordering mapping keys as they
// appeared in the document. Keys the syntax pass did not see (there should
// be none) follow in sorted order.
func (l *tomlLayout) build(v any, path tree.Path) tree.Node {
	switch val := v.(type) {
	case map[string]any:
		k := layoutKey(path)
		m := tree.NewMapWithCapacity(len(val))
		for _, key := range l.order[k] {
			if child, ok := val[key]; ok {
				m.Set(key, l.build(child, path.Child(key)))
			}
		}
		if m.Len() < len(val) {
			rest := make([]string, 0, len(val)-m.Len())
			for key := range val {
				if !m.Has(key) {
					rest = append(rest, key)
				}
			}
			sort.Strings(rest)
			for _, key := range rest {
				m.Set(key, l.build(val[key], path.Child(key)))
			}
		}
		if notes := l.comments[k]; len(notes) > 0 {
			m.SetAnnotation(strings.Join(notes, "\n"))
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = l.build(item, path.Index(i))
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = l.build(item, path.Index(i))
		}
		return out
	default:
		return val
	}
}
