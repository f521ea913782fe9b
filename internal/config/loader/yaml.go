package loader

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/strata/internal/config/tree"
)

// YAMLLoader loads configuration from YAML files.
//
// The document is decoded into yaml.Node form so mapping order is kept. A
// mapping's annotation collects the comments written inside it and the line
// comment trailing the key that introduces it. The document head comment
// annotates the root.
type YAMLLoader struct {
	fileLoader
}

// NewYAMLLoader creates a new YAML loader for the given path.
func NewYAMLLoader(path string) *YAMLLoader {
	return NewYAMLLoaderWithFS(DefaultFS(), path)
}

// NewYAMLLoaderWithFS creates a YAML loader with a custom file system.
func NewYAMLLoaderWithFS(fs FileSystem, path string) *YAMLLoader {
	return &YAMLLoader{fileLoader{fs: fs, path: path, parse: ParseYAML}}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// ParseYAML parses a YAML document whose root is a mapping. An empty
// document yields an empty tree.
func ParseYAML(source string, data []byte) (*tree.Map, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}

	if doc.Kind == 0 {
		return tree.NewMap(), nil
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return tree.NewMap(), nil
		}
		root = root.Content[0]
	}

	conv := yamlConverter{}
	node, err := conv.node(resolveAlias(root))
	if err != nil {
		return nil, &ParseError{Path: source, Line: root.Line, Column: root.Column, Message: err.Error(), Err: err}
	}
	m, ok := node.(*tree.Map)
	if !ok {
		if node == nil {
			return tree.NewMap(), nil
		}
		err := fmt.Errorf("top-level value must be a mapping, got %s", tree.KindOf(node))
		return nil, &ParseError{Path: source, Line: root.Line, Column: root.Column, Message: err.Error(), Err: err}
	}
	if doc.Kind == yaml.DocumentNode && doc.HeadComment != "" {
		m.SetAnnotation(joinComments(doc.HeadComment, m.Annotation()))
	}
	return m, nil
}

type yamlConverter struct {
	depth int
}

const maxYAMLDepth = 10000

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func (c *yamlConverter) node(n *yaml.Node) (tree.Node, error) {
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxYAMLDepth {
		return nil, errors.New("document nested too deeply")
	}

	switch n.Kind {
	case yaml.MappingNode:
		return c.mapping(n, "")
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := c.node(resolveAlias(item))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return scalar(n)
	case yaml.AliasNode:
		return c.node(resolveAlias(n))
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// mapping converts a mapping node. intro is the line comment of the key
// that introduced it, if any.
func (c *yamlConverter) mapping(n *yaml.Node, intro string) (*tree.Map, error) {
	m := tree.NewMapWithCapacity(len(n.Content) / 2)
	notes := []string{intro, n.HeadComment, n.LineComment}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], resolveAlias(n.Content[i+1])

		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			if err := c.mergeKey(m, valNode); err != nil {
				return nil, err
			}
			continue
		}

		notes = append(notes, keyNode.HeadComment, keyNode.FootComment, valNode.FootComment)

		var (
			val tree.Node
			err error
		)
		if valNode.Kind == yaml.MappingNode {
			val, err = c.mapping(valNode, joinComments(keyNode.LineComment, valNode.LineComment))
		} else {
			notes = append(notes, keyNode.LineComment, valNode.LineComment)
			val, err = c.node(valNode)
		}
		if err != nil {
			return nil, err
		}
		m.Set(keyNode.Value, val)
	}

	notes = append(notes, n.FootComment)
	m.SetAnnotation(joinComments(notes...))
	return m, nil
}

// mergeKey applies a "<<" merge key: entries of the referenced mappings are
// copied unless the mapping already defines them.
func (c *yamlConverter) mergeKey(m *tree.Map, val *yaml.Node) error {
	sources := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		sources = sources[:0]
		for _, item := range val.Content {
			sources = append(sources, resolveAlias(item))
		}
	}
	for _, src := range sources {
		if src.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: merge key must reference a mapping", src.Line)
		}
		merged, err := c.mapping(src, "")
		if err != nil {
			return err
		}
		merged.Range(func(key string, value tree.Node) bool {
			if !m.Has(key) {
				m.Set(key, value)
			}
			return true
		})
	}
	return nil
}

func scalar(n *yaml.Node) (tree.Node, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	if i, ok := v.(int); ok {
		return int64(i), nil
	}
	return v, nil
}

func joinComments(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p)
	}
	return b.String()
}
