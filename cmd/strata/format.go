package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/strata/internal/config/tree"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
	formatGo   = "go"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// encode renders a tree in the requested format. JSON and YAML keep key
// order; TOML output sorts keys.
func encode(m *tree.Map, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case formatJSON:
		return tree.EncodeJSON(m, true)
	case formatYAML, "yml":
		return yaml.Marshal(yamlNode(m))
	case formatTOML:
		return toml.Marshal(tree.ToGo(m))
	case formatGo:
		return []byte(dumper.Sdump(tree.ToGo(m))), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// yamlNode builds a yaml.v3 node so mappings keep their key order.
func yamlNode(n tree.Node) *yaml.Node {
	switch v := n.(type) {
	case *tree.Map:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		v.Range(func(key string, val tree.Node) bool {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				yamlNode(val),
			)
			return true
		})
		return node
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			node.Content = append(node.Content, yamlNode(item))
		}
		return node
	default:
		var node yaml.Node
		if err := node.Encode(v); err != nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(v)}
		}
		return &node
	}
}

// printValue writes scalars bare and composites as indented JSON.
func printValue(w io.Writer, v tree.Node) error {
	if tree.IsComposite(v) {
		out, err := tree.EncodeJSON(v, true)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	_, err := fmt.Fprintln(w, scalarString(v))
	return err
}

// scalarString formats a leaf for one-line output.
func scalarString(v tree.Node) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case *tree.Map, []any:
		out, err := tree.EncodeJSON(x, false)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(out)
	default:
		return fmt.Sprint(x)
	}
}
