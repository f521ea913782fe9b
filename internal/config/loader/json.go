package loader

import (
	"fmt"

	"github.com/dshills/strata/internal/config/tree"
)

// JSONLoader loads configuration from JSON files. Object key order is kept;
// JSON has no comments, so the result carries no annotations.
type JSONLoader struct {
	fileLoader
}

// NewJSONLoader creates a new JSON loader for the given path.
func NewJSONLoader(path string) *JSONLoader {
	return NewJSONLoaderWithFS(DefaultFS(), path)
}

// NewJSONLoaderWithFS creates a JSON loader with a custom file system.
func NewJSONLoaderWithFS(fs FileSystem, path string) *JSONLoader {
	return &JSONLoader{fileLoader{fs: fs, path: path, parse: ParseJSON}}
}

// ParseJSON parses a JSON document whose top-level value is an object.
func ParseJSON(source string, data []byte) (*tree.Map, error) {
	node, err := tree.FromJSON(data)
	if err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	m, ok := node.(*tree.Map)
	if !ok {
		err := fmt.Errorf("%w: top-level value must be an object, got %s", tree.ErrInvalidJSON, tree.KindOf(node))
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return m, nil
}
