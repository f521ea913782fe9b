// Package layer merges configuration layers into one tree.
//
// Each Layer holds the tree parsed from one source. A Manager folds its
// layers, lowest priority first, through a Merger: mappings are merged key
// by key, sequences according to the selected ArrayStrategy and scalars are
// replaced. Source mappings may carry an ignore-target-key directive that
// removes keys from the lower layers before the merge.
package layer

import (
	"errors"
	"time"

	"github.com/dshills/strata/internal/config/tree"
)

// Errors returned by layer operations.
var (
	// ErrLayerNotFound indicates no layer has the requested name.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrReadOnly indicates an update was attempted on a read-only layer.
	ErrReadOnly = errors.New("layer is read-only")

	// ErrUnknownArrayStrategy indicates an unrecognized array strategy name.
	ErrUnknownArrayStrategy = errors.New("unknown array merge strategy")
)

// Layer represents a single configuration layer.
type Layer struct {
	// Name identifies the layer (e.g., "config.toml", "environment").
	Name string

	// Priority determines merge order (higher overrides lower).
	Priority int

	// Source indicates where this layer was loaded from.
	Source Source

	// Path is the file path (if loaded from file).
	Path string

	// Data holds the layer's tree, including annotations set by the parser.
	Data *tree.Map

	// ModTime is when the source was last modified.
	ModTime time.Time

	// ReadOnly prevents UpdateLayer from replacing the data.
	ReadOnly bool
}

// NewLayer creates an empty configuration layer.
func NewLayer(name string, source Source, priority int) *Layer {
	return &Layer{
		Name:     name,
		Source:   source,
		Priority: priority,
		Data:     tree.NewMap(),
		ModTime:  time.Now(),
	}
}

// NewLayerWithData creates a layer holding data. A nil data map is replaced
// by an empty one.
func NewLayerWithData(name string, source Source, priority int, data *tree.Map) *Layer {
	if data == nil {
		data = tree.NewMap()
	}
	return &Layer{
		Name:     name,
		Source:   source,
		Priority: priority,
		Data:     data,
		ModTime:  time.Now(),
	}
}

// Clone creates a deep copy of the layer. Annotations are kept because a
// cloned layer is still a merge source.
func (l *Layer) Clone() *Layer {
	return &Layer{
		Name:     l.Name,
		Priority: l.Priority,
		Source:   l.Source,
		Path:     l.Path,
		Data:     cloneWithAnnotations(l.Data),
		ModTime:  l.ModTime,
		ReadOnly: l.ReadOnly,
	}
}

// Source indicates where a configuration layer came from.
type Source uint8

const (
	// SourceBuiltin represents built-in default configuration.
	SourceBuiltin Source = iota
	// SourceFile represents a TOML, YAML or JSON configuration file.
	SourceFile
	// SourceEnv represents prefixed process environment variables.
	SourceEnv
	// SourceArgs represents command-line overrides.
	SourceArgs
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "environment"
	case SourceArgs:
		return "arguments"
	default:
		return "unknown"
	}
}

func cloneWithAnnotations(src *tree.Map) *tree.Map {
	if src == nil {
		return nil
	}
	dst := tree.NewMapWithCapacity(src.Len())
	dst.SetAnnotation(src.Annotation())
	src.Range(func(key string, val tree.Node) bool {
		dst.Set(key, cloneNodeWithAnnotations(val))
		return true
	})
	return dst
}

func cloneNodeWithAnnotations(n tree.Node) tree.Node {
	switch v := n.(type) {
	case *tree.Map:
		if v == nil {
			return nil
		}
		return cloneWithAnnotations(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneNodeWithAnnotations(item)
		}
		return out
	default:
		return n
	}
}
