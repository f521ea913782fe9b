package loader

import (
	"os"
	"strings"

	"github.com/dshills/strata/internal/config/tree"
)

// LookupFunc resolves a variable name.
type LookupFunc func(name string) (string, bool)

// Expander substitutes variable references in string values.
//
// Supported forms are $VAR, ${VAR} and ${VAR:-default}; the default applies
// when VAR is unset or empty. Unset variables expand to the empty string and
// "$$" yields a literal "$".
type Expander struct {
	lookup LookupFunc
}

// NewExpander creates an expander. A nil lookup reads the process
// environment.
func NewExpander(lookup LookupFunc) *Expander {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Expander{lookup: lookup}
}

// EnvLookup adapts an Environment to a LookupFunc.
func EnvLookup(env Environment) LookupFunc {
	return env.Lookup
}

// ExpandString expands references in s.
func (e *Expander) ExpandString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, e.resolve)
}

func (e *Expander) resolve(name string) string {
	if name == "$" {
		return "$"
	}
	if key, def, ok := strings.Cut(name, ":-"); ok {
		if v, set := e.lookup(key); set && v != "" {
			return v
		}
		return def
	}
	v, _ := e.lookup(name)
	return v
}

// Expand returns a copy of n with every string leaf expanded. Mapping keys
// are left untouched.
func (e *Expander) Expand(n tree.Node) tree.Node {
	switch v := n.(type) {
	case *tree.Map:
		if v == nil {
			return nil
		}
		out := tree.NewMapWithCapacity(v.Len())
		v.Range(func(key string, val tree.Node) bool {
			out.Set(key, e.Expand(val))
			return true
		})
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.Expand(item)
		}
		return out
	case string:
		return e.ExpandString(v)
	default:
		return tree.Clone(n)
	}
}

// ExpandMap is Expand for a mapping root.
func (e *Expander) ExpandMap(m *tree.Map) *tree.Map {
	out, _ := e.Expand(m).(*tree.Map)
	if out == nil {
		return tree.NewMap()
	}
	return out
}
