package loader

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/strata/internal/config/tree"
)

// OverridesLoader turns command-line assignments into a tree.
//
// Two forms are accepted:
//
//	server.port=8080          string value
//	server.port:=8080         raw JSON value (number, bool, array, object)
//
// Paths use sjson syntax, so numeric segments address array elements and
// "-1" appends. Assignments apply in order; later ones win.
type OverridesLoader struct {
	assignments []string
}

// NewOverridesLoader creates a loader for the given assignments.
func NewOverridesLoader(assignments ...string) *OverridesLoader {
	return &OverridesLoader{assignments: assignments}
}

// Load applies every assignment to an empty document.
func (l *OverridesLoader) Load() (*tree.Map, error) {
	doc := "{}"
	for _, a := range l.assignments {
		path, value, raw, err := splitAssignment(a)
		if err != nil {
			return nil, err
		}
		if raw {
			if !gjson.Valid(value) {
				return nil, fmt.Errorf("%w: %q: value is not valid JSON", ErrInvalidOverride, a)
			}
			doc, err = sjson.SetRaw(doc, path, value)
		} else {
			doc, err = sjson.Set(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidOverride, a, err)
		}
	}

	node, err := tree.FromJSON([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	m, ok := node.(*tree.Map)
	if !ok {
		return nil, fmt.Errorf("%w: result is not an object", ErrInvalidOverride)
	}
	return m, nil
}

func splitAssignment(a string) (path, value string, raw bool, err error) {
	i := strings.IndexByte(a, '=')
	if i < 0 {
		return "", "", false, fmt.Errorf("%w: %q: expected path=value", ErrInvalidOverride, a)
	}
	path, value = a[:i], a[i+1:]
	if strings.HasSuffix(path, ":") {
		path, raw = strings.TrimSuffix(path, ":"), true
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", false, fmt.Errorf("%w: %q: empty path", ErrInvalidOverride, a)
	}
	return path, value, raw, nil
}
