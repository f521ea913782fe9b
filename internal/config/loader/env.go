package loader

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/strata/internal/config/tree"
)

// Environment is a set of environment variables. ProcessEnv is the process
// environment; MapEnv is an isolated in-memory set.
type Environment interface {
	// Lookup returns the value of key and whether it is set.
	Lookup(key string) (string, bool)
	// Set assigns value to key.
	Set(key, value string) error
	// Environ returns all variables in "key=value" form.
	Environ() []string
}

// ProcessEnv is the Environment of the running process.
type ProcessEnv struct{}

// Lookup implements Environment.
func (ProcessEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// Set implements Environment.
func (ProcessEnv) Set(key, value string) error { return os.Setenv(key, value) }

// Environ implements Environment.
func (ProcessEnv) Environ() []string { return os.Environ() }

// MapEnv is an in-memory Environment. The zero value is empty and ready
// to use.
type MapEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMapEnv creates an environment holding a copy of vars.
func NewMapEnv(vars map[string]string) *MapEnv {
	e := &MapEnv{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		e.vars[k] = v
	}
	return e
}

// Lookup implements Environment.
func (e *MapEnv) Lookup(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

// Set implements Environment.
func (e *MapEnv) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[key] = value
	return nil
}

// Environ implements Environment. Variables are sorted by name.
func (e *MapEnv) Environ() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// AssignMissing sets every variable of vars that env does not define yet.
// Variables already present, including ones set to the empty string, keep
// their value. It returns the names it assigned, sorted.
func AssignMissing(env Environment, vars map[string]string) ([]string, error) {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)

	assigned := make([]string, 0, len(names))
	for _, name := range names {
		if _, exists := env.Lookup(name); exists {
			continue
		}
		if err := env.Set(name, vars[name]); err != nil {
			return assigned, fmt.Errorf("setting %s: %w", name, err)
		}
		assigned = append(assigned, name)
	}
	return assigned, nil
}

// NestingSeparator separates path segments in prefixed variable names:
// STRATA_DATABASE__HOST maps to database.host.
const NestingSeparator = "__"

// EnvLoader loads configuration from environment variables.
//
// Variables starting with the prefix are mapped to paths by dropping the
// prefix, lowercasing and splitting on NestingSeparator. Explicit mappings
// take a variable name to an exact path and win over the prefix rule.
// Values stay strings.
type EnvLoader struct {
	env     Environment
	prefix  string            // Environment variable prefix (e.g., "STRATA_")
	mapping map[string]string // Env var -> config path
}

// NewEnvLoader creates a loader over the process environment.
// The prefix should include the trailing underscore (e.g., "STRATA_").
// An empty prefix disables the prefix rule; only mappings are loaded.
func NewEnvLoader(prefix string) *EnvLoader {
	return NewEnvLoaderWithEnv(ProcessEnv{}, prefix)
}

// NewEnvLoaderWithEnv creates a loader reading from env.
func NewEnvLoaderWithEnv(env Environment, prefix string) *EnvLoader {
	return &EnvLoader{
		env:     env,
		prefix:  prefix,
		mapping: make(map[string]string),
	}
}

// NewEnvLoaderWithMapping creates a loader with custom environment variable mappings.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	l := NewEnvLoader(prefix)
	for k, v := range mapping {
		l.mapping[k] = v
	}
	return l
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// RemoveMapping removes an environment variable mapping.
func (l *EnvLoader) RemoveMapping(envVar string) {
	delete(l.mapping, envVar)
}

// Load reads environment variables and returns a configuration tree.
// Keys are inserted in variable name order. Empty values are kept.
func (l *EnvLoader) Load() (*tree.Map, error) {
	config := tree.NewMap()

	mapped := make([]string, 0, len(l.mapping))
	for env := range l.mapping {
		mapped = append(mapped, env)
	}
	sort.Strings(mapped)
	for _, env := range mapped {
		if val, ok := l.env.Lookup(env); ok {
			setPath(config, tree.SplitPath(l.mapping[env]), val)
		}
	}

	if l.prefix == "" {
		return config, nil
	}

	vars := l.env.Environ()
	sort.Strings(vars)
	for _, kv := range vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		if _, isMapped := l.mapping[name]; isMapped {
			continue
		}
		path := l.envToPath(name)
		if path == nil {
			continue
		}
		setPath(config, path, value)
	}

	return config, nil
}

// envToPath converts STRATA_DATABASE__POOL_SIZE to database.pool_size.
// It returns nil when a segment would be empty.
func (l *EnvLoader) envToPath(env string) tree.Path {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	parts := strings.Split(name, NestingSeparator)
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return tree.Path(parts)
}

// setPath sets a value in a nested tree, creating intermediate mappings and
// replacing scalars that stand in the way.
func setPath(root *tree.Map, path tree.Path, value tree.Node) {
	if len(path) == 0 {
		return
	}
	current := root
	for _, part := range path[:len(path)-1] {
		next, ok := current.Get(part)
		child, isMap := next.(*tree.Map)
		if !ok || !isMap {
			child = tree.NewMap()
			current.Set(part, child)
		}
		current = child
	}
	current.Set(path[len(path)-1], value)
}
