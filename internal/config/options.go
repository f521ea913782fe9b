package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"

	"github.com/dshills/strata/internal/config/layer"
	"github.com/dshills/strata/internal/config/loader"
	"github.com/dshills/strata/internal/config/notify"
	"github.com/dshills/strata/internal/config/tree"
	"github.com/dshills/strata/internal/logger"
)

// EnvOptionsPrefix prefixes the variables that configure the library itself,
// for example STRATA_ENV=production or STRATA_ARRAY_MERGE=append.
const EnvOptionsPrefix = "STRATA_"

// Options controls which sources a Configuration loads and how they merge.
type Options struct {
	// Dir is the configuration directory searched by Load, relative to
	// WorkDir. Defaults to "config".
	Dir string `env:"DIR"`

	// WorkDir is where env files are looked up. Defaults to the process
	// working directory.
	WorkDir string `env:"WORKDIR"`

	// Env selects environment-specific files such as config.production.toml.
	Env string `env:"ENV"`

	// EnvFiles are env files loaded in order; later files win.
	EnvFiles []string `env:"ENV_FILES" envSeparator:","`

	// TOMLFiles, YAMLFiles and JSONFiles are merged in that order, each file
	// over the previous ones.
	TOMLFiles []string `env:"TOML_FILES" envSeparator:","`
	YAMLFiles []string `env:"YAML_FILES" envSeparator:","`
	JSONFiles []string `env:"JSON_FILES" envSeparator:","`

	// DisableCache turns off memoization of path lookups.
	DisableCache bool `env:"DISABLE_CACHE"`

	// ArrayMerge selects how sequences of different files combine.
	ArrayMerge layer.ArrayStrategy `env:"ARRAY_MERGE"`

	// EnvPrefix enables the process environment layer: APP_DATABASE__HOST
	// with prefix "APP" sets database.host. Empty disables the layer.
	EnvPrefix string `env:"ENV_PREFIX"`

	// EnvMapping maps variable names to exact paths, e.g.
	// DATABASE_URL=database.url. Mapped variables are loaded even without a
	// prefix and win over the prefix rule.
	EnvMapping map[string]string `env:"ENV_MAPPING" envSeparator:"," envKeyValSeparator:"="`

	// Overrides are path=value or path:=json assignments applied last.
	Overrides []string `env:"OVERRIDES" envSeparator:";"`

	// WatchDebounce is the quiet period before a file change reloads.
	WatchDebounce time.Duration `env:"WATCH_DEBOUNCE"`
}

// DefaultOptions returns the options used when nothing else is set.
func DefaultOptions() Options {
	return Options{
		Dir:           loader.DefaultConfigDir,
		ArrayMerge:    layer.ArrayOverride,
		WatchDebounce: 100 * time.Millisecond,
	}
}

// Option configures a Configuration.
type Option func(*settings)

// settings collects everything Option functions set before resolution.
type settings struct {
	options          Options
	fs               loader.FileSystem
	env              loader.Environment
	lookup           loader.LookupFunc
	filename         loader.FilenameFunc
	log              *logger.Logger
	notifier         *notify.Notifier
	defaults         *tree.Map
	ignoreEnvOptions bool
	errs             []error // Reported by New through Load
}

// WithOptions sets explicit options. They are merged over the defaults and
// the STRATA_* variables; zero fields of o leave the lower values in place,
// so a false bool or ArrayOverride cannot undo a STRATA_* setting.
func WithOptions(o Options) Option {
	return func(s *settings) {
		if err := mergo.Merge(&s.options, o, mergo.WithOverride); err != nil {
			s.errs = append(s.errs, fmt.Errorf("merging options: %w", err))
		}
	}
}

// WithDir sets the configuration directory.
func WithDir(dir string) Option {
	return func(s *settings) { s.options.Dir = dir }
}

// WithEnv selects the environment.
func WithEnv(name string) Option {
	return func(s *settings) { s.options.Env = name }
}

// WithArrayMerge sets the array merge strategy.
func WithArrayMerge(strategy layer.ArrayStrategy) Option {
	return func(s *settings) { s.options.ArrayMerge = strategy }
}

// WithOverrides appends command-line style assignments.
func WithOverrides(assignments ...string) Option {
	return func(s *settings) { s.options.Overrides = append(s.options.Overrides, assignments...) }
}

// WithFilename replaces the naming scheme of discovered files.
func WithFilename(fn loader.FilenameFunc) Option {
	return func(s *settings) { s.filename = fn }
}

// WithFileSystem reads files through fsys instead of the OS.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(s *settings) { s.fs = fsys }
}

// WithEnvironment replaces the process environment. Env-file variables are
// assigned into it and STRATA_* options are read from it.
func WithEnvironment(env loader.Environment) Option {
	return func(s *settings) { s.env = env }
}

// WithLookup replaces the variable lookup used for ${VAR} expansion.
// Defaults to the configured Environment.
func WithLookup(fn loader.LookupFunc) Option {
	return func(s *settings) { s.lookup = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithNotifier uses n for change notifications. The caller keeps ownership
// and closes it.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithDefaults installs built-in values below every file. The map is
// copied.
func WithDefaults(m *tree.Map) Option {
	return func(s *settings) { s.defaults = tree.CloneMap(m) }
}

// WithoutEnvOptions ignores the STRATA_* variables.
func WithoutEnvOptions() Option {
	return func(s *settings) { s.ignoreEnvOptions = true }
}

// resolveOptions layers defaults, STRATA_* variables and the explicit
// options, in that order.
func resolveOptions(explicit Options, environ loader.Environment, skipEnv bool) (Options, error) {
	resolved := DefaultOptions()
	if skipEnv {
		if err := mergo.Merge(&resolved, explicit, mergo.WithOverride); err != nil {
			return Options{}, fmt.Errorf("merging options: %w", err)
		}
		return resolved, nil
	}

	fromEnv, err := parseEnvOptions(environ)
	if err != nil {
		return Options{}, err
	}

	var errs error
	if err := mergo.Merge(&resolved, fromEnv, mergo.WithOverride); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := mergo.Merge(&resolved, explicit, mergo.WithOverride); err != nil {
		errs = errors.Join(errs, err)
	}
	if errs != nil {
		return Options{}, fmt.Errorf("merging options: %w", errs)
	}
	return resolved, nil
}

// parseEnvOptions reads STRATA_* variables from environ.
func parseEnvOptions(environ loader.Environment) (Options, error) {
	vars := make(map[string]string)
	for _, kv := range environ.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			vars[name] = value
		}
	}

	var o Options
	err := env.ParseWithOptions(&o, env.Options{
		Environment: vars,
		Prefix:      EnvOptionsPrefix,
	})
	if err != nil {
		return Options{}, fmt.Errorf("reading %s options: %w", EnvOptionsPrefix, err)
	}
	return o, nil
}
