package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dshills/strata/internal/config/accessor"
	"github.com/dshills/strata/internal/config/layer"
	"github.com/dshills/strata/internal/config/loader"
	"github.com/dshills/strata/internal/config/notify"
	"github.com/dshills/strata/internal/config/tree"
	"github.com/dshills/strata/internal/config/watcher"
	"github.com/dshills/strata/internal/logger"
)

// Configuration holds the merged configuration of a set of sources.
//
// Each Load or Reload builds a new snapshot and publishes it atomically;
// readers always see one complete snapshot. A snapshot is never modified
// after publication, so values returned by the getters are safe to keep.
type Configuration struct {
	// loadMu serializes Load and Reload, including environment assignment
	loadMu sync.Mutex

	mu   sync.RWMutex
	snap *snapshot

	opts     Options
	initErr  error
	discover bool

	fs       loader.FileSystem
	env      loader.Environment
	lookup   loader.LookupFunc
	filename loader.FilenameFunc
	log      *logger.Logger
	defaults *tree.Map

	notifier     *notify.Notifier
	ownsNotifier bool

	// Variables this configuration assigned, with the value it assigned
	ownedEnv map[string]string

	watcher *watcher.Watcher
	closed  bool
}

// snapshot is one immutable load result.
type snapshot struct {
	revision string
	loadedAt time.Time
	data     *accessor.Accessor
	layers   *layer.Manager
	files    []string
	envFiles []string
	assigned []string

	jsonOnce sync.Once
	json     []byte
	jsonErr  error
}

// New creates a Configuration. Nothing is read until Load is called.
// Option resolution errors are reported by Load.
func New(opts ...Option) *Configuration {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Configuration{
		fs:       s.fs,
		env:      s.env,
		lookup:   s.lookup,
		filename: s.filename,
		log:      logger.OrNop(s.log),
		defaults: s.defaults,
		notifier: s.notifier,
		ownedEnv: make(map[string]string),
		snap:     emptySnapshot(),
	}
	if c.fs == nil {
		c.fs = loader.DefaultFS()
	}
	if c.env == nil {
		c.env = loader.ProcessEnv{}
	}
	if c.lookup == nil {
		c.lookup = loader.EnvLookup(c.env)
	}
	if c.notifier == nil {
		c.notifier = notify.New(notify.WithLogger(c.log))
		c.ownsNotifier = true
	}

	resolved, err := resolveOptions(s.options, c.env, s.ignoreEnvOptions)
	c.opts = resolved
	c.initErr = errors.Join(append(s.errs, err)...)
	return c
}

// Load creates a Configuration from the default files of the working
// directory: .env and .env.<env>, then config/config.toml and
// config/config.<env>.toml, followed by any files named in the options.
func Load(ctx context.Context, opts ...Option) (*Configuration, error) {
	c := New(opts...)
	c.discover = true
	if err := c.Load(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func emptySnapshot() *snapshot {
	return &snapshot{
		data:   accessor.New(nil),
		layers: layer.NewManager(nil),
	}
}

// Options returns the resolved options.
func (c *Configuration) Options() Options {
	return c.opts
}

// Load reads every source and publishes the merged result.
func (c *Configuration) Load(ctx context.Context) error {
	_, err := c.reload(ctx)
	return err
}

// Reload re-reads every source, publishes the result and notifies
// subscribers of each changed path followed by one reload event. On error
// the previous snapshot stays in place.
func (c *Configuration) Reload(ctx context.Context) error {
	changes, err := c.reload(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("configuration reload failed")
		return err
	}

	rev := c.Revision()
	c.notifier.Publish(changes)
	c.notifier.NotifyReload(rev)
	c.log.Info().Str("revision", rev).Int("changes", len(changes)).Msg("configuration reloaded")
	return nil
}

func (c *Configuration) reload(ctx context.Context) ([]notify.Change, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.isClosed() {
		return nil, ErrClosed
	}

	next, err := c.build(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev := c.snap
	c.snap = next
	c.mu.Unlock()

	c.syncWatcher(next)

	return notify.Changes(prev.data.Raw(), next.data.Raw(), next.revision), nil
}

// build runs the load sequence: env files, file layers, environment layer,
// overrides, merge, expansion.
func (c *Configuration) build(ctx context.Context) (*snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	envFiles, configFiles, err := c.sources()
	if err != nil {
		return nil, err
	}

	vars, err := loader.NewDotenvLoaderWithFS(c.fs, envFiles...).Load()
	if err != nil {
		return nil, err
	}
	assigned, err := c.assignEnv(vars)
	if err != nil {
		return nil, err
	}

	manager := layer.NewManager(layer.NewMerger(c.opts.ArrayMerge))
	if c.defaults != nil {
		defaults := layer.NewLayerWithData(layer.StandardLayerName(layer.SourceBuiltin), layer.SourceBuiltin, layer.PriorityBuiltin, tree.CloneMap(c.defaults))
		defaults.ReadOnly = true
		manager.AddLayer(defaults)
	}

	var files []string
	for _, f := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := c.fileLayer(f)
		if err != nil {
			return nil, err
		}
		if l == nil {
			c.log.Debug().Str("file", f.path).Msg("config file not found, skipped")
			continue
		}
		manager.AddLayer(l)
		files = append(files, f.path)
		c.log.Debug().Str("file", f.path).Int("keys", l.Data.Len()).Msg("loaded config file")
	}

	if c.opts.EnvPrefix != "" || len(c.opts.EnvMapping) > 0 {
		prefix := c.opts.EnvPrefix
		if prefix != "" && !strings.HasSuffix(prefix, "_") {
			prefix += "_"
		}
		envLoader := loader.NewEnvLoaderWithEnv(c.env, prefix)
		for name, path := range c.opts.EnvMapping {
			envLoader.AddMapping(name, path)
		}
		data, err := envLoader.Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		if data.Len() > 0 {
			manager.AddLayer(layer.NewLayerWithData(layer.StandardLayerName(layer.SourceEnv), layer.SourceEnv, layer.PriorityEnv, data))
		}
	}

	if len(c.opts.Overrides) > 0 {
		data, err := loader.NewOverridesLoader(c.opts.Overrides...).Load()
		if err != nil {
			return nil, err
		}
		manager.AddLayer(layer.NewLayerWithData(layer.StandardLayerName(layer.SourceArgs), layer.SourceArgs, layer.PriorityArgs, data))
	}

	merged := loader.NewExpander(c.lookup).ExpandMap(manager.Merge())

	var accOpts []accessor.Option
	if c.opts.DisableCache {
		accOpts = append(accOpts, accessor.WithoutCache())
	}

	snap := &snapshot{
		revision: uuid.NewString(),
		loadedAt: time.Now(),
		data:     accessor.New(merged, accOpts...),
		layers:   manager,
		files:    files,
		envFiles: existingFiles(c.fs, envFiles),
		assigned: assigned,
	}
	c.log.Debug().
		Str("revision", snap.revision).
		Int("layers", manager.LayerCount()).
		Strs("assigned_env", assigned).
		Msg("configuration loaded")
	return snap, nil
}

// configFile is a file source together with the parser it needs.
type configFile struct {
	path   string
	format string
}

// sources lists the env files and configuration files to load, in order.
func (c *Configuration) sources() ([]string, []configFile, error) {
	var envFiles []string
	var configFiles []configFile

	if c.discover {
		found, err := loader.Discover(loader.DiscoverOptions{
			FS:       c.fs,
			WorkDir:  c.opts.WorkDir,
			Dir:      c.opts.Dir,
			Env:      c.opts.Env,
			Filename: c.filename,
		})
		if err != nil {
			return nil, nil, err
		}
		envFiles = append(envFiles, found.EnvFiles...)
		for _, p := range found.ConfigFiles {
			configFiles = append(configFiles, configFile{path: p, format: formatOf(p)})
		}
	}

	envFiles = append(envFiles, c.opts.EnvFiles...)
	for _, p := range c.opts.TOMLFiles {
		configFiles = append(configFiles, configFile{path: p, format: "toml"})
	}
	for _, p := range c.opts.YAMLFiles {
		configFiles = append(configFiles, configFile{path: p, format: "yaml"})
	}
	for _, p := range c.opts.JSONFiles {
		configFiles = append(configFiles, configFile{path: p, format: "json"})
	}
	return envFiles, configFiles, nil
}

// formatOf picks the parser for a discovered file. A custom FilenameFunc
// may name YAML or JSON files; anything else is read as TOML.
func formatOf(path string) string {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".json"):
		return "json"
	default:
		return "toml"
	}
}

// fileLayer parses one file into a layer. A missing file yields nil.
func (c *Configuration) fileLayer(f configFile) (*layer.Layer, error) {
	var l loader.Loader
	switch f.format {
	case "yaml":
		l = loader.NewYAMLLoaderWithFS(c.fs, f.path)
	case "json":
		l = loader.NewJSONLoaderWithFS(c.fs, f.path)
	default:
		l = loader.NewTOMLLoaderWithFS(c.fs, f.path)
	}

	data, err := l.Load()
	if err != nil || data == nil {
		return nil, err
	}

	lyr := layer.NewLayerWithData(f.path, layer.SourceFile, layer.PriorityFile, data)
	lyr.Path = f.path
	if info, err := c.fs.Stat(f.path); err == nil {
		lyr.ModTime = info.ModTime()
	}
	return lyr, nil
}

// assignEnv writes env-file variables into the environment. Variables that
// are already set win, except those this configuration assigned itself
// earlier and that nobody changed since; those follow the file. It returns
// every variable currently owned by this configuration, sorted.
func (c *Configuration) assignEnv(vars map[string]string) ([]string, error) {
	for name, prev := range c.ownedEnv {
		next, inFile := vars[name]
		cur, set := c.env.Lookup(name)
		if !set || cur != prev {
			delete(c.ownedEnv, name)
			continue
		}
		if inFile && next != prev {
			if err := c.env.Set(name, next); err != nil {
				return nil, fmt.Errorf("setting %s: %w", name, err)
			}
			c.ownedEnv[name] = next
		}
	}

	assigned, err := loader.AssignMissing(c.env, vars)
	if err != nil {
		return nil, err
	}
	for _, name := range assigned {
		c.ownedEnv[name] = vars[name]
	}

	owned := make([]string, 0, len(c.ownedEnv))
	for name := range c.ownedEnv {
		owned = append(owned, name)
	}
	sort.Strings(owned)
	return owned, nil
}

func existingFiles(fsys loader.FileSystem, paths []string) []string {
	var out []string
	for _, p := range paths {
		if info, err := fsys.Stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func (c *Configuration) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Configuration) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Get returns a copy of the value at path.
func (c *Configuration) Get(path string) (tree.Node, bool) {
	return c.current().data.Get(path)
}

// GetRaw returns a copy of the whole merged tree.
func (c *Configuration) GetRaw() *tree.Map {
	return c.current().data.Raw()
}

// Has reports whether a value exists at path.
func (c *Configuration) Has(path string) bool {
	return c.current().data.Has(path)
}

// GetString returns the string at path.
func (c *Configuration) GetString(path string) (string, error) {
	return c.current().data.GetString(path)
}

// GetInt returns the integer at path.
func (c *Configuration) GetInt(path string) (int, error) {
	return c.current().data.GetInt(path)
}

// GetInt64 returns the integer at path.
func (c *Configuration) GetInt64(path string) (int64, error) {
	return c.current().data.GetInt64(path)
}

// GetFloat64 returns the number at path.
func (c *Configuration) GetFloat64(path string) (float64, error) {
	return c.current().data.GetFloat64(path)
}

// GetBool returns the boolean at path.
func (c *Configuration) GetBool(path string) (bool, error) {
	return c.current().data.GetBool(path)
}

// GetStringSlice returns the sequence of strings at path.
func (c *Configuration) GetStringSlice(path string) ([]string, error) {
	return c.current().data.GetStringSlice(path)
}

// GetDuration returns the duration at path.
func (c *Configuration) GetDuration(path string) (time.Duration, error) {
	return c.current().data.GetDuration(path)
}

// GetMap returns a copy of the mapping at path.
func (c *Configuration) GetMap(path string) (*tree.Map, error) {
	return c.current().data.GetMap(path)
}

// Unmarshal decodes the value at path into v through its JSON form. An
// empty path decodes the whole configuration.
func (c *Configuration) Unmarshal(path string, v any) error {
	var node tree.Node
	if path == "" {
		node = c.GetRaw()
	} else {
		var ok bool
		if node, ok = c.Get(path); !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}

	data, err := tree.EncodeJSON(node, false)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// JSON returns the merged configuration as indented JSON, keys in order.
func (c *Configuration) JSON() ([]byte, error) {
	return tree.EncodeJSON(c.GetRaw(), true)
}

// Query evaluates a gjson path expression, such as "users.#.name", against
// the merged configuration.
func (c *Configuration) Query(expr string) (gjson.Result, error) {
	data, err := c.current().compactJSON()
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, expr), nil
}

func (s *snapshot) compactJSON() ([]byte, error) {
	s.jsonOnce.Do(func() {
		s.json, s.jsonErr = tree.EncodeJSON(s.data.Raw(), false)
	})
	return s.json, s.jsonErr
}

// Revision identifies the current snapshot. It is empty before Load.
func (c *Configuration) Revision() string {
	return c.current().revision
}

// LoadedAt returns when the current snapshot was built.
func (c *Configuration) LoadedAt() time.Time {
	return c.current().loadedAt
}

// Files returns the configuration files merged into the current snapshot,
// lowest priority first.
func (c *Configuration) Files() []string {
	return append([]string(nil), c.current().files...)
}

// EnvFiles returns the env files read by the current snapshot.
func (c *Configuration) EnvFiles() []string {
	return append([]string(nil), c.current().envFiles...)
}

// AssignedEnv returns the variables this configuration set in the
// environment, sorted.
func (c *Configuration) AssignedEnv() []string {
	return append([]string(nil), c.current().assigned...)
}

// WhichLayer returns the name of the highest priority layer defining path:
// "defaults", a file path, "environment" or "arguments". It returns "" when no layer
// defines it.
func (c *Configuration) WhichLayer(path string) string {
	return c.current().layers.WhichLayer(path)
}

// Layers returns the layers of the current snapshot, lowest priority first.
func (c *Configuration) Layers() []*layer.Layer {
	layers := c.current().layers.Layers()
	out := make([]*layer.Layer, len(layers))
	for i, l := range layers {
		out[i] = l.Clone()
	}
	return out
}

// Subscribe registers an observer for every change.
func (c *Configuration) Subscribe(observer notify.Observer) *notify.Subscription {
	return c.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for changes at or below path.
func (c *Configuration) SubscribePath(path string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribePath(path, observer)
}

// Watch reloads the configuration whenever one of its files changes, until
// ctx is cancelled or Close is called. Env files and configuration files are
// both watched; files discovered later are added on each reload.
func (c *Configuration) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrWatcherClosed
	}
	if c.watcher == nil {
		c.watcher = watcher.New(
			watcher.WithDebounce(c.opts.WatchDebounce),
			watcher.WithLogger(c.log.With("watcher")),
		)
		c.watcher.OnChange(func(ev watcher.Event) {
			c.log.Debug().Str("file", ev.Path).Str("op", ev.Op.String()).Msg("config file changed")
			// Reload logs its own failure.
			_ = c.Reload(ctx)
		})
	}
	w := c.watcher
	snap := c.snap
	c.mu.Unlock()

	for _, p := range c.watchList(snap) {
		if err := w.Watch(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
	}
	return w.Start(ctx)
}

// watchList returns every file whose change affects the configuration:
// the files loaded by snap, the named files that do not exist yet and the
// discovery candidates.
func (c *Configuration) watchList(snap *snapshot) []string {
	var paths []string
	paths = append(paths, snap.envFiles...)
	paths = append(paths, snap.files...)
	paths = append(paths, c.opts.EnvFiles...)
	paths = append(paths, c.opts.TOMLFiles...)
	paths = append(paths, c.opts.YAMLFiles...)
	paths = append(paths, c.opts.JSONFiles...)
	if c.discover {
		paths = append(paths, c.discoveryCandidates()...)
	}
	return paths
}

// discoveryCandidates lists the files Discover would pick up if they existed.
func (c *Configuration) discoveryCandidates() []string {
	name := c.filename
	if name == nil {
		name = loader.DefaultFilename
	}
	workDir := c.opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	dir := c.opts.Dir
	if dir == "" {
		dir = loader.DefaultConfigDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workDir, dir)
	}

	envs := []string{""}
	if c.opts.Env != "" {
		envs = append(envs, c.opts.Env)
	}
	var out []string
	for _, env := range envs {
		out = append(out,
			filepath.Join(workDir, name(loader.FileEnv, env)),
			filepath.Join(dir, name(loader.FileConfig, env)),
		)
	}
	return out
}

// syncWatcher adds files of a new snapshot to a running watcher.
func (c *Configuration) syncWatcher(snap *snapshot) {
	c.mu.RLock()
	w := c.watcher
	c.mu.RUnlock()
	if w == nil {
		return
	}
	for _, p := range snap.files {
		if err := w.Watch(p); err != nil {
			c.log.Warn().Err(err).Str("file", p).Msg("cannot watch config file")
		}
	}
}

// Close stops watching and releases the notifier when this configuration
// created it. It is safe to call Close multiple times.
func (c *Configuration) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	w := c.watcher
	c.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	if c.ownsNotifier {
		c.notifier.Close()
	}
}
