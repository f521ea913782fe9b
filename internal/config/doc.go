// Package config layers configuration files, env files, environment
// variables and command-line overrides into one tree.
//
// # Architecture
//
// Sources are merged lowest priority first; later sources override or merge
// into earlier ones:
//
//	┌──────────────────────────────────┐
//	│  Overrides (path=value)          │  ← Highest priority
//	├──────────────────────────────────┤
//	│  Prefixed environment variables  │
//	├──────────────────────────────────┤
//	│  config/config.<env>.toml        │
//	├──────────────────────────────────┤
//	│  config/config.toml              │  ← Lowest priority
//	└──────────────────────────────────┘
//
// Before any file is parsed, .env and .env.<env> are read and their
// variables are assigned into the environment unless already set. String
// values of the merged tree may then reference them as ${VAR} or
// ${VAR:-default}.
//
// # Sub-packages
//
//   - tree: ordered mapping type and tree helpers
//   - layer: merge engine, array strategies, directives and layer manager
//   - loader: TOML, YAML, JSON, env-file, environment and override loaders
//   - accessor: dotted-path lookups with typed getters
//   - notify: change notification for reloads
//   - watcher: file watching for live reload
//
// # Basic Usage
//
//	cfg, err := config.Load(ctx, config.WithEnv("production"))
//	if err != nil {
//	    return err
//	}
//	defer cfg.Close()
//
//	host, err := cfg.GetString("database.host")
//	brokers, err := cfg.GetStringSlice("kafka.brokers")
//
// # Merging
//
// Mappings merge key by key and scalars are replaced. Sequences follow the
// ArrayMerge option: override (default), merge-in-order or append. A table
// comment containing
//
//	# @merge-ignore-target-key pool
//
// drops the key "pool" of the lower layers before the table is merged, so
// the table replaces it instead of merging into it.
package config
