package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigDir is the directory searched for configuration files when
// no directory is given.
const DefaultConfigDir = "config"

// FileKind distinguishes the two kinds of discovered files.
type FileKind uint8

const (
	// FileEnv is an env file, looked up in the working directory.
	FileEnv FileKind = iota
	// FileConfig is a TOML configuration file, looked up in the config directory.
	FileConfig
)

// FilenameFunc returns the file name for a kind of file. env is empty for
// the base file and the environment name for the environment file.
type FilenameFunc func(kind FileKind, env string) string

// DefaultFilename names files .env / .env.<env> and
// config.toml / config.<env>.toml.
func DefaultFilename(kind FileKind, env string) string {
	if kind == FileConfig {
		if env != "" {
			return "config." + env + ".toml"
		}
		return "config.toml"
	}
	if env != "" {
		return ".env." + env
	}
	return ".env"
}

// DiscoverOptions controls Discover.
type DiscoverOptions struct {
	// FS is the file system to probe. Defaults to the OS.
	FS FileSystem
	// WorkDir is where env files are looked up. Defaults to the process
	// working directory.
	WorkDir string
	// Dir is the configuration directory, relative to WorkDir unless
	// absolute. Defaults to DefaultConfigDir.
	Dir string
	// Env selects the environment-specific files.
	Env string
	// Filename overrides DefaultFilename.
	Filename FilenameFunc
}

// Discovery lists the files found by Discover, base file first.
type Discovery struct {
	EnvFiles    []string
	ConfigFiles []string
}

// Discover finds the existing default files for an environment: the base
// file and, when Env is set, the environment file, for both env files and
// configuration files.
func Discover(opts DiscoverOptions) (*Discovery, error) {
	if opts.FS == nil {
		opts.FS = DefaultFS()
	}
	if opts.Filename == nil {
		opts.Filename = DefaultFilename
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		opts.WorkDir = wd
	}
	dir := opts.Dir
	if dir == "" {
		dir = DefaultConfigDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(opts.WorkDir, dir)
	}

	envFiles, err := collect(opts, opts.WorkDir, FileEnv)
	if err != nil {
		return nil, err
	}
	configFiles, err := collect(opts, dir, FileConfig)
	if err != nil {
		return nil, err
	}
	return &Discovery{EnvFiles: envFiles, ConfigFiles: configFiles}, nil
}

func collect(opts DiscoverOptions, dir string, kind FileKind) ([]string, error) {
	names := []string{opts.Filename(kind, "")}
	if opts.Env != "" {
		names = append(names, opts.Filename(kind, opts.Env))
	}

	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		ok, err := exists(opts.FS, path)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, path)
		}
	}
	return files, nil
}

func exists(fsys FileSystem, path string) (bool, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

func fileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
