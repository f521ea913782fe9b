// Package main is the entry point for the strata command, which loads a
// layered configuration the same way an application would and prints it.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dshills/strata/internal/config"
	"github.com/dshills/strata/internal/config/layer"
	"github.com/dshills/strata/internal/logger"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "strata",
		Usage:     "inspect layered TOML, YAML, JSON and env-file configuration",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "configuration directory, relative to --workdir",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "directory holding the env files (default: current directory)",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "environment name selecting config.<env>.toml and .env.<env>",
			},
			&cli.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "extra TOML, YAML or JSON file merged after the discovered ones",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "extra env file read after the discovered ones",
			},
			&cli.StringFlag{
				Name:  "array-merge",
				Usage: "array merge strategy: override, merge-in-order or append",
			},
			&cli.StringFlag{
				Name:  "env-prefix",
				Usage: "load PREFIX_SECTION__KEY environment variables as a layer",
			},
			&cli.StringSliceFlag{
				Name:    "set",
				Aliases: []string{"s"},
				Usage:   "override a value: path=value (string) or path:=json",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "disable lookup memoization",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"STRATA_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "write logs as JSON instead of console text",
				EnvVars: []string{"STRATA_LOG_JSON"},
			},
		},
		Commands: []*cli.Command{
			getCommand(),
			dumpCommand(),
			queryCommand(),
			originCommand(),
			envCommand(),
			watchCommand(),
		},
	}
}

// newLogger builds the logger selected by the global flags.
func newLogger(c *cli.Context) (*logger.Logger, error) {
	level, err := logger.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), 2)
	}
	if c.Bool("log-json") {
		return logger.New(c.App.ErrWriter, level), nil
	}
	return logger.NewConsole(c.App.ErrWriter, level), nil
}

// configOptions maps the global flags onto configuration options.
func configOptions(c *cli.Context, log *logger.Logger) ([]config.Option, error) {
	o := config.Options{
		Dir:          c.String("dir"),
		WorkDir:      c.String("workdir"),
		Env:          c.String("env"),
		EnvFiles:     c.StringSlice("env-file"),
		EnvPrefix:    c.String("env-prefix"),
		Overrides:    c.StringSlice("set"),
		DisableCache: c.Bool("no-cache"),
	}

	if name := c.String("array-merge"); name != "" {
		strategy, err := layer.ParseArrayStrategy(name)
		if err != nil {
			return nil, cli.Exit(err.Error(), 2)
		}
		o.ArrayMerge = strategy
	}

	for _, f := range c.StringSlice("file") {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".yaml", ".yml":
			o.YAMLFiles = append(o.YAMLFiles, f)
		case ".json":
			o.JSONFiles = append(o.JSONFiles, f)
		case ".toml":
			o.TOMLFiles = append(o.TOMLFiles, f)
		default:
			return nil, cli.Exit(fmt.Sprintf("unsupported file type: %s", f), 2)
		}
	}

	return []config.Option{config.WithOptions(o), config.WithLogger(log)}, nil
}

// loadConfig loads the configuration described by the global flags.
func loadConfig(c *cli.Context) (*config.Configuration, error) {
	log, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	opts, err := configOptions(c, log)
	if err != nil {
		return nil, err
	}
	return config.Load(c.Context, opts...)
}
