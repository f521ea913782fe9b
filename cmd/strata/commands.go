package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dshills/strata/internal/config/notify"
	"github.com/dshills/strata/internal/config/tree"
)

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print the value at a dotted path",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("get takes exactly one path", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			path := c.Args().First()
			val, ok := cfg.Get(path)
			if !ok {
				return cli.Exit(fmt.Sprintf("%s: not found", path), 1)
			}
			return printValue(c.App.Writer, val)
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "print the merged configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Value:   formatJSON,
				Usage:   "output format: json, yaml, toml or go",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			out, err := encode(cfg.GetRaw(), c.String("format"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			_, err = c.App.Writer.Write(out)
			return err
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "evaluate a gjson path such as users.#.name",
		ArgsUsage: "<expression>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("query takes exactly one expression", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			res, err := cfg.Query(c.Args().First())
			if err != nil {
				return err
			}
			if !res.Exists() {
				return cli.Exit(fmt.Sprintf("%s: no match", c.Args().First()), 1)
			}
			fmt.Fprintln(c.App.Writer, res.String())
			return nil
		},
	}
}

func originCommand() *cli.Command {
	return &cli.Command{
		Name:  "origin",
		Usage: "list every leaf with the layer that supplied it",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			for _, e := range tree.Flatten(cfg.GetRaw()) {
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", e.Path, scalarString(e.Value), cfg.WhichLayer(e.Path))
			}
			return nil
		},
	}
}

func envCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "print the variables assigned from env files",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			for _, name := range cfg.AssignedEnv() {
				fmt.Fprintf(c.App.Writer, "%s=%s\n", name, os.Getenv(name))
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print changes as configuration files are edited",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer cfg.Close()

			out := c.App.Writer
			cfg.Subscribe(func(ch notify.Change) {
				switch ch.Type {
				case notify.ChangeReload:
					fmt.Fprintf(out, "-- revision %s\n", ch.Revision)
				case notify.ChangeRemoved:
					fmt.Fprintf(out, "- %s\n", ch.Path)
				default:
					fmt.Fprintf(out, "%s %s = %s\n", changeMark(ch.Type), ch.Path, scalarString(ch.NewValue))
				}
			})

			if err := cfg.Watch(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "watching %d file(s), revision %s\n", len(cfg.Files())+len(cfg.EnvFiles()), cfg.Revision())
			<-ctx.Done()
			return nil
		},
	}
}

func changeMark(t notify.ChangeType) string {
	if t == notify.ChangeAdded {
		return "+"
	}
	return "~"
}
