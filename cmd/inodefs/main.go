package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	shell "github.com/ipfs/inodefs/cmd/inodefs/internal"

	logging "github.com/ipfs/go-log/v2"
	mprome "github.com/ipfs/go-metrics-prometheus"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("inodefs")

func loadConfig(configFile string) (shell.Config, error) {
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return shell.Config{}, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		return shell.ReadConfig(f)
	}
	return shell.DefaultConfig, nil
}

func buildShell(ctx context.Context, clictx *cli.Context) (*shell.Shell, error) {
	config, err := loadConfig(clictx.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := clictx.String("log-level"); lvl != "" {
		config.LogLevel = lvl
	}
	level, err := logging.LevelFromString(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logging.SetAllLoggers(level)

	if err := mprome.Inject(); err != nil {
		log.Errorf("injecting prometheus handler for metrics failed: %s", err)
	}

	sh, err := config.NewShell(ctx, os.Stdout)
	if err != nil {
		return nil, err
	}
	log.Debugf("filesystem %s ready on %s datastore", sh.FS.ID(), config.Datastore)
	return sh, nil
}

func main() {
	app := &cli.App{
		Name:  "inodefs",
		Usage: "in-memory journaled inode filesystem",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "a JSON config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level for every subsystem (overrides the config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "creates a small tree, undoes the last operation and prints the state",
				Action: func(clictx *cli.Context) error {
					sh, err := buildShell(clictx.Context, clictx)
					if err != nil {
						return err
					}
					return sh.Run(clictx.Context, strings.NewReader(shell.DemoScript))
				},
			},
			{
				Name:      "run",
				Usage:     "executes the commands of a script file, or stdin when no file is given",
				ArgsUsage: "[script]",
				Action: func(clictx *cli.Context) error {
					sh, err := buildShell(clictx.Context, clictx)
					if err != nil {
						return err
					}
					if clictx.NArg() == 0 {
						return sh.Run(clictx.Context, os.Stdin)
					}
					f, err := os.Open(clictx.Args().First())
					if err != nil {
						return fmt.Errorf("opening script: %w", err)
					}
					defer f.Close()
					return sh.Run(clictx.Context, f)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
