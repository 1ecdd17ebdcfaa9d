// Package commands wires the ctx CLI together.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"contextualize/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "ctx",
		Usage: "Context-managed task delegation for agent sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := slog.LevelWarn
			if cmd.Bool("debug") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewLaunchCommand(),
			NewTaskCommand(),
			NewConceptCommand(),
			NewMonitorCommand(),
			NewDAGCommand(),
			NewMCPServeCommand(),
		},
	}
}

// loadConfig reads the configured file, falling back to defaults when it
// does not exist.
func loadConfig(cmd *cli.Command) *config.Config {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		slog.Debug("config not found, using defaults", "path", path, "error", err)
		return config.Default()
	}
	return cfg
}
