package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"contextualize/internal/launcher"
	ctxmcp "contextualize/internal/mcp"
	"contextualize/internal/monitor"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose task and concept tools as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// Logging must stay on stderr: stdout carries the MCP transport.
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)
	graph := newConceptGraph(cfg)

	l := launcher.New(store, graph, cfg, logger)
	l.Stdout = io.Discard
	l.Stderr = io.Discard

	server := ctxmcp.NewServer(ctxmcp.Deps{
		Store:    store,
		Concepts: graph,
		Launcher: l,
		Monitor:  monitor.New(store, cfg.Monitor.ScanLimit, logger),
	})

	slog.Debug("starting MCP server")
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
