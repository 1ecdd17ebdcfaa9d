package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"contextualize/internal/launcher"
	"contextualize/internal/report"
	"contextualize/internal/tasks"
)

// NewLaunchCommand returns the launch subcommand.
func NewLaunchCommand() *cli.Command {
	return &cli.Command{
		Name:      "launch",
		Usage:     "Launch a managed task",
		ArgsUsage: "<description>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "concept",
				Aliases: []string{"k"},
				Usage:   "Concept to load (repeatable)",
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "Additional context from the main session",
			},
			&cli.StringFlag{
				Name:  "parent",
				Usage: "Parent task ID",
			},
			&cli.BoolFlag{
				Name:    "background",
				Aliases: []string{"b"},
				Usage:   "Run the agent detached",
			},
			&cli.BoolFlag{
				Name:  "report",
				Usage: "Generate a report when the task completes",
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "Report template for this task",
			},
		},
		Action: runLaunch,
	}
}

func runLaunch(ctx context.Context, cmd *cli.Command) error {
	description := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if description == "" {
		return fmt.Errorf("usage: ctx launch <description>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)
	graph := newConceptGraph(cfg)
	l := launcher.New(store, graph, cfg, nil)

	conceptNames := cmd.StringSlice("concept")

	task, err := l.Launch(ctx, launcher.Options{
		Description:    description,
		Concepts:       conceptNames,
		Context:        cmd.String("context"),
		ParentID:       cmd.String("parent"),
		Background:     cmd.Bool("background"),
		ReportTemplate: cmd.String("template"),
	})
	if err != nil {
		return err
	}

	fmt.Println(statusLine(task))
	fmt.Printf("Session: %s\n", task.SessionID)
	if task.PID != 0 {
		fmt.Printf("PID: %d\n", task.PID)
		fmt.Printf("Check status: ctx task show %s\n", task.ShortID())
	} else {
		fmt.Printf("Resume later: ctx task resume %s\n", task.ShortID())
	}

	if cmd.Bool("report") && task.Status == tasks.StatusCompleted {
		fmt.Println("Generating report...")
		gen := report.New(store, cfg, report.NewAgentForker(cfg), nil)
		if err := gen.Generate(ctx, task.ID, report.Options{}); err != nil {
			return err
		}
		fmt.Printf("Report saved: ctx task report %s\n", task.ShortID())
	}
	return nil
}
