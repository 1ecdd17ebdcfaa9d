package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"contextualize/internal/launcher"
	"contextualize/internal/report"
	"contextualize/internal/tasks"
)

// NewTaskCommand returns the task subcommand.
func NewTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Manage delegated tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Filter by status"},
					&cli.StringFlag{Name: "parent", Usage: "Only children of this task"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 20},
				},
				Action: runTaskList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "output", Usage: "Include the agent output"},
				},
				Action: runTaskShow,
			},
			{
				Name:      "fork",
				Usage:     "Fork a new task from an existing one",
				ArgsUsage: "<parent_id> <description>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "background", Aliases: []string{"b"}, Usage: "Run the agent detached"},
					&cli.BoolFlag{Name: "create-only", Usage: "Record the fork without launching the agent"},
				},
				Action: runTaskFork,
			},
			{
				Name:      "resume",
				Usage:     "Reattach to a task's agent session",
				ArgsUsage: "<task_id>",
				Action:    runTaskResume,
			},
			{
				Name:      "rm",
				Usage:     "Remove a task and its artifacts",
				ArgsUsage: "<task_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				},
				Action: runTaskRemove,
			},
			{
				Name:  "clear",
				Usage: "Remove all tasks and the DAG log",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				},
				Action: runTaskClear,
			},
			{
				Name:      "report",
				Usage:     "Generate or show a task's report",
				ArgsUsage: "<task_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "template", Usage: "Template override"},
					&cli.BoolFlag{Name: "regenerate", Usage: "Replace an existing report"},
				},
				Action: runTaskReport,
			},
		},
		DefaultCommand: "list",
	}
}

func runTaskList(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	list, err := store.List(tasks.ListFilter{
		Status:   tasks.Status(cmd.String("status")),
		ParentID: cmd.String("parent"),
		Limit:    cmd.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, " \tID\tSTATUS\tSTARTED\tDESCRIPTION")
	for _, t := range list {
		started := "-"
		if t.StartedAt != nil {
			started = t.StartedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.Status.Meta().Icon,
			t.ShortID(),
			t.Status,
			started,
			t.Description,
		)
	}
	return w.Flush()
}

func runTaskShow(_ context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: ctx task show <task_id>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	t, err := store.Get(ref)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Description: %s\n", t.Description)
	fmt.Printf("Status:      %s %s\n", t.Status.Meta().Icon, t.Status)
	if len(t.Concepts) > 0 {
		fmt.Printf("Concepts:    %v\n", t.Concepts)
	}
	if t.ParentID != "" {
		fmt.Printf("Parent:      %s\n", t.ParentID[:8])
	}
	if t.SessionID != "" {
		fmt.Printf("Session:     %s\n", t.SessionID)
	}
	if t.StartedAt != nil {
		fmt.Printf("Started:     %s\n", t.StartedAt.Format(time.DateTime))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format(time.DateTime))
		fmt.Printf("Duration:    %s\n", report.FormatDuration(t.StartedAt, t.CompletedAt))
	}
	if t.PID != 0 {
		fmt.Printf("PID:         %d\n", t.PID)
	}
	if code, ok, _ := store.ReadExitCode(t.ID); ok {
		fmt.Printf("Exit code:   %d\n", code)
	}
	if t.ReportStatus != "" {
		fmt.Printf("Report:      %s\n", t.ReportStatus)
	}
	if t.Context != "" {
		fmt.Printf("\nContext:\n%s\n", t.Context)
	}

	if cmd.Bool("output") {
		output, _ := store.ReadOutput(t.ID)
		if output != "" {
			fmt.Printf("\nOutput:\n%s\n", output)
		}
		errOut, _ := store.ReadError(t.ID)
		if errOut != "" {
			fmt.Printf("\nErrors:\n%s\n", errOut)
		}
	}
	return nil
}

func runTaskFork(ctx context.Context, cmd *cli.Command) error {
	parentRef := cmd.Args().Get(0)
	description := cmd.Args().Get(1)
	if parentRef == "" || description == "" {
		return fmt.Errorf("usage: ctx task fork <parent_id> <description>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	if cmd.Bool("create-only") {
		child, err := tasks.Fork(store, parentRef, description)
		if err != nil {
			return err
		}
		fmt.Println(statusLine(child))
		return nil
	}

	parent, err := store.Get(parentRef)
	if err != nil {
		return err
	}
	derived := tasks.DeriveFork(parent, description)

	graph := newConceptGraph(cfg)
	l := launcher.New(store, graph, cfg, nil)
	child, err := l.Launch(ctx, launcher.Options{
		Description:    derived.Description,
		Concepts:       derived.Concepts,
		Context:        derived.Context,
		ParentID:       derived.ParentID,
		ReportTemplate: derived.ReportTemplate,
		Background:     cmd.Bool("background"),
	})
	if err != nil {
		return err
	}

	fmt.Println(statusLine(child))
	return nil
}

func runTaskResume(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: ctx task resume <task_id>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	t, err := store.Get(ref)
	if err != nil {
		return err
	}
	fmt.Printf("Resuming task %s: %s\n", t.ShortID(), t.Description)
	fmt.Printf("Session: %s\n", t.SessionID)

	l := launcher.New(store, nil, cfg, nil)
	return l.Resume(ctx, t.ID)
}

func runTaskRemove(_ context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: ctx task rm <task_id>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	t, err := store.Get(ref)
	if err != nil {
		return err
	}

	if !cmd.Bool("force") && !confirm(fmt.Sprintf("Remove task %s (%s)?", t.ShortID(), t.Description)) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := store.Delete(t.ID); err != nil {
		return err
	}
	fmt.Printf("Removed task %s\n", t.ShortID())
	return nil
}

func runTaskClear(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	force := cmd.Bool("force")
	if !force {
		stats, err := store.Summarize()
		if err != nil {
			return err
		}
		if stats.Total == 0 {
			fmt.Println("No tasks to clear.")
			return nil
		}
		if !confirm(fmt.Sprintf("Remove all %d tasks and the DAG log?", stats.Total)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	n, err := store.Clear(true)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d tasks\n", n)
	return nil
}

func runTaskReport(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: ctx task report <task_id>")
	}

	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	t, err := store.Get(ref)
	if err != nil {
		return err
	}

	existing, err := store.ReadReport(t.ID)
	if err != nil {
		return err
	}
	if existing == "" || cmd.Bool("regenerate") {
		gen := report.New(store, cfg, report.NewAgentForker(cfg), nil)
		if err := gen.Generate(ctx, t.ID, report.Options{
			TemplateOverride: cmd.String("template"),
			Regenerate:       cmd.Bool("regenerate"),
		}); err != nil {
			return err
		}
		existing, err = store.ReadReport(t.ID)
		if err != nil {
			return err
		}
	}

	fmt.Print(renderMarkdown(existing))
	return nil
}
