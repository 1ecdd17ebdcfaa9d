package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"contextualize/internal/monitor"
)

// NewMonitorCommand returns the monitor subcommand.
func NewMonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Reconcile background tasks with their processes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep running and reconcile periodically",
			},
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Interval between watch passes",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Cron expression pacing watch passes (overrides --every)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Max tasks scanned per pass (default from config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "wait",
				Usage:     "Block until a task finishes",
				ArgsUsage: "<task_id>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "Polling interval",
						Value: 2 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up after this long (0 = forever)",
					},
				},
				Action: runMonitorWait,
			},
		},
		Action: runMonitor,
	}
}

func newMonitor(cmd *cli.Command) *monitor.Monitor {
	cfg := loadConfig(cmd)
	limit := cmd.Int("limit")
	if limit <= 0 {
		limit = cfg.Monitor.ScanLimit
	}
	return monitor.New(newTaskStore(cfg), limit, nil)
}

func runMonitor(ctx context.Context, cmd *cli.Command) error {
	m := newMonitor(cmd)

	if cmd.Bool("watch") {
		if expr := cmd.String("cron"); expr != "" {
			schedule, err := monitor.ParseSchedule(expr)
			if err != nil {
				return err
			}
			fmt.Printf("Watching on schedule %q, ctrl-c to stop\n", schedule)
			return m.WatchCron(ctx, schedule)
		}
		fmt.Printf("Watching every %s, ctrl-c to stop\n", cmd.Duration("every"))
		return m.Watch(ctx, cmd.Duration("every"))
	}

	cfg := loadConfig(cmd)
	if status, hb, err := monitor.CheckWatcher(monitor.HeartbeatPath(newTaskStore(cfg))); err == nil && status != monitor.WatcherDead {
		fmt.Printf("Watcher: %s (pid %d, since %s)\n", status, hb.PID, hb.StartedAt.Format("15:04:05"))
	}

	checks, err := m.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	if len(checks) == 0 {
		fmt.Println("No tasks to check.")
		return nil
	}
	for _, c := range checks {
		marker := " "
		if c.Updated {
			marker = "*"
		}
		running := ""
		if c.Running {
			running = " (running)"
		}
		fmt.Printf("%s %s%s\n", marker, statusLine(c.Task), running)
	}
	return nil
}

func runMonitorWait(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.Args().First()
	if ref == "" {
		return fmt.Errorf("usage: ctx monitor wait <task_id>")
	}

	m := newMonitor(cmd)

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t, err := m.WaitForTask(ctx, ref, cmd.Duration("poll"))
	if err != nil {
		return err
	}
	fmt.Println(statusLine(t))
	return nil
}
