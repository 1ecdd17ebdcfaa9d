// Package monitor reconciles recorded task state with the actual
// processes behind background tasks.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contextualize/internal/tasks"
)

// Check is the result of probing a single task.
type Check struct {
	Task    *tasks.Task
	Running bool
	// Updated is set when the reconcile pass transitioned the task.
	Updated bool
}

// Monitor probes background task processes and settles tasks whose
// process has exited.
type Monitor struct {
	store     *tasks.FileStore
	scanLimit int
	logger    *slog.Logger
}

// New creates a monitor over the given store. scanLimit bounds how many
// of the most recently touched tasks a reconcile pass inspects; zero or
// negative means the default of 10.
func New(store *tasks.FileStore, scanLimit int, logger *slog.Logger) *Monitor {
	if scanLimit <= 0 {
		scanLimit = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: store, scanLimit: scanLimit, logger: logger}
}

// CheckTask probes a single task. A task without a recorded pid is
// never considered running, whatever its stored status says.
func (m *Monitor) CheckTask(ref string) (*Check, error) {
	t, err := m.store.Get(ref)
	if err != nil {
		return nil, err
	}

	c := &Check{Task: t}
	if t.PID == 0 {
		return c, nil
	}

	running, err := ProcessRunning(t.PID)
	if err != nil {
		return c, err
	}
	c.Running = running
	return c, nil
}

// Reconcile probes ref and, if its process has exited while the task is
// still marked running, settles it to completed or failed based on the
// recorded exit code. Tasks launched before exit codes were recorded
// settle to completed.
func (m *Monitor) Reconcile(ref string) (*Check, error) {
	c, err := m.CheckTask(ref)
	if err != nil {
		return c, err
	}

	t := c.Task
	if t.Status != tasks.StatusRunning || t.PID == 0 || c.Running {
		return c, nil
	}

	to := tasks.StatusCompleted
	code, ok, err := m.store.ReadExitCode(t.ID)
	if err != nil {
		return c, fmt.Errorf("read exit code for %s: %w", t.ShortID(), err)
	}
	if ok && code != 0 {
		to = tasks.StatusFailed
	}

	updated, err := m.store.Transition(t.ID, to)
	if err != nil {
		return c, fmt.Errorf("settle task %s: %w", t.ShortID(), err)
	}
	m.logger.Info("settled background task",
		"task", t.ShortID(), "status", to, "exit_code", code, "recorded", ok)

	c.Task = updated
	c.Updated = true
	return c, nil
}

// ReconcileAll runs Reconcile over the most recently touched tasks,
// bounded by the monitor's scan limit. Per-task failures are logged and
// skipped so one broken record cannot stall the pass.
func (m *Monitor) ReconcileAll(ctx context.Context) ([]*Check, error) {
	ids, err := m.store.RecentIDs(m.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan recent tasks: %w", err)
	}

	var checks []*Check
	for _, id := range ids {
		if ctx.Err() != nil {
			return checks, ctx.Err()
		}
		c, err := m.Reconcile(id)
		if err != nil {
			m.logger.Warn("reconcile failed", "task", id, "error", err)
			continue
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// WaitForTask polls until the task reaches a terminal status or ctx is
// done, reconciling on every tick so an exited background process gets
// settled during the wait.
func (m *Monitor) WaitForTask(ctx context.Context, ref string, poll time.Duration) (*tasks.Task, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		c, err := m.Reconcile(ref)
		if err != nil {
			return nil, err
		}
		switch c.Task.Status {
		case tasks.StatusCompleted, tasks.StatusFailed, tasks.StatusReported:
			return c.Task, nil
		}

		select {
		case <-ctx.Done():
			return c.Task, ctx.Err()
		case <-ticker.C:
		}
	}
}
