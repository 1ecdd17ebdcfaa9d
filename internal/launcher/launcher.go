// Package launcher starts agent sessions for tasks, either attached to
// the current terminal or as detached background processes.
package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"contextualize/internal/config"
	"contextualize/internal/tasks"
)

// ConceptLoader renders concept content, including transitive
// references, for a set of concept names.
type ConceptLoader interface {
	LoadWithDependencies(names []string) (string, error)
}

// Options describes one task launch.
type Options struct {
	Description    string
	Concepts       []string
	Context        string
	ParentID       string
	Background     bool
	ReportTemplate string
}

// input.json layout, kept for inspection and fork context recovery.
type inputRecord struct {
	Concepts       []string `json:"concepts"`
	ConceptContent string   `json:"concept_content"`
	Context        string   `json:"context_from_main"`
	ParentID       string   `json:"parent_id,omitempty"`
}

// Launcher creates tasks and runs the configured agent binary for them.
type Launcher struct {
	store    *tasks.FileStore
	concepts ConceptLoader
	cfg      *config.Config
	logger   *slog.Logger

	// Stdout and Stderr receive foreground agent output. They default
	// to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a launcher over the given store and concept loader.
func New(store *tasks.FileStore, concepts ConceptLoader, cfg *config.Config, logger *slog.Logger) *Launcher {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		store:    store,
		concepts: concepts,
		cfg:      cfg,
		logger:   logger,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Launch creates the task record, persists its prompt and input, and
// runs the agent. Foreground launches block until the agent exits and
// settle the task from its exit code. Background launches detach the
// process, record its pid, and leave settling to the monitor.
func (l *Launcher) Launch(ctx context.Context, opts Options) (*tasks.Task, error) {
	if opts.Description == "" {
		return nil, fmt.Errorf("launch: description is required")
	}

	task := &tasks.Task{
		Description:    opts.Description,
		Concepts:       opts.Concepts,
		Context:        opts.Context,
		ParentID:       opts.ParentID,
		ReportTemplate: opts.ReportTemplate,
	}
	if err := l.store.Create(task); err != nil {
		return nil, err
	}

	conceptContent := ""
	if len(opts.Concepts) > 0 && l.concepts != nil {
		var err error
		conceptContent, err = l.concepts.LoadWithDependencies(opts.Concepts)
		if err != nil {
			return nil, fmt.Errorf("load concepts for task %s: %w", task.ShortID(), err)
		}
	}

	if err := l.store.WriteInput(task.ID, inputRecord{
		Concepts:       task.Concepts,
		ConceptContent: conceptContent,
		Context:        task.Context,
		ParentID:       task.ParentID,
	}); err != nil {
		return nil, err
	}

	prompt := BuildPrompt(task.Description, conceptContent, task.Context)
	if err := l.store.WritePrompt(task.ID, prompt); err != nil {
		return nil, err
	}

	if _, err := l.store.Transition(task.ID, tasks.StatusRunning); err != nil {
		return nil, err
	}

	l.logger.Info("launching task",
		"task", task.ShortID(), "session", task.SessionID, "background", opts.Background)

	if opts.Background {
		return l.runBackground(task, prompt)
	}
	return l.runForeground(ctx, task, prompt)
}

// agentArgv builds the full agent command line for a one-shot run.
func (l *Launcher) agentArgv(sessionID, prompt string) []string {
	argv := []string{l.cfg.Agent.Binary}
	argv = append(argv, l.cfg.Agent.Args...)
	argv = append(argv, "--session-id", sessionID, "--print", prompt)
	return argv
}

func (l *Launcher) runForeground(ctx context.Context, task *tasks.Task, prompt string) (*tasks.Task, error) {
	argv := l.agentArgv(task.SessionID, prompt)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	outFile, err := os.Create(l.store.OutputPath(task.ID))
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()
	errFile, err := os.Create(l.store.ErrorPath(task.ID))
	if err != nil {
		return nil, fmt.Errorf("create error file: %w", err)
	}
	defer errFile.Close()

	cmd.Stdout = io.MultiWriter(l.Stdout, outFile)
	cmd.Stderr = io.MultiWriter(l.Stderr, errFile)

	to := tasks.StatusCompleted
	if err := cmd.Run(); err != nil {
		to = tasks.StatusFailed
		if _, ok := err.(*exec.ExitError); !ok {
			// Could not even start the agent; settle as failed and
			// surface the launch error.
			fmt.Fprintln(errFile, err.Error())
			if _, terr := l.store.Transition(task.ID, to); terr != nil {
				l.logger.Warn("settle after launch failure", "task", task.ShortID(), "error", terr)
			}
			return nil, fmt.Errorf("run agent: %w", err)
		}
	}

	settled, err := l.store.Transition(task.ID, to)
	if err != nil {
		return nil, err
	}
	l.logger.Info("task finished", "task", task.ShortID(), "status", to)
	return settled, nil
}

// backgroundScript wraps the agent so its exit code survives the
// detach. Paths and the prompt travel via the environment to sidestep
// shell quoting.
const backgroundScript = `"$@" >"$CTX_TASK_OUT" 2>"$CTX_TASK_ERR"; echo $? >"$CTX_TASK_EXIT"`

func (l *Launcher) runBackground(task *tasks.Task, prompt string) (*tasks.Task, error) {
	argv := l.agentArgv(task.SessionID, prompt)

	args := append([]string{"-c", backgroundScript, "ctx-task"}, argv...)
	cmd := exec.Command("sh", args...)
	cmd.Env = append(os.Environ(),
		"CTX_TASK_OUT="+l.store.OutputPath(task.ID),
		"CTX_TASK_ERR="+l.store.ErrorPath(task.ID),
		"CTX_TASK_EXIT="+l.store.ExitCodePath(task.ID),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		if _, terr := l.store.Transition(task.ID, tasks.StatusFailed); terr != nil {
			l.logger.Warn("settle after launch failure", "task", task.ShortID(), "error", terr)
		}
		return nil, fmt.Errorf("start background agent: %w", err)
	}

	pid := cmd.Process.Pid
	if err := l.store.SetPID(task.ID, pid); err != nil {
		return nil, err
	}
	// Reap the wrapper when it exits so long-lived callers (the MCP
	// server) don't accumulate zombies. The CLI usually exits first and
	// init takes over.
	go cmd.Wait()

	l.logger.Info("task running in background", "task", task.ShortID(), "pid", pid)
	return l.store.Get(task.ID)
}

// Resume reattaches the terminal to a task's recorded agent session.
func (l *Launcher) Resume(ctx context.Context, ref string) error {
	task, err := l.store.Get(ref)
	if err != nil {
		return err
	}
	if task.SessionID == "" {
		return fmt.Errorf("task %s has no session to resume", task.ShortID())
	}

	argv := []string{l.cfg.Agent.Binary}
	argv = append(argv, l.cfg.Agent.Args...)
	argv = append(argv, "--session-id", task.SessionID)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("resume session %s: %w", task.SessionID, err)
	}
	return nil
}
