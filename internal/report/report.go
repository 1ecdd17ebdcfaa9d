// Package report generates post-completion reports for tasks by forking
// the task's agent session against a report template.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contextualize/internal/config"
	"contextualize/internal/tasks"
)

// fallbackTemplate is used when no template file can be found anywhere.
const fallbackTemplate = `# Task Report: {{task_id}}
## Summary
{{summary}}
## Details
{{details}}`

// SessionForker runs a prompt against a fork of an existing agent
// session and returns the fork's session id and its output.
type SessionForker interface {
	ForkSession(ctx context.Context, sessionID, prompt string) (newSessionID, output string, err error)
}

// Generator produces reports for completed tasks.
type Generator struct {
	store  *tasks.FileStore
	cfg    *config.Config
	forker SessionForker
	logger *slog.Logger
}

// New creates a report generator. forker must not be nil.
func New(store *tasks.FileStore, cfg *config.Config, forker SessionForker, logger *slog.Logger) *Generator {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, cfg: cfg, forker: forker, logger: logger}
}

// Options controls one report generation.
type Options struct {
	// TemplateOverride wins over the task's own template and the
	// configured default.
	TemplateOverride string
	// Regenerate replaces an existing report instead of keeping it.
	Regenerate bool
}

// Generate builds a report for the task. Only completed tasks are
// eligible; a failed generation moves the task to failed with its
// report sub-state marked accordingly. An existing report is kept
// unless Regenerate is set.
func (g *Generator) Generate(ctx context.Context, ref string, opts Options) error {
	task, err := g.store.Get(ref)
	if err != nil {
		return err
	}

	if existing, err := g.store.ReadReport(task.ID); err != nil {
		return err
	} else if existing != "" && !opts.Regenerate {
		g.logger.Info("report already exists", "task", task.ShortID())
		return nil
	}

	regenerating := false
	switch task.Status {
	case tasks.StatusCompleted:
		if _, err := g.store.Transition(task.ID, tasks.StatusReporting); err != nil {
			return err
		}
	case tasks.StatusReported:
		if !opts.Regenerate {
			return fmt.Errorf("task %s already reported", task.ShortID())
		}
		regenerating = true
	case tasks.StatusReporting:
		// A previous attempt was interrupted; pick it up again.
	default:
		return fmt.Errorf("task %s is %s, reports need a completed task", task.ShortID(), task.Status)
	}
	if err := g.store.MarkReportGenerating(task.ID); err != nil {
		return err
	}

	templatePath := opts.TemplateOverride
	if templatePath == "" {
		templatePath = task.ReportTemplate
	}
	if templatePath == "" {
		templatePath = g.cfg.Report.DefaultTemplate
	}
	template := g.loadTemplate(templatePath)

	prompt := BuildReportPrompt(task, template)

	g.logger.Info("generating report", "task", task.ShortID(), "template", templatePath)
	sessionID, content, err := g.forker.ForkSession(ctx, task.SessionID, prompt)
	if err != nil {
		g.logger.Warn("report generation failed", "task", task.ShortID(), "error", err)
		if merr := g.store.MarkReportFailed(task.ID); merr != nil {
			return merr
		}
		if !regenerating {
			if _, terr := g.store.Transition(task.ID, tasks.StatusFailed); terr != nil {
				return terr
			}
		}
		return fmt.Errorf("generate report for %s: %w", task.ShortID(), err)
	}

	if err := g.store.WriteReport(task.ID, content); err != nil {
		return err
	}
	if err := g.store.MarkReportCompleted(task.ID, sessionID); err != nil {
		return err
	}
	if !regenerating {
		if _, err := g.store.Transition(task.ID, tasks.StatusReported); err != nil {
			return err
		}
	}
	return nil
}

// loadTemplate resolves a template path: the literal path first, then
// the configured reports directory by base name, then the built-in
// fallback.
func (g *Generator) loadTemplate(path string) string {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		candidate := filepath.Join(g.cfg.Paths.ReportsDir, filepath.Base(path))
		if data, err := os.ReadFile(candidate); err == nil {
			return string(data)
		}
	}
	return fallbackTemplate
}

// ListTemplates returns the template file names available in the
// configured reports directory.
func (g *Generator) ListTemplates() ([]string, error) {
	entries, err := os.ReadDir(g.cfg.Paths.ReportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reports dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".md", ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// BuildReportPrompt assembles the prompt handed to the forked session.
func BuildReportPrompt(task *tasks.Task, template string) string {
	started := "N/A"
	if task.StartedAt != nil {
		started = task.StartedAt.Format(time.RFC3339)
	}
	completed := "N/A"
	if task.CompletedAt != nil {
		completed = task.CompletedAt.Format(time.RFC3339)
	}

	conceptList := "None"
	if len(task.Concepts) > 0 {
		conceptList = strings.Join(task.Concepts, ", ")
	}

	return fmt.Sprintf(`You just completed a task in the Contextualize framework.
Please generate a comprehensive report based on what happened in this session.

TASK DETAILS:
- Task ID: %s
- Description: %s
- Status: %s
- Started: %s
- Completed: %s
- Duration: %s
- Concepts Used: %s

REPORT TEMPLATE:
%s

INSTRUCTIONS:
1. Review the entire session to understand what was attempted and achieved
2. Fill in ALL template variables (marked with {{variable}}) based on the session
3. Be concise but comprehensive
4. Focus on concrete outcomes and actionable insights
5. Include specific file paths, commands, or code changes where relevant
6. Return ONLY the filled template, no additional commentary

The report should accurately reflect what happened in this specific task execution.`,
		task.ID, task.Description, task.Status, started, completed,
		FormatDuration(task.StartedAt, task.CompletedAt), conceptList, template)
}

// FormatDuration renders the wall-clock span between two timestamps as
// "2h 5m 3s", dropping leading zero units. Missing timestamps yield
// "N/A".
func FormatDuration(start, end *time.Time) string {
	if start == nil || end == nil {
		return "N/A"
	}
	d := end.Sub(*start).Round(time.Second)
	if d < 0 {
		return "N/A"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
