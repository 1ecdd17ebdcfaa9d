package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"contextualize/internal/config"
	"contextualize/internal/tasks"
)

type stubForker struct {
	output  string
	session string
	err     error
	prompts []string
}

func (s *stubForker) ForkSession(_ context.Context, sessionID, prompt string) (string, string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", "", s.err
	}
	return s.session, s.output, nil
}

func completedTask(t *testing.T, store *tasks.FileStore) *tasks.Task {
	t.Helper()
	task := &tasks.Task{Description: "ship the feature", Concepts: []string{"core"}}
	if err := store.Create(task); err != nil {
		t.Fatal(err)
	}
	for _, s := range []tasks.Status{tasks.StatusRunning, tasks.StatusCompleted} {
		if _, err := store.Transition(task.ID, s); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestGenerate(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := completedTask(t, store)

	forker := &stubForker{output: "# Report\nall done", session: "fork-session-1"}
	g := New(store, config.Default(), forker, nil)

	if err := g.Generate(context.Background(), task.ID, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != tasks.StatusReported {
		t.Errorf("Status = %q, want reported", got.Status)
	}
	if got.ReportStatus != tasks.ReportCompleted {
		t.Errorf("ReportStatus = %q", got.ReportStatus)
	}
	if got.ReportSessionID != "fork-session-1" {
		t.Errorf("ReportSessionID = %q", got.ReportSessionID)
	}
	if got.ReportGeneratedAt == nil {
		t.Error("ReportGeneratedAt not set")
	}

	content, err := store.ReadReport(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if content != "# Report\nall done" {
		t.Errorf("report content = %q", content)
	}

	if len(forker.prompts) != 1 {
		t.Fatalf("forked %d times", len(forker.prompts))
	}
	prompt := forker.prompts[0]
	for _, want := range []string{
		"ship the feature",
		"Concepts Used: core",
		"{{task_id}}", // fallback template embedded in the prompt
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateFailureSettlesTask(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := completedTask(t, store)
	firstCompleted := *task.CompletedAt

	forker := &stubForker{err: errors.New("agent unavailable")}
	g := New(store, config.Default(), forker, nil)

	if err := g.Generate(context.Background(), task.ID, Options{}); err == nil {
		t.Fatal("expected error")
	}

	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != tasks.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.ReportStatus != tasks.ReportFailed {
		t.Errorf("ReportStatus = %q", got.ReportStatus)
	}
	// The original completion time survives the failed report attempt.
	if got.CompletedAt == nil || !got.CompletedAt.Equal(firstCompleted) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, firstCompleted)
	}
}

func TestGenerateRejectsNonCompleted(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := &tasks.Task{Description: "still running"}
	if err := store.Create(task); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(task.ID, tasks.StatusRunning); err != nil {
		t.Fatal(err)
	}

	g := New(store, config.Default(), &stubForker{}, nil)
	if err := g.Generate(context.Background(), task.ID, Options{}); err == nil {
		t.Error("expected error for running task")
	}
}

func TestGenerateKeepsExistingReport(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := completedTask(t, store)
	if err := store.WriteReport(task.ID, "previous report"); err != nil {
		t.Fatal(err)
	}

	forker := &stubForker{output: "new report"}
	g := New(store, config.Default(), forker, nil)

	if err := g.Generate(context.Background(), task.ID, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(forker.prompts) != 0 {
		t.Error("existing report should short-circuit generation")
	}

	content, _ := store.ReadReport(task.ID)
	if content != "previous report" {
		t.Errorf("report content = %q", content)
	}
}

func TestTemplateChain(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ReportsDir = dir

	store := tasks.NewFileStore(t.TempDir())
	task := completedTask(t, store)

	if err := os.WriteFile(filepath.Join(dir, "custom.md"), []byte("CUSTOM TEMPLATE BODY"), 0o644); err != nil {
		t.Fatal(err)
	}

	forker := &stubForker{output: "x"}
	g := New(store, cfg, forker, nil)

	// Resolved by base name inside the reports dir.
	if err := g.Generate(context.Background(), task.ID, Options{TemplateOverride: "elsewhere/custom.md"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(forker.prompts[0], "CUSTOM TEMPLATE BODY") {
		t.Error("reports-dir template not used")
	}
}

func TestListTemplates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"default.md", "audit.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Paths.ReportsDir = dir
	g := New(tasks.NewFileStore(t.TempDir()), cfg, &stubForker{}, nil)

	names, err := g.ListTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("templates = %v, want default.md and audit.json only", names)
	}
}

func TestFormatDuration(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		delta time.Duration
		want  string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 5*time.Minute + 3*time.Second, "2h 5m 3s"},
	}
	for _, c := range cases {
		end := base.Add(c.delta)
		if got := FormatDuration(&base, &end); got != c.want {
			t.Errorf("FormatDuration(+%v) = %q, want %q", c.delta, got, c.want)
		}
	}
	if got := FormatDuration(nil, nil); got != "N/A" {
		t.Errorf("FormatDuration(nil) = %q", got)
	}
}
