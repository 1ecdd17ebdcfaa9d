package monitor

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"contextualize/internal/tasks"
)

func TestProcessRunning(t *testing.T) {
	running, err := ProcessRunning(os.Getpid())
	if err != nil {
		t.Fatalf("ProcessRunning(self): %v", err)
	}
	if !running {
		t.Error("own process should be running")
	}

	running, err = ProcessRunning(0)
	if err != nil {
		t.Fatal(err)
	}
	if running {
		t.Error("pid 0 should never count as running")
	}
}

func TestProcessRunningExited(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatal(err)
	}

	running, err := ProcessRunning(pid)
	if err != nil {
		t.Fatalf("ProcessRunning: %v", err)
	}
	if running {
		t.Error("reaped child should not be running")
	}
}

func newTask(t *testing.T, store *tasks.FileStore, status tasks.Status, pid int) *tasks.Task {
	t.Helper()
	task := &tasks.Task{Description: "probe target"}
	if err := store.Create(task); err != nil {
		t.Fatal(err)
	}
	if status != tasks.StatusCreated {
		if _, err := store.Transition(task.ID, tasks.StatusRunning); err != nil {
			t.Fatal(err)
		}
	}
	if pid != 0 {
		if err := store.SetPID(task.ID, pid); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCheckTaskWithoutPID(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := newTask(t, store, tasks.StatusRunning, 0)

	m := New(store, 10, nil)
	c, err := m.CheckTask(task.ID)
	if err != nil {
		t.Fatalf("CheckTask: %v", err)
	}
	if c.Running {
		t.Error("task without pid must not be considered running")
	}
}

func TestReconcileSettlesDeadProcess(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())

	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	cmd.Wait()

	task := newTask(t, store, tasks.StatusRunning, pid)

	m := New(store, 10, nil)
	c, err := m.Reconcile(task.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !c.Updated {
		t.Fatal("expected a transition")
	}
	if c.Task.Status != tasks.StatusCompleted {
		t.Errorf("Status = %q, want completed (no exit code recorded)", c.Task.Status)
	}
	if c.Task.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestReconcileUsesExitCode(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())

	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	cmd.Wait()

	task := newTask(t, store, tasks.StatusRunning, pid)
	if err := os.WriteFile(store.ExitCodePath(task.ID), []byte("7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(store, 10, nil)
	c, err := m.Reconcile(task.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if c.Task.Status != tasks.StatusFailed {
		t.Errorf("Status = %q, want failed for exit code 7", c.Task.Status)
	}
}

func TestReconcileLeavesLiveProcessAlone(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	task := newTask(t, store, tasks.StatusRunning, os.Getpid())

	m := New(store, 10, nil)
	c, err := m.Reconcile(task.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if c.Updated {
		t.Error("live process must not be settled")
	}
	if c.Task.Status != tasks.StatusRunning {
		t.Errorf("Status = %q, want running", c.Task.Status)
	}
}

func TestReconcileAllBounded(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())
	for i := 0; i < 5; i++ {
		newTask(t, store, tasks.StatusCreated, 0)
		time.Sleep(5 * time.Millisecond) // stagger mtimes
	}

	m := New(store, 3, nil)
	checks, err := m.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if len(checks) != 3 {
		t.Errorf("checked %d tasks, want scan limit of 3", len(checks))
	}
}

func TestWaitForTask(t *testing.T) {
	store := tasks.NewFileStore(t.TempDir())

	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	cmd.Wait()

	task := newTask(t, store, tasks.StatusRunning, pid)

	m := New(store, 10, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := m.WaitForTask(ctx, task.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if got.Status != tasks.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	base := time.Date(2026, 8, 29, 10, 2, 0, 0, time.UTC)
	next := s.Next(base)
	want := time.Date(2026, 8, 29, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}

	if _, err := ParseSchedule("not a cron"); err == nil {
		t.Error("expected parse error")
	}

	// 6-field expressions are rejected; only minute precision is supported
	if _, err := ParseSchedule("0 0 * * * *"); err == nil {
		t.Error("expected parse error for seconds field")
	}
}
