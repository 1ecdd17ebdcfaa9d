package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDAGLogAppendAndEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dag.jsonl")
	log := NewDAGLog(path)

	first := DAGEntry{TaskID: "t1", Description: "root task", Status: "created"}
	second := DAGEntry{TaskID: "t2", Description: "child task", Status: "created", ParentID: "t1"}

	if err := log.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(entries))
	}
	if entries[0].TaskID != "t1" || entries[1].TaskID != "t2" {
		t.Errorf("append order not preserved: %+v", entries)
	}
	if entries[1].ParentID != "t1" {
		t.Errorf("ParentID = %q, want t1", entries[1].ParentID)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in on append")
	}
}

func TestDAGLogSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dag.jsonl")
	log := NewDAGLog(path)

	if err := log.Append(DAGEntry{TaskID: "t1", Status: "created", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("garbage line\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := log.Append(DAGEntry{TaskID: "t2", Status: "running", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entries = %d, want 2 (garbage skipped)", len(entries))
	}
}

func TestDAGLogMissingFile(t *testing.T) {
	log := NewDAGLog(filepath.Join(t.TempDir(), "dag.jsonl"))

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries on missing file: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries, got %v", entries)
	}

	if err := log.Remove(); err != nil {
		t.Errorf("Remove on missing file: %v", err)
	}
}
