package tasks

import (
	"errors"
	"strings"
	"testing"

	"contextualize/internal/storage/dirstore"
)

func TestFork(t *testing.T) {
	store := NewFileStore(t.TempDir())

	parent := &Task{
		Description: "investigate flaky test",
		Concepts:    []string{"testing", "ci"},
		Context:     "suite fails on linux only",
	}
	if err := store.Create(parent); err != nil {
		t.Fatal(err)
	}

	child, err := Fork(store, parent.ShortID(), "bisect the failure")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	if child.ParentID != parent.ID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, parent.ID)
	}
	if !strings.HasPrefix(child.Description, "[Fork of "+parent.ShortID()+"]") {
		t.Errorf("Description = %q", child.Description)
	}
	if !strings.Contains(child.Context, "Forked from: investigate flaky test") {
		t.Errorf("Context = %q", child.Context)
	}
	if len(child.Concepts) != 2 || child.Concepts[0] != "testing" {
		t.Errorf("Concepts = %v", child.Concepts)
	}
	if child.SessionID == parent.SessionID {
		t.Error("fork must get a fresh session id")
	}

	// The concept list is a copy: mutating the child must not reach the parent
	child.Concepts[0] = "mutated"
	p, err := store.Get(parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Concepts[0] != "testing" {
		t.Error("fork shares concept storage with parent")
	}

	// Parent is untouched
	if p.Description != "investigate flaky test" || p.ParentID != "" {
		t.Errorf("parent mutated by fork: %+v", p)
	}
}

func TestForkUnknownParent(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if _, err := Fork(store, "doesnotexist", "x"); !errors.Is(err, dirstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
