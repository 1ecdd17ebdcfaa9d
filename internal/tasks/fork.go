package tasks

import "fmt"

// Fork derives a new task from an existing one. The child inherits a copy
// of the parent's concepts (later mutation of either list is independent),
// records the parent link, and carries the parent's context prefixed with
// the fork reason. The parent record is never mutated.
func Fork(store Store, parentRef, description string) (*Task, error) {
	parent, err := store.Get(parentRef)
	if err != nil {
		return nil, fmt.Errorf("fork: %w", err)
	}

	child := DeriveFork(parent, description)
	if err := store.Create(child); err != nil {
		return nil, fmt.Errorf("fork: %w", err)
	}
	return child, nil
}

// DeriveFork builds the child record for a fork without persisting it.
// Callers that launch the fork immediately use this to feed the
// launcher instead of creating the task twice.
func DeriveFork(parent *Task, description string) *Task {
	return &Task{
		Description:    fmt.Sprintf("[Fork of %s] %s", parent.ShortID(), description),
		Concepts:       append([]string(nil), parent.Concepts...),
		Context:        fmt.Sprintf("Forked from: %s\n%s", parent.Description, parent.Context),
		ParentID:       parent.ID,
		ReportTemplate: parent.ReportTemplate,
	}
}
