package tasks

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change the lifecycle
// machine forbids is attempted.
var ErrInvalidTransition = errors.New("invalid status transition")

// legalTransitions is the closed set of edges in the lifecycle machine:
//
//	created → running → {completed, failed}
//	completed → reporting → {reported, failed}
//
// failed and reported are terminal for the primary flow.
var legalTransitions = map[Status][]Status{
	StatusCreated:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusReporting},
	StatusReporting: {StatusReported, StatusFailed},
	StatusFailed:    nil,
	StatusReported:  nil,
}

// CanTransition reports whether the lifecycle machine permits from → to.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns a taxonomy error naming both states when the
// edge is illegal.
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s → %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}
