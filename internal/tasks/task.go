// Package tasks provides persistent tracking of delegated agent work.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReporting Status = "reporting"
	StatusReported  Status = "reported"
)

// Report sub-state values, tracked independently of the primary status.
const (
	ReportPending    = "pending"
	ReportGenerating = "generating"
	ReportCompleted  = "completed"
	ReportFailed     = "failed"
)

// Task represents one unit of delegated work. The JSON field names match
// the metadata.json layout consumed by existing tooling and must not change.
type Task struct {
	ID          string   `json:"task_id"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Concepts    []string `json:"concepts"`
	Context     string   `json:"context_from_main"`
	ParentID    string   `json:"parent_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PID is set only when the task was launched as a detached background
	// process. A task without a PID is never considered running.
	PID int `json:"pid,omitempty"`

	ReportTemplate    string     `json:"report_template,omitempty"`
	ReportStatus      string     `json:"report_status,omitempty"`
	ReportGeneratedAt *time.Time `json:"report_generated_at,omitempty"`
	ReportSessionID   string     `json:"report_session_id,omitempty"`
}

// ShortID returns the first 8 characters of the task id, the form used in
// all user-facing listings.
func (t *Task) ShortID() string {
	if len(t.ID) < 8 {
		return t.ID
	}
	return t.ID[:8]
}

// Terminal reports whether the task's primary lifecycle has ended.
func (t *Task) Terminal() bool {
	return t.Status == StatusFailed || t.Status == StatusReported
}

// clone returns a deep copy so callers can't mutate the store's cache.
func (t *Task) clone() *Task {
	c := *t
	c.Concepts = append([]string(nil), t.Concepts...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.ReportGeneratedAt != nil {
		v := *t.ReportGeneratedAt
		c.ReportGeneratedAt = &v
	}
	return &c
}

// GenerateTaskID creates a collision-resistant task identifier.
func GenerateTaskID() string {
	return uuid.New().String()
}

// GenerateSessionID creates a correlation token for an agent session.
// Session ids are never reused across tasks.
func GenerateSessionID() string {
	return uuid.New().String()
}

// StatusMeta holds presentation metadata for a status value.
type StatusMeta struct {
	Icon  string
	Color string // ANSI color name used by the CLI tables
}

// Meta returns presentation metadata for s. The switch covers the whole
// status enumeration; adding a status without display metadata falls
// through to the unknown marker, which the tests reject.
func (s Status) Meta() StatusMeta {
	switch s {
	case StatusCreated:
		return StatusMeta{Icon: "○", Color: "white"}
	case StatusRunning:
		return StatusMeta{Icon: "▶", Color: "cyan"}
	case StatusCompleted:
		return StatusMeta{Icon: "✓", Color: "green"}
	case StatusFailed:
		return StatusMeta{Icon: "✗", Color: "red"}
	case StatusReporting:
		return StatusMeta{Icon: "…", Color: "yellow"}
	case StatusReported:
		return StatusMeta{Icon: "✓", Color: "green"}
	}
	return StatusMeta{Icon: "?", Color: "white"}
}

// AllStatuses lists every status value, for exhaustiveness checks and
// CLI filter validation.
func AllStatuses() []Status {
	return []Status{
		StatusCreated,
		StatusRunning,
		StatusCompleted,
		StatusFailed,
		StatusReporting,
		StatusReported,
	}
}
