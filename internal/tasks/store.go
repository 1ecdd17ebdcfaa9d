package tasks

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	Status   Status `json:"status,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for tasks. Status is mutated
// only through Transition; the report sub-state has its own setters.
type Store interface {
	Create(t *Task) error
	Resolve(ref string) (string, error)
	Get(ref string) (*Task, error)
	List(filter ListFilter) ([]*Task, error)
	Transition(ref string, to Status) (*Task, error)
	SetPID(ref string, pid int) error
	MarkReportGenerating(ref string) error
	MarkReportCompleted(ref, sessionID string) error
	MarkReportFailed(ref string) error
	Delete(ref string) error
	Clear(force bool) (int, error)
}
