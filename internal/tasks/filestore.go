package tasks

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"contextualize/internal/storage"
	"contextualize/internal/storage/dirstore"
)

// Side files kept next to metadata.json in each task directory. The core
// treats them as opaque blobs.
const (
	outputFile   = "output.txt"
	errorFile    = "error.txt"
	promptFile   = "prompt.txt"
	inputFile    = "input.json"
	reportFile   = "report.md"
	exitCodeFile = "exit_code"
)

// FileStore persists tasks as directories under a logs dir, one record per
// task plus an append-only dag.jsonl derivation log. Records are read into
// a per-instance cache on first use; the cache is owned by this instance
// and is not invalidated by other writers until Reload.
type FileStore struct {
	ds     *dirstore.DirStore
	dag    *storage.DAGLog
	cache  map[string]*Task
	loaded bool
}

// NewFileStore creates a FileStore rooted at logsDir.
func NewFileStore(logsDir string) *FileStore {
	return &FileStore{
		ds:  dirstore.NewDirStore(logsDir, "task"),
		dag: storage.NewDAGLog(filepath.Join(logsDir, "dag.jsonl")),
	}
}

// DAG returns the derivation log backing this store.
func (fs *FileStore) DAG() *storage.DAGLog {
	return fs.dag
}

// BaseDir returns the logs directory holding all task records.
func (fs *FileStore) BaseDir() string {
	return fs.ds.BaseDir()
}

// Dir returns the directory holding a task's record and side files.
// The ref must be a full task id.
func (fs *FileStore) Dir(id string) string {
	return fs.ds.Dir(id)
}

// load fills the cache from disk. Corrupt or partial records are skipped
// so one bad task can't make the store unreadable.
func (fs *FileStore) load(force bool) error {
	if fs.loaded && !force {
		return nil
	}

	fs.cache = make(map[string]*Task)

	dirs, err := fs.ds.ListDirs()
	if err != nil {
		return err
	}

	for _, name := range dirs {
		var t Task
		if err := fs.ds.ReadMeta(name, &t); err != nil {
			continue // skip corrupted tasks
		}
		if t.ID == "" {
			continue
		}
		fs.cache[t.ID] = &t
	}

	fs.loaded = true
	return nil
}

// Reload forces a re-scan of the persisted records.
func (fs *FileStore) Reload() error {
	fs.ds.Lock()
	defer fs.ds.Unlock()
	return fs.load(true)
}

// Create persists a new task. Missing identity fields are generated; the
// initial status defaults to created. Creation appends one dag entry.
func (fs *FileStore) Create(t *Task) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if err := fs.load(false); err != nil {
		return err
	}

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.SessionID == "" {
		t.SessionID = GenerateSessionID()
	}
	if t.Status == "" {
		t.Status = StatusCreated
	}
	if t.StartedAt == nil {
		now := time.Now()
		t.StartedAt = &now
	}
	if t.Concepts == nil {
		t.Concepts = []string{}
	}

	if err := fs.ds.EnsureDir(t.ID); err != nil {
		return err
	}
	if err := fs.ds.WriteMeta(t.ID, t); err != nil {
		return err
	}
	fs.cache[t.ID] = t.clone()

	return fs.dag.Append(storage.DAGEntry{
		TaskID:      t.ID,
		Description: t.Description,
		Status:      string(t.Status),
		ParentID:    t.ParentID,
		Timestamp:   *t.StartedAt,
	})
}

// Resolve maps a user-supplied reference (full id or unique prefix) to a
// full task id. Ambiguity is reported, never resolved by first match.
func (fs *FileStore) Resolve(ref string) (string, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()
	return fs.resolve(ref)
}

func (fs *FileStore) resolve(ref string) (string, error) {
	if err := fs.load(false); err != nil {
		return "", err
	}

	if _, ok := fs.cache[ref]; ok {
		return ref, nil
	}

	var candidates []string
	for id := range fs.cache {
		if strings.HasPrefix(id, ref) {
			candidates = append(candidates, id)
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("task %q: %w", ref, dirstore.ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		sort.Strings(candidates)
		return "", fmt.Errorf("task %q matches %s: %w", ref, strings.Join(candidates, ", "), dirstore.ErrAmbiguous)
	}
}

// Get returns a copy of the task matching ref.
func (fs *FileStore) Get(ref string) (*Task, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	id, err := fs.resolve(ref)
	if err != nil {
		return nil, err
	}
	return fs.cache[id].clone(), nil
}

// List returns tasks matching the filter, newest first (by StartedAt).
func (fs *FileStore) List(filter ListFilter) ([]*Task, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if err := fs.load(false); err != nil {
		return nil, err
	}

	var list []*Task
	for _, t := range fs.cache {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && t.ParentID != filter.ParentID {
			continue
		}
		list = append(list, t.clone())
	}

	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].StartedAt, list[j].StartedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

// Transition drives the lifecycle machine. Entering completed or failed
// sets CompletedAt exactly once; no other status touches it. The full
// record is written back immediately and one dag entry is appended.
func (fs *FileStore) Transition(ref string, to Status) (*Task, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	id, err := fs.resolve(ref)
	if err != nil {
		return nil, err
	}
	t := fs.cache[id]

	if err := checkTransition(t.Status, to); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ShortID(), err)
	}

	t.Status = to
	if (to == StatusCompleted || to == StatusFailed) && t.CompletedAt == nil {
		now := time.Now()
		t.CompletedAt = &now
	}

	if err := fs.ds.WriteMeta(id, t); err != nil {
		return nil, err
	}

	if err := fs.dag.Append(storage.DAGEntry{
		TaskID:      t.ID,
		Description: t.Description,
		Status:      string(t.Status),
		ParentID:    t.ParentID,
		Timestamp:   time.Now(),
	}); err != nil {
		return nil, err
	}

	return t.clone(), nil
}

// SetPID records the background process handle for a task.
func (fs *FileStore) SetPID(ref string, pid int) error {
	return fs.update(ref, func(t *Task) {
		t.PID = pid
	})
}

// MarkReportGenerating flags the report sub-state as in progress.
func (fs *FileStore) MarkReportGenerating(ref string) error {
	return fs.update(ref, func(t *Task) {
		t.ReportStatus = ReportGenerating
	})
}

// MarkReportCompleted records a successful report generation.
func (fs *FileStore) MarkReportCompleted(ref, sessionID string) error {
	return fs.update(ref, func(t *Task) {
		now := time.Now()
		t.ReportStatus = ReportCompleted
		t.ReportGeneratedAt = &now
		t.ReportSessionID = sessionID
	})
}

// MarkReportFailed records a failed report generation. The primary status
// is handled separately by the lifecycle machine.
func (fs *FileStore) MarkReportFailed(ref string) error {
	return fs.update(ref, func(t *Task) {
		t.ReportStatus = ReportFailed
	})
}

// update applies a mutation to non-lifecycle fields and persists the record.
func (fs *FileStore) update(ref string, mutate func(*Task)) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	id, err := fs.resolve(ref)
	if err != nil {
		return err
	}
	t := fs.cache[id]
	mutate(t)
	return fs.ds.WriteMeta(id, t)
}

// Delete removes a task's directory and all of its artifacts. Children of
// the task are left untouched; their parent reference dangles.
func (fs *FileStore) Delete(ref string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	id, err := fs.resolve(ref)
	if err != nil {
		return err
	}

	if err := fs.ds.RemoveDir(id); err != nil {
		return err
	}
	delete(fs.cache, id)
	return nil
}

// Clear removes every task directory and the dag log. It refuses to run
// on a non-empty store unless force is set; the caller owns confirmation.
func (fs *FileStore) Clear(force bool) (int, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if err := fs.load(false); err != nil {
		return 0, err
	}

	count := len(fs.cache)
	if count > 0 && !force {
		return 0, fmt.Errorf("clearing %d tasks requires force", count)
	}

	for id := range fs.cache {
		if err := fs.ds.RemoveDir(id); err != nil {
			return 0, err
		}
	}
	if err := fs.dag.Remove(); err != nil {
		return 0, err
	}

	fs.cache = make(map[string]*Task)
	return count, nil
}

// Children returns the tasks forked from the given parent, newest first.
func (fs *FileStore) Children(parentID string) ([]*Task, error) {
	return fs.List(ListFilter{ParentID: parentID})
}

// TreeNode is one task with its resolved children.
type TreeNode struct {
	Task     *Task
	Children []*TreeNode
}

// Tree builds the derivation tree rooted at ref, or the forest of all
// parentless tasks when ref is empty. A dangling parent reference simply
// makes its child a root of the forest.
func (fs *FileStore) Tree(ref string) ([]*TreeNode, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if err := fs.load(false); err != nil {
		return nil, err
	}

	if ref != "" {
		id, err := fs.resolve(ref)
		if err != nil {
			return nil, err
		}
		return []*TreeNode{fs.buildNode(fs.cache[id])}, nil
	}

	var roots []*TreeNode
	for _, t := range fs.cache {
		if t.ParentID == "" {
			roots = append(roots, fs.buildNode(t))
		} else if _, ok := fs.cache[t.ParentID]; !ok {
			roots = append(roots, fs.buildNode(t)) // dangling parent
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Task.ID < roots[j].Task.ID
	})
	return roots, nil
}

func (fs *FileStore) buildNode(t *Task) *TreeNode {
	node := &TreeNode{Task: t.clone()}
	var childIDs []string
	for id, c := range fs.cache {
		if c.ParentID == t.ID {
			childIDs = append(childIDs, id)
		}
	}
	sort.Strings(childIDs)
	for _, id := range childIDs {
		node.Children = append(node.Children, fs.buildNode(fs.cache[id]))
	}
	return node
}

// Stats summarizes the collection by status.
type Stats struct {
	Total      int
	ByStatus   map[Status]int
	WithParent int
}

// Summarize counts tasks per status.
func (fs *FileStore) Summarize() (Stats, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	if err := fs.load(false); err != nil {
		return Stats{}, err
	}

	s := Stats{ByStatus: make(map[Status]int)}
	for _, t := range fs.cache {
		s.Total++
		s.ByStatus[t.Status]++
		if t.ParentID != "" {
			s.WithParent++
		}
	}
	return s, nil
}

// WritePrompt stores the exact prompt text sent to the agent.
func (fs *FileStore) WritePrompt(ref, prompt string) error {
	id, err := fs.Resolve(ref)
	if err != nil {
		return err
	}
	return fs.ds.WriteFileAtomic(id, promptFile, []byte(prompt))
}

// WriteInput stores the structured launch input for later inspection.
func (fs *FileStore) WriteInput(ref string, input any) error {
	id, err := fs.Resolve(ref)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	return fs.ds.WriteFileAtomic(id, inputFile, data)
}

// ReadInput reads the stored launch input into out. Returns false when no
// input was recorded.
func (fs *FileStore) ReadInput(ref string, out any) (bool, error) {
	id, err := fs.Resolve(ref)
	if err != nil {
		return false, err
	}
	data, err := fs.ds.ReadFileContent(id, inputFile)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal input: %w", err)
	}
	return true, nil
}

// OutputPath returns the stdout capture path for a full task id.
func (fs *FileStore) OutputPath(id string) string {
	return fs.ds.FilePath(id, outputFile)
}

// ErrorPath returns the stderr capture path for a full task id.
func (fs *FileStore) ErrorPath(id string) string {
	return fs.ds.FilePath(id, errorFile)
}

// ExitCodePath returns the exit-code side file path for a full task id.
func (fs *FileStore) ExitCodePath(id string) string {
	return fs.ds.FilePath(id, exitCodeFile)
}

// ReadOutput returns the captured stdout, or "" when absent.
func (fs *FileStore) ReadOutput(ref string) (string, error) {
	return fs.readSideFile(ref, outputFile)
}

// ReadError returns the captured stderr, or "" when absent.
func (fs *FileStore) ReadError(ref string) (string, error) {
	return fs.readSideFile(ref, errorFile)
}

// ReadPrompt returns the stored prompt text, or "" when absent.
func (fs *FileStore) ReadPrompt(ref string) (string, error) {
	return fs.readSideFile(ref, promptFile)
}

// WriteError stores an error capture for the task.
func (fs *FileStore) WriteError(ref, content string) error {
	id, err := fs.Resolve(ref)
	if err != nil {
		return err
	}
	return fs.ds.WriteFileAtomic(id, errorFile, []byte(content))
}

// WriteReport stores the generated report body.
func (fs *FileStore) WriteReport(ref, content string) error {
	id, err := fs.Resolve(ref)
	if err != nil {
		return err
	}
	return fs.ds.WriteFileAtomic(id, reportFile, []byte(content))
}

// ReadReport returns the generated report body, or "" when absent.
func (fs *FileStore) ReadReport(ref string) (string, error) {
	return fs.readSideFile(ref, reportFile)
}

// ReadExitCode reads the exit code recorded by a background launch.
// ok is false when no exit code was recorded.
func (fs *FileStore) ReadExitCode(ref string) (code int, ok bool, err error) {
	id, err := fs.Resolve(ref)
	if err != nil {
		return 0, false, err
	}
	data, err := fs.ds.ReadFileContent(id, exitCodeFile)
	if err != nil || data == nil {
		return 0, false, err
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return 0, false, nil // treat garbage as unrecorded
	}
	return code, true, nil
}

func (fs *FileStore) readSideFile(ref, name string) (string, error) {
	id, err := fs.Resolve(ref)
	if err != nil {
		return "", err
	}
	data, err := fs.ds.ReadFileContent(id, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RecentIDs returns up to limit task ids ordered by directory mtime,
// newest first. Used by the monitor to bound reconciliation scans.
func (fs *FileStore) RecentIDs(limit int) ([]string, error) {
	return fs.ds.ListDirsByModTime(limit)
}
