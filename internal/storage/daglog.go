// Package storage persists the task derivation history.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DAGEntry is one lifecycle event in the task derivation log. Each task
// creation and status transition appends exactly one entry; entries are
// never edited or compacted, so the log is a replayable history of the
// task graph.
type DAGEntry struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	ParentID    string    `json:"parent_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DAGLog is an append-only JSONL ledger. The file is only ever opened in
// append mode; concurrent writers may interleave lines but each flushed
// line is a complete record.
type DAGLog struct {
	mu   sync.Mutex
	path string
}

// NewDAGLog creates a DAGLog backed by the given file path.
func NewDAGLog(path string) *DAGLog {
	return &DAGLog{path: path}
}

// Path returns the log file path.
func (l *DAGLog) Path() string {
	return l.path
}

// Append writes one entry as a single JSON line.
func (l *DAGLog) Append(e DAGEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dag entry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create dag log dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dag log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write dag entry: %w", err)
	}
	return nil
}

// Entries reads every entry in append order. Corrupted lines are skipped
// so one bad record can't make the rest of the history unreadable.
func (l *DAGLog) Entries() ([]DAGEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dag log: %w", err)
	}
	defer f.Close()

	var entries []DAGEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e DAGEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip corrupted lines
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dag log: %w", err)
	}

	return entries, nil
}

// Remove deletes the log file. Only used when clearing the whole store.
func (l *DAGLog) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove dag log: %w", err)
	}
	return nil
}
