package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"contextualize/internal/tasks"
)

// WatcherStatus is the liveness state of a monitor watch process.
type WatcherStatus string

const (
	WatcherAlive WatcherStatus = "alive"
	WatcherStale WatcherStatus = "stale"
	WatcherDead  WatcherStatus = "dead"
)

// heartbeatMaxAge is how old a heartbeat may be before the watcher is
// considered stale. Watch passes refresh it every interval, so three
// missed intervals at the default pace trip this.
const heartbeatMaxAge = 2 * time.Minute

// Heartbeat is the record a watch process leaves in the logs directory
// so other invocations can tell a watcher is already running.
type Heartbeat struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
	ScanLimit int       `json:"scan_limit"`
}

// heartbeatWriter refreshes the heartbeat file on every watch pass.
type heartbeatWriter struct {
	path      string
	scanLimit int

	mu      sync.Mutex
	started time.Time
}

// HeartbeatPath returns the heartbeat file location for a task store.
func HeartbeatPath(store *tasks.FileStore) string {
	return filepath.Join(store.BaseDir(), "monitor.json")
}

func newHeartbeatWriter(path string, scanLimit int) *heartbeatWriter {
	return &heartbeatWriter{path: path, scanLimit: scanLimit, started: time.Now()}
}

func (w *heartbeatWriter) beat() {
	w.mu.Lock()
	defer w.mu.Unlock()

	hb := Heartbeat{
		PID:       os.Getpid(),
		StartedAt: w.started,
		Timestamp: time.Now(),
		ScanLimit: w.scanLimit,
	}
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return
	}

	os.MkdirAll(filepath.Dir(w.path), 0o755)
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	os.Rename(tmp, w.path)
}

func (w *heartbeatWriter) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	os.Remove(w.path)
}

// CheckWatcher reports whether a watch process is alive based on its
// heartbeat file and a probe of the recorded pid.
func CheckWatcher(path string) (WatcherStatus, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return WatcherDead, nil, nil
		}
		return WatcherDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return WatcherDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if running, err := ProcessRunning(hb.PID); err == nil && !running {
		return WatcherDead, &hb, nil
	}
	if time.Since(hb.Timestamp) > heartbeatMaxAge {
		return WatcherStale, &hb, nil
	}
	return WatcherAlive, &hb, nil
}
