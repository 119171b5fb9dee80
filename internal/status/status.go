// Package status tracks and persists the daemon's per-folder
// scanning/indexing/watching state so an external tool (a menu-bar
// app, a CLI, an operator script) can read status.json and show
// progress without talking to the daemon directly.
package status

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/foldsync/searchd/internal/atomicfile"
	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/vectorstore"
)

func defaultPID() int { return os.Getpid() }

// DefaultPath is where the status snapshot is written when the daemon
// doesn't override it.
const DefaultPath = "~/.cache/searchd/status.json"

// State is one of the three states a folder cycles through.
type State string

const (
	StateScanning State = "scanning"
	StateIndexing State = "indexing"
	StateWatching State = "watching"
)

// FolderStatus is the point-in-time state of one watched folder.
type FolderStatus struct {
	State         State  `json:"state"`
	TotalFiles    int    `json:"total_files"`
	IndexedFiles  int    `json:"indexed_files"`
	CurrentFile   string `json:"current_file,omitempty"`
	LastFullIndex string `json:"last_full_index,omitempty"`
	Collection    string `json:"collection"`
}

// snapshot is the full on-disk payload.
type snapshot struct {
	DaemonPID     int                     `json:"daemon_pid"`
	DaemonStarted string                  `json:"daemon_started"`
	UpdatedAt     string                  `json:"updated_at"`
	Folders       map[string]FolderStatus `json:"folders"`
}

// Tracker owns the in-memory folder states and flushes status.json on
// every transition and on each heartbeat tick.
type Tracker struct {
	path    string
	pid     int
	started string

	mu      sync.Mutex
	folders map[string]FolderStatus

	stopHeartbeat chan struct{}
}

// pidFunc and nowFunc are overridden in tests to avoid depending on
// the real clock or process id.
var (
	pidFunc = defaultPID
	nowFunc = func() time.Time { return time.Now().UTC() }
)

// New creates a Tracker that persists to path (DefaultPath if empty).
func New(path string) (*Tracker, error) {
	if path == "" {
		path = DefaultPath
	}
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve status path: %w", err)
	}
	return &Tracker{
		path:    resolved,
		pid:     pidFunc(),
		started: nowFunc().Format(time.RFC3339),
		folders: make(map[string]FolderStatus),
	}, nil
}

// SetScanning marks folder as starting a fresh scan of total files.
func (t *Tracker) SetScanning(folder string, total int) error {
	t.mu.Lock()
	existing, had := t.folders[folder]
	fs := FolderStatus{
		State:      StateScanning,
		TotalFiles: total,
		Collection: vectorstore.CollectionName(folder),
	}
	if had {
		fs.LastFullIndex = existing.LastFullIndex
	}
	t.folders[folder] = fs
	t.mu.Unlock()
	return t.flush()
}

// SetIndexing updates progress while folder's scan is actively
// embedding files. It is a no-op if folder has no prior status: a
// folder only starts reporting indexing progress after SetScanning.
func (t *Tracker) SetIndexing(folder string, indexed, total int, currentFile string) error {
	t.mu.Lock()
	fs, ok := t.folders[folder]
	if ok {
		fs.State = StateIndexing
		fs.IndexedFiles = indexed
		fs.TotalFiles = total
		fs.CurrentFile = currentFile
		t.folders[folder] = fs
	}
	t.mu.Unlock()
	return t.flush()
}

// SetWatching marks folder as caught up and idling on fsnotify events.
// lastFullIndex is only applied when non-empty, preserving whatever
// value was recorded at the previous full scan otherwise.
func (t *Tracker) SetWatching(folder string, total int, lastFullIndex string) error {
	t.mu.Lock()
	existing, had := t.folders[folder]
	lfi := lastFullIndex
	if lfi == "" && had {
		lfi = existing.LastFullIndex
	}
	t.folders[folder] = FolderStatus{
		State:         StateWatching,
		TotalFiles:    total,
		IndexedFiles:  total,
		LastFullIndex: lfi,
		Collection:    vectorstore.CollectionName(folder),
	}
	t.mu.Unlock()
	return t.flush()
}

// StartHeartbeat rewrites status.json every interval, independent of
// any state transition, so a reader can tell the daemon is alive even
// when nothing is changing.
func (t *Tracker) StartHeartbeat(interval time.Duration) {
	if t.stopHeartbeat != nil {
		return
	}
	t.stopHeartbeat = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = t.flush()
			case <-t.stopHeartbeat:
				return
			}
		}
	}()
}

// StopHeartbeat halts the background ticker started by StartHeartbeat.
func (t *Tracker) StopHeartbeat() {
	if t.stopHeartbeat == nil {
		return
	}
	close(t.stopHeartbeat)
	t.stopHeartbeat = nil
}

func (t *Tracker) flush() error {
	t.mu.Lock()
	folders := make(map[string]FolderStatus, len(t.folders))
	for k, v := range t.folders {
		folders[k] = v
	}
	t.mu.Unlock()

	return atomicfile.WriteJSON(t.path, snapshot{
		DaemonPID:     t.pid,
		DaemonStarted: t.started,
		UpdatedAt:     nowFunc().Format(time.RFC3339),
		Folders:       folders,
	})
}
