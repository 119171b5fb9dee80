// Package cache maintains the on-disk skip-cache the indexer consults
// before re-embedding a file: a per-folder map of file path to the
// mtime it was last indexed at, plus the vector store's chunk count
// at that write, so a full rescan can tell at a glance whether a
// folder's collection already matches the filesystem.
package cache

import (
	"fmt"
	"sync"

	"github.com/foldsync/searchd/internal/atomicfile"
	"github.com/foldsync/searchd/internal/config"
)

// DefaultPath is where the cache is persisted when the daemon doesn't
// override it.
const DefaultPath = "~/.cache/searchd/file-index.json"

// folderEntry is one folder's cached state.
type folderEntry struct {
	DocCount int                `json:"doc_count"`
	Files    map[string]float64 `json:"files"`
}

// Cache is a process-wide, file-backed index cache keyed by absolute
// folder path. All mutating methods flush to disk immediately.
type Cache struct {
	path string

	mu   sync.Mutex
	data map[string]*folderEntry
}

// Open loads the cache from path (DefaultPath if empty), treating a
// missing file as an empty cache.
func Open(path string) (*Cache, error) {
	if path == "" {
		path = DefaultPath
	}
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	c := &Cache{path: resolved, data: make(map[string]*folderEntry)}
	if _, err := atomicfile.ReadJSON(resolved, &c.data); err != nil {
		return nil, err
	}
	if c.data == nil {
		c.data = make(map[string]*folderEntry)
	}
	return c, nil
}

// GetFiles returns a copy of the cached {path: mtime} map for folder.
func (c *Cache) GetFiles(folder string) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[folder]
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(entry.Files))
	for k, v := range entry.Files {
		out[k] = v
	}
	return out
}

// GetDocCount returns the collection size recorded at the last write
// for folder, and whether anything was recorded at all.
func (c *Cache) GetDocCount(folder string) (count int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[folder]
	if !ok {
		return 0, false
	}
	return entry.DocCount, true
}

// SetFile records that filePath (within folder) was indexed at mtime,
// and that the collection now holds docCount chunks.
func (c *Cache) SetFile(folder, filePath string, mtime float64, docCount int) error {
	c.mu.Lock()
	entry, ok := c.data[folder]
	if !ok {
		entry = &folderEntry{Files: make(map[string]float64)}
		c.data[folder] = entry
	}
	entry.Files[filePath] = mtime
	entry.DocCount = docCount
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	return atomicfile.WriteJSON(c.path, snapshot)
}

// RemoveFile drops filePath from folder's cache.
func (c *Cache) RemoveFile(folder, filePath string, docCount int) error {
	c.mu.Lock()
	if entry, ok := c.data[folder]; ok {
		delete(entry.Files, filePath)
		entry.DocCount = docCount
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	return atomicfile.WriteJSON(c.path, snapshot)
}

// Invalidate drops all cached state for folder, forcing a full re-index.
func (c *Cache) Invalidate(folder string) error {
	c.mu.Lock()
	delete(c.data, folder)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	return atomicfile.WriteJSON(c.path, snapshot)
}

// snapshotLocked returns a deep copy of the map to serialize, so it can
// be written after c.mu is released. Callers must hold c.mu.
func (c *Cache) snapshotLocked() map[string]*folderEntry {
	out := make(map[string]*folderEntry, len(c.data))
	for folder, entry := range c.data {
		files := make(map[string]float64, len(entry.Files))
		for k, v := range entry.Files {
			files[k] = v
		}
		out[folder] = &folderEntry{DocCount: entry.DocCount, Files: files}
	}
	return out
}
