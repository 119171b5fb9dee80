package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/foldsync/searchd/internal/atomicfile"
	"github.com/foldsync/searchd/internal/hnsw"
)

const (
	graphFile   = "hnsw.bin"
	recordsFile = "records.json"
)

// ChunkRecord is the metadata carried alongside every embedded vector.
type ChunkRecord struct {
	ChunkID    string  `json:"chunk_id"`
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Mtime      float64 `json:"mtime"`
	Folder     string  `json:"folder"`
	Document   string  `json:"document"`
}

// Collection is one folder's worth of indexed chunks: an HNSW graph
// plus the chunk metadata for each graph node, addressed by matching
// slice index to graph node ID.
type Collection struct {
	dir        string
	folderPath string

	mu      sync.RWMutex
	graph   *hnsw.Graph
	records []ChunkRecord
}

func openCollection(dir, folderPath string) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	c := &Collection{dir: dir, folderPath: folderPath}

	graphPath := filepath.Join(dir, graphFile)
	if _, err := os.Stat(graphPath); err == nil {
		g, err := hnsw.Load(graphPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", graphPath, err)
		}
		c.graph = g
	} else {
		c.graph = hnsw.New(hnsw.DefaultM, hnsw.DefaultEfConstruction, hnsw.DefaultEfSearch)
	}

	recordsPath := filepath.Join(dir, recordsFile)
	if _, err := atomicfile.ReadJSON(recordsPath, &c.records); err != nil {
		return nil, err
	}

	return c, nil
}

// Upsert appends one chunk's embedding and metadata as a new graph
// node. Callers that need to replace a file's existing chunks must
// call DeleteByPath first — the graph has no in-place update.
func (c *Collection) Upsert(vector []float32, record ChunkRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.graph.Insert(vector)
	c.records = append(c.records, record)
	return c.persistLocked()
}

// DeleteByPath removes every chunk recorded for filePath, rebuilding
// the graph from the surviving vectors since HNSW has no delete
// primitive. Safe to call on its own for a file that's gone for good,
// or immediately before re-upserting fresh chunks for a changed file.
func (c *Collection) DeleteByPath(filePath string) (removed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graph.Len() == 0 {
		return 0, nil
	}

	keep := make([]bool, len(c.records))
	keepRecords := make([]ChunkRecord, 0, len(c.records))
	for i, rec := range c.records {
		if rec.FilePath == filePath {
			removed++
			continue
		}
		keep[i] = true
		keepRecords = append(keepRecords, rec)
	}
	if removed == 0 {
		return 0, nil
	}

	c.graph = c.graph.Rebuild(keep)
	c.records = keepRecords

	if err := c.persistLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// GetIndexedFiles returns the mtime the daemon believes each currently
// indexed file was last read at, keyed by absolute path. Used by the
// indexer's initial scan, when the on-disk file-index cache has been
// invalidated, as the set of previously indexed files to prune.
func (c *Collection) GetIndexedFiles() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]float64, len(c.records))
	for _, rec := range c.records {
		seen[rec.FilePath] = rec.Mtime
	}
	return seen
}

// Count returns the number of chunks currently stored.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// persistLocked writes the graph and its metadata to disk. Callers
// must already hold c.mu.
func (c *Collection) persistLocked() error {
	graphPath := filepath.Join(c.dir, graphFile)
	if err := c.graph.Save(graphPath); err != nil {
		return fmt.Errorf("save %s: %w", graphPath, err)
	}

	recordsPath := filepath.Join(c.dir, recordsFile)
	return atomicfile.WriteJSON(recordsPath, c.records)
}
