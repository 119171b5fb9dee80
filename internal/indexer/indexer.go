// Package indexer drives a single folder's chunk → embed → upsert
// pipeline: deciding whether a file needs (re)indexing, extracting and
// chunking its text, embedding the chunks, and replacing its entry in
// the vector store. It is the component every other piece of the
// daemon (the initial scan, the fsnotify watcher, a reindex request)
// calls into.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foldsync/searchd/internal/cache"
	"github.com/foldsync/searchd/internal/chunker"
	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/parser"
	"github.com/foldsync/searchd/internal/status"
	"github.com/foldsync/searchd/internal/vectorstore"
)

// Embedder is the subset of *embedder.Embedder the indexer depends
// on, narrowed to an interface so tests can exercise the pipeline
// without loading a real ONNX model.
type Embedder interface {
	Embed(texts []string, modelName string, batchSize int) ([][]float32, error)
}

// Indexer wires the embedder and vector store together for every
// configured folder. It is safe to share across the daemon's watcher
// goroutines: each single-file index or remove runs under mu, so those
// operations (and the embedder calls they make) happen one at a time,
// and every individual store write is also serialized by the
// underlying Collection's own mutex.
type Indexer struct {
	store    *vectorstore.Store
	cache    *cache.Cache
	embedder Embedder
	status   *status.Tracker
	log      *slog.Logger

	mu sync.Mutex
}

// New constructs an Indexer. status may be nil when progress
// reporting isn't needed (e.g. a one-off CLI reindex).
func New(store *vectorstore.Store, c *cache.Cache, e Embedder, st *status.Tracker, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{store: store, cache: c, embedder: e, status: st, log: log}
}

// chunkID derives a stable, deterministic chunk identifier from a
// file's path and a chunk's position within it.
func chunkID(filePath string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", filePath, index)))
	return hex.EncodeToString(sum[:])[:32]
}

// scanProgress carries the indexed/total counters an initial scan
// supplies so status reflects overall progress instead of resetting
// per file; IndexFile called outside a scan (a live fsnotify event)
// passes a zero value and derives its own counters from the cache.
type scanProgress struct {
	indexed, total int
	active         bool
}

// IndexFile (Index)es a single file: if its extension isn't eligible
// for folder, or it no longer exists, this is a no-op. If its mtime
// matches what's cached, indexing is skipped. Otherwise its existing
// chunks are deleted and replaced with freshly embedded ones.
func (idx *Indexer) IndexFile(ctx context.Context, folder config.Folder, settings config.Settings, filePath string) error {
	return idx.indexFile(ctx, folder, settings, filePath, scanProgress{})
}

func (idx *Indexer) indexFile(ctx context.Context, folder config.Folder, settings config.Settings, filePath string, progress scanProgress) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !hasEligibleExtension(filePath, folder.Extensions) {
		return nil
	}

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return nil
	}
	if settings.MaxFileKB > 0 && info.Size() > int64(settings.MaxFileKB)*1024 {
		idx.log.Warn("skip file: exceeds max_file_kb", "path", filePath, "size_kb", info.Size()/1024)
		return nil
	}

	currentMtime := float64(info.ModTime().UnixNano()) / 1e9

	coll, err := idx.store.GetOrCreateCollection(folder.Path)
	if err != nil {
		return fmt.Errorf("collection for %s: %w", folder.Path, err)
	}

	cached := idx.cache.GetFiles(folder.Path)
	if m, ok := cached[filePath]; ok && m == currentMtime {
		idx.log.Debug("skipping unchanged file", "path", filePath)
		return nil
	}

	text, err := parser.ParseFile(filePath)
	if err != nil {
		idx.log.Warn("skip file: parse failed", "path", filePath, "err", err)
		return nil
	}
	if strings.TrimSpace(text) == "" {
		idx.log.Debug("no text extracted", "path", filePath)
		return nil
	}

	chunks := chunker.ChunkText(text, chunker.Options{Size: settings.ChunkSize, Overlap: settings.ChunkOverlap})
	if len(chunks) == 0 {
		return nil
	}

	if idx.status != nil {
		i, total := progress.indexed, progress.total
		if !progress.active {
			i = len(cached)
			total = i + 1
		}
		_ = idx.status.SetIndexing(folder.Path, i, total, filepath.Base(filePath))
	}

	if _, err := coll.DeleteByPath(filePath); err != nil {
		return fmt.Errorf("delete stale chunks for %s: %w", filePath, err)
	}

	vectors, err := idx.embedder.Embed(chunks, settings.Model, settings.BatchSize)
	if err != nil {
		idx.log.Warn("skip file: embed failed", "path", filePath, "err", err)
		return nil
	}

	for i, chunk := range chunks {
		rec := vectorstore.ChunkRecord{
			ChunkID:    chunkID(filePath, i),
			FilePath:   filePath,
			FileName:   filepath.Base(filePath),
			ChunkIndex: i,
			Mtime:      currentMtime,
			Folder:     folder.Path,
			Document:   chunk,
		}
		if err := coll.Upsert(vectors[i], rec); err != nil {
			return fmt.Errorf("upsert chunk %d of %s: %w", i, filePath, err)
		}
	}

	if err := idx.cache.SetFile(folder.Path, filePath, currentMtime, coll.Count()); err != nil {
		return fmt.Errorf("update cache for %s: %w", filePath, err)
	}

	idx.log.Info("indexed file", "path", filePath, "chunks", len(chunks))

	if idx.status != nil && !progress.active {
		fileCount := len(idx.cache.GetFiles(folder.Path))
		_ = idx.status.SetWatching(folder.Path, fileCount, "")
	}
	return nil
}

// RemoveFile deletes every chunk indexed for filePath from folder's
// collection and its cache entry.
func (idx *Indexer) RemoveFile(folder config.Folder, filePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	coll, err := idx.store.GetOrCreateCollection(folder.Path)
	if err != nil {
		return fmt.Errorf("collection for %s: %w", folder.Path, err)
	}
	if _, err := coll.DeleteByPath(filePath); err != nil {
		return fmt.Errorf("delete %s: %w", filePath, err)
	}
	if err := idx.cache.RemoveFile(folder.Path, filePath, coll.Count()); err != nil {
		return fmt.Errorf("update cache after removing %s: %w", filePath, err)
	}
	idx.log.Info("removed file from index", "path", filePath)

	if idx.status != nil {
		fileCount := len(idx.cache.GetFiles(folder.Path))
		_ = idx.status.SetWatching(folder.Path, fileCount, "")
	}
	return nil
}

// InitialScan walks folder.Path, indexing every eligible file and
// pruning collection entries for files no longer present on disk.
func (idx *Indexer) InitialScan(ctx context.Context, folder config.Folder, settings config.Settings) error {
	idx.log.Info("starting initial scan", "folder", folder.Path)

	coll, err := idx.store.GetOrCreateCollection(folder.Path)
	if err != nil {
		return fmt.Errorf("collection for %s: %w", folder.Path, err)
	}

	var eligible []string
	walkErr := filepath.Walk(folder.Path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if hasEligibleExtension(p, folder.Extensions) {
			eligible = append(eligible, p)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", folder.Path, walkErr)
	}

	onDisk := make(map[string]bool, len(eligible))
	for _, p := range eligible {
		onDisk[p] = true
	}

	if idx.status != nil {
		_ = idx.status.SetScanning(folder.Path, len(eligible))
	}

	// Consistency check: the cache's doc_count is a trust token for its
	// {path: mtime} map. If it doesn't match what the store actually
	// holds, something mutated the collection out from under the cache
	// (manual edit, corruption, a cleared store) and the cached mtimes
	// can no longer be trusted to skip re-indexing.
	dbCount := coll.Count()
	cachedCount, haveCachedCount := idx.cache.GetDocCount(folder.Path)
	cacheValid := haveCachedCount && cachedCount == dbCount

	var prevIndexed map[string]float64
	if cacheValid {
		prevIndexed = idx.cache.GetFiles(folder.Path)
	} else {
		if haveCachedCount {
			idx.log.Warn("cache doc_count mismatch, invalidating", "folder", folder.Path, "cached", cachedCount, "actual", dbCount)
		}
		if err := idx.cache.Invalidate(folder.Path); err != nil {
			return fmt.Errorf("invalidate cache for %s: %w", folder.Path, err)
		}
		prevIndexed = coll.GetIndexedFiles()
	}

	for i, filePath := range eligible {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress := scanProgress{indexed: i, total: len(eligible), active: true}
		if err := idx.indexFile(ctx, folder, settings, filePath, progress); err != nil {
			return err
		}
	}

	for prevPath := range prevIndexed {
		if !onDisk[prevPath] {
			if _, err := coll.DeleteByPath(prevPath); err != nil {
				return fmt.Errorf("prune %s: %w", prevPath, err)
			}
			if err := idx.cache.RemoveFile(folder.Path, prevPath, coll.Count()); err != nil {
				return fmt.Errorf("prune cache entry %s: %w", prevPath, err)
			}
			idx.log.Info("pruned deleted file", "path", prevPath)
		}
	}

	if idx.status != nil {
		_ = idx.status.SetWatching(folder.Path, len(eligible), time.Now().UTC().Format(time.RFC3339))
	}

	idx.log.Info("initial scan complete", "folder", folder.Path, "files", len(eligible))
	return nil
}

func hasEligibleExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}
