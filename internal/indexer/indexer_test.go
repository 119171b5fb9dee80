package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/foldsync/searchd/internal/cache"
	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/vectorstore"
)

// fakeEmbedder returns one fixed-length deterministic vector per text,
// varying slightly by content so chunks aren't indistinguishable.
type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(texts []string, modelName string, batchSize int) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7) / 10, 0.5, 0.5}
	}
	return out, nil
}

func newTestIndexer(t *testing.T) (*Indexer, config.Folder, config.Settings) {
	t.Helper()
	storeDir := t.TempDir()
	store, err := vectorstore.Open(storeDir)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	idx := New(store, c, &fakeEmbedder{}, nil, nil)

	folderDir := t.TempDir()
	folder := config.Folder{Path: folderDir, Extensions: []string{".txt"}}
	settings := config.Settings{Model: "test-model", ChunkSize: 50, ChunkOverlap: 0, BatchSize: 8}
	return idx, folder, settings
}

func TestIndexFileThenUnchangedSkip(t *testing.T) {
	idx, folder, settings := newTestIndexer(t)
	filePath := filepath.Join(folder.Path, "doc.txt")
	if err := os.WriteFile(filePath, []byte("hello world, this is a test document with some words"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := idx.IndexFile(ctx, folder, settings, filePath); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	coll, err := idx.store.GetOrCreateCollection(folder.Path)
	if err != nil {
		t.Fatal(err)
	}
	if coll.Count() == 0 {
		t.Fatal("expected chunks to be indexed")
	}
	firstCount := coll.Count()

	// Re-index without touching the file: should be a no-op (mtime cache hit).
	if err := idx.IndexFile(ctx, folder, settings, filePath); err != nil {
		t.Fatalf("second IndexFile: %v", err)
	}
	if coll.Count() != firstCount {
		t.Errorf("expected unchanged count on skip, got %d want %d", coll.Count(), firstCount)
	}
}

func TestIndexFileIneligibleExtensionSkipped(t *testing.T) {
	idx, folder, settings := newTestIndexer(t)
	filePath := filepath.Join(folder.Path, "doc.bin")
	if err := os.WriteFile(filePath, []byte("binary content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(context.Background(), folder, settings, filePath); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	coll, _ := idx.store.GetOrCreateCollection(folder.Path)
	if coll.Count() != 0 {
		t.Errorf("expected no chunks for ineligible extension, got %d", coll.Count())
	}
}

func TestRemoveFile(t *testing.T) {
	idx, folder, settings := newTestIndexer(t)
	filePath := filepath.Join(folder.Path, "doc.txt")
	if err := os.WriteFile(filePath, []byte("some content to chunk and embed for removal test"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(context.Background(), folder, settings, filePath); err != nil {
		t.Fatal(err)
	}

	if err := idx.RemoveFile(folder, filePath); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	coll, _ := idx.store.GetOrCreateCollection(folder.Path)
	if coll.Count() != 0 {
		t.Errorf("expected 0 chunks after removal, got %d", coll.Count())
	}
}

func TestInitialScanPrunesDeletedFiles(t *testing.T) {
	idx, folder, settings := newTestIndexer(t)
	keep := filepath.Join(folder.Path, "keep.txt")
	gone := filepath.Join(folder.Path, "gone.txt")
	if err := os.WriteFile(keep, []byte("keep this document around please"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gone, []byte("this one will be deleted before rescanning"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := idx.InitialScan(ctx, folder, settings); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}
	coll, _ := idx.store.GetOrCreateCollection(folder.Path)
	if coll.Count() == 0 {
		t.Fatal("expected chunks after first scan")
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	if err := idx.InitialScan(ctx, folder, settings); err != nil {
		t.Fatalf("second InitialScan: %v", err)
	}

	files := coll.GetIndexedFiles()
	if _, ok := files[gone]; ok {
		t.Error("expected gone.txt to be pruned from the index")
	}
	if _, ok := files[keep]; !ok {
		t.Error("expected keep.txt to remain indexed")
	}
}

func TestInitialScanDetectsTamperingAndReindexes(t *testing.T) {
	idx, folder, settings := newTestIndexer(t)
	filePath := filepath.Join(folder.Path, "doc.txt")
	if err := os.WriteFile(filePath, []byte("content that will be embedded once then tampered with"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := idx.InitialScan(ctx, folder, settings); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	coll, err := idx.store.GetOrCreateCollection(folder.Path)
	if err != nil {
		t.Fatal(err)
	}
	if coll.Count() == 0 {
		t.Fatal("expected chunks after first scan")
	}
	docCount, ok := idx.cache.GetDocCount(folder.Path)
	if !ok || docCount != coll.Count() {
		t.Fatalf("expected cache doc_count to match store count, got %d ok=%v want %d", docCount, ok, coll.Count())
	}

	// Simulate external tampering: the store is cleared without the
	// cache being told, so cached mtimes can no longer be trusted.
	for _, rec := range coll.GetIndexedFiles() {
		_ = rec
	}
	if _, err := coll.DeleteByPath(filePath); err != nil {
		t.Fatal(err)
	}
	if coll.Count() != 0 {
		t.Fatalf("expected tampered store to be empty, got %d", coll.Count())
	}

	embedderCallsBefore := idx.embedder.(*fakeEmbedder).calls
	if err := idx.InitialScan(ctx, folder, settings); err != nil {
		t.Fatalf("second InitialScan: %v", err)
	}
	if idx.embedder.(*fakeEmbedder).calls == embedderCallsBefore {
		t.Error("expected cache invalidation to trigger re-embedding after store tampering")
	}
	if coll.Count() == 0 {
		t.Error("expected file to be re-indexed after tampering was detected")
	}
}
