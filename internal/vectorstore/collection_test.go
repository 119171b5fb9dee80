package vectorstore

import (
	"path/filepath"
	"testing"
)

func unitVec(seed float32) []float32 {
	return []float32{seed, 1 - seed, 0}
}

func TestCollectionNameIsDeterministicAndPrefixed(t *testing.T) {
	a := CollectionName("/abs/folder")
	b := CollectionName("/abs/folder")
	if a != b {
		t.Fatalf("CollectionName not deterministic: %q != %q", a, b)
	}
	if len(a) != len("search-")+16 {
		t.Fatalf("unexpected collection name length: %q", a)
	}
}

func TestUpsertAndGetIndexedFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, err := s.GetOrCreateCollection("/watched/folder")
	if err != nil {
		t.Fatalf("GetOrCreateCollection: %v", err)
	}

	rec := ChunkRecord{ChunkID: "a", FilePath: "/watched/folder/a.txt", FileName: "a.txt", ChunkIndex: 0, Mtime: 100, Document: "hello"}
	if err := c.Upsert(unitVec(0.1), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Count = %d, want 1", c.Count())
	}

	files := c.GetIndexedFiles()
	if files["/watched/folder/a.txt"] != 100 {
		t.Errorf("unexpected indexed files map: %+v", files)
	}
}

func TestDeleteByPathRebuildsGraph(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, err := s.GetOrCreateCollection("/watched/folder")
	if err != nil {
		t.Fatalf("GetOrCreateCollection: %v", err)
	}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(c.Upsert(unitVec(0.1), ChunkRecord{FilePath: "/a.txt", ChunkIndex: 0}))
	must(c.Upsert(unitVec(0.2), ChunkRecord{FilePath: "/a.txt", ChunkIndex: 1}))
	must(c.Upsert(unitVec(0.3), ChunkRecord{FilePath: "/b.txt", ChunkIndex: 0}))

	removed, err := c.DeleteByPath("/a.txt")
	if err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if c.Count() != 1 {
		t.Fatalf("Count after delete = %d, want 1", c.Count())
	}
	files := c.GetIndexedFiles()
	if _, ok := files["/a.txt"]; ok {
		t.Error("expected /a.txt to be gone")
	}
	if _, ok := files["/b.txt"]; !ok {
		t.Error("expected /b.txt to survive")
	}
}

func TestCollectionPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c1, err := s1.GetOrCreateCollection("/watched/folder")
	if err != nil {
		t.Fatalf("GetOrCreateCollection: %v", err)
	}
	if err := c1.Upsert(unitVec(0.5), ChunkRecord{FilePath: "/a.txt", Mtime: 42}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	c2, err := s2.GetOrCreateCollection("/watched/folder")
	if err != nil {
		t.Fatalf("reopen GetOrCreateCollection: %v", err)
	}
	if c2.Count() != 1 {
		t.Fatalf("Count after reopen = %d, want 1", c2.Count())
	}
	files := c2.GetIndexedFiles()
	if files["/a.txt"] != 42 {
		t.Errorf("mtime not preserved across reopen: %+v", files)
	}

	name := CollectionName("/watched/folder")
	if _, err := filepath.Abs(filepath.Join(dir, name, graphFile)); err != nil {
		t.Fatal(err)
	}
}
