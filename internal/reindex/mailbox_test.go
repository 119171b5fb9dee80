package reindex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRequestThenPopAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reindex-requests.json")

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Request("/a"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := m.Request("/b"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	// Duplicate request should not produce a second entry.
	if err := m.Request("/a"); err != nil {
		t.Fatalf("Request dup: %v", err)
	}

	folders, err := m.PopAll()
	if err != nil {
		t.Fatalf("PopAll: %v", err)
	}
	if len(folders) != 2 {
		t.Fatalf("expected 2 folders, got %v", folders)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected mailbox file removed after PopAll, stat err = %v", err)
	}
}

func TestPopAllEmptyMailbox(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "reindex-requests.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	folders, err := m.PopAll()
	if err != nil {
		t.Fatalf("PopAll: %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("expected no folders, got %v", folders)
	}
}
