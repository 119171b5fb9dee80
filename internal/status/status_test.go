package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSetScanningThenIndexingThenWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")

	tr, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.SetScanning("/folder", 10); err != nil {
		t.Fatalf("SetScanning: %v", err)
	}
	if err := tr.SetIndexing("/folder", 3, 10, "doc.txt"); err != nil {
		t.Fatalf("SetIndexing: %v", err)
	}
	if err := tr.SetWatching("/folder", 10, "2026-07-31T00:00:00Z"); err != nil {
		t.Fatalf("SetWatching: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read status.json: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fs, ok := snap.Folders["/folder"]
	if !ok {
		t.Fatal("expected /folder entry")
	}
	if fs.State != StateWatching {
		t.Errorf("State = %q, want watching", fs.State)
	}
	if fs.IndexedFiles != 10 || fs.TotalFiles != 10 {
		t.Errorf("unexpected counts: %+v", fs)
	}
	if fs.LastFullIndex != "2026-07-31T00:00:00Z" {
		t.Errorf("LastFullIndex = %q", fs.LastFullIndex)
	}
}

func TestSetIndexingNoopWithoutPriorScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")

	tr, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.SetIndexing("/never-scanned", 1, 1, "x.txt"); err != nil {
		t.Fatalf("SetIndexing: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := snap.Folders["/never-scanned"]; ok {
		t.Error("expected no entry for a folder never scanned")
	}
}

func TestSetWatchingPreservesLastFullIndexWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")

	tr, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.SetWatching("/folder", 5, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetWatching("/folder", 6, ""); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var snap snapshot
	json.Unmarshal(data, &snap)
	if snap.Folders["/folder"].LastFullIndex != "2026-01-01T00:00:00Z" {
		t.Errorf("LastFullIndex not preserved: %+v", snap.Folders["/folder"])
	}
}
