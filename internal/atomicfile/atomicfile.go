// Package atomicfile provides the write-temp-then-rename persistence
// pattern shared by the cache, status, and reindex mailbox packages,
// guarded by a cross-process flock so a concurrent second daemon or
// CLI invocation can't interleave writes.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteJSON marshals v as indented JSON and writes it to path by first
// writing to path+".tmp" and renaming over the destination, so readers
// never observe a partially written file. The write is held under an
// exclusive flock on path+".lock" for the duration of the operation.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSON unmarshals the JSON file at path into v. It returns false,
// nil both when the file does not exist yet and when its contents
// can't be parsed — every caller (the cache, the status tracker, the
// reindex mailbox) treats a missing or corrupt file identically as an
// empty starting state rather than a fatal error.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

// ReadJSONWithLock is like ReadJSON but takes the same exclusive flock
// WriteJSON uses, so the read never interleaves with a write. The lock
// is released when the read returns; it does not cover whatever the
// caller does next (such as the reindex mailbox's delete).
func ReadJSONWithLock(path string, v any) (found bool, err error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return false, fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()
	return ReadJSON(path, v)
}

// Remove deletes path, ignoring a not-exist error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
