// Package reindex implements the reindex-request mailbox: a single
// JSON file listing folders an external process (an operator, a CLI
// invocation, a menu-bar app) wants rescanned. The daemon polls and
// clears it; a request that arrives between polls is simply picked up
// on the next one, and concurrent writers racing on the same file are
// an accepted, documented limitation rather than something this
// package serializes against beyond the flock already guarding each
// individual read or write.
package reindex

import (
	"fmt"

	"github.com/foldsync/searchd/internal/atomicfile"
	"github.com/foldsync/searchd/internal/config"
)

// DefaultPath is where the mailbox file lives when the daemon doesn't
// override it.
const DefaultPath = "~/.cache/searchd/reindex-requests.json"

// Mailbox reads and writes the reindex-request file at a fixed,
// resolved path.
type Mailbox struct {
	path string
}

// Open resolves path (DefaultPath if empty) to an absolute location.
func Open(path string) (*Mailbox, error) {
	if path == "" {
		path = DefaultPath
	}
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve mailbox path: %w", err)
	}
	return &Mailbox{path: resolved}, nil
}

// Request appends folder to the pending request list, deduplicating
// against whatever is already queued.
func (m *Mailbox) Request(folder string) error {
	var existing []string
	if _, err := atomicfile.ReadJSONWithLock(m.path, &existing); err != nil {
		return err
	}
	for _, f := range existing {
		if f == folder {
			return nil
		}
	}
	existing = append(existing, folder)
	return atomicfile.WriteJSON(m.path, existing)
}

// PopAll reads every pending request under the mailbox lock, then
// deletes the mailbox file after the lock is released. A request
// written between that read and the delete is removed with the file
// and is not returned by this or any later call.
func (m *Mailbox) PopAll() ([]string, error) {
	var folders []string
	found, err := atomicfile.ReadJSONWithLock(m.path, &folders)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if err := atomicfile.Remove(m.path); err != nil {
		return nil, err
	}
	return folders, nil
}
