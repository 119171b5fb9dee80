package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/indexer"
)

// debounceDelay absorbs the burst of Write events most editors and
// save-to-temp-then-rename workflows produce for a single logical
// save.
const debounceDelay = 500 * time.Millisecond

// folderWatcher watches one configured folder's directory tree and
// feeds relevant events into the Indexer, debouncing rapid writes to
// the same path.
type folderWatcher struct {
	folder   config.Folder
	settings config.Settings
	idx      *indexer.Indexer
	log      *slog.Logger

	fw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newFolderWatcher(folder config.Folder, settings config.Settings, idx *indexer.Indexer, log *slog.Logger) (*folderWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &folderWatcher{
		folder:   folder,
		settings: settings,
		idx:      idx,
		log:      log,
		fw:       fw,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// run adds folder.Path (recursively) to the watch list and processes
// events until ctx is cancelled.
func (w *folderWatcher) run(ctx context.Context) error {
	if err := w.addDirRecursive(w.folder.Path); err != nil {
		return err
	}
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			for _, t := range w.pending {
				t.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "folder", w.folder.Path, "err", err)
		}
	}
}

func (w *folderWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			if err := w.addDirRecursive(path); err != nil {
				w.log.Warn("failed to watch new directory", "path", path, "err", err)
			}
			return
		}
	}

	if !hasEligibleExtension(path, w.folder.Extensions) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// fsnotify reports a move as Rename on the source path with no
		// paired destination event; the Create on the destination path
		// (if it lands inside a watched tree) arrives as a separate
		// event and is handled by the Create/Write branch below.
		w.debounce(path, func() {
			if err := w.idx.RemoveFile(w.folder, path); err != nil {
				w.log.Warn("remove failed", "path", path, "err", err)
			}
		})

	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.debounce(path, func() {
			if err := w.idx.IndexFile(ctx, w.folder, w.settings, path); err != nil {
				w.log.Warn("index failed", "path", path, "err", err)
			}
		})
	}
}

func (w *folderWatcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, fn)
}

func (w *folderWatcher) addDirRecursive(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			if err := w.addDirRecursive(filepath.Join(dir, e.Name())); err != nil {
				w.log.Warn("skip subdirectory", "path", filepath.Join(dir, e.Name()), "err", err)
			}
		}
	}
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
