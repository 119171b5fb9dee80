// Package daemon wires together configuration, the embedder, the
// vector store, the file-index cache, status reporting, and the
// reindex mailbox into the long-running process: an initial scan of
// every configured folder followed by an fsnotify watch of each,
// alongside a periodic poll for reindex requests, until the context
// is cancelled.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foldsync/searchd/internal/cache"
	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/embedder"
	"github.com/foldsync/searchd/internal/indexer"
	"github.com/foldsync/searchd/internal/reindex"
	"github.com/foldsync/searchd/internal/status"
	"github.com/foldsync/searchd/internal/vectorstore"
)

// heartbeatInterval is how often status.json is rewritten regardless
// of whether anything changed, so a reader can tell the daemon is
// still alive.
const heartbeatInterval = 5 * time.Second

// reindexPollInterval is how often the reindex mailbox is checked for
// operator-requested rescans.
const reindexPollInterval = 5 * time.Second

// defaultStoreDir is where vector store collections persist when
// Options.StoreDir is left empty.
const defaultStoreDir = "~/.cache/searchd/store"

// Daemon owns every long-lived component and the per-folder watchers
// started from Run.
type Daemon struct {
	cfg      *config.Config
	store    *vectorstore.Store
	cache    *cache.Cache
	status   *status.Tracker
	mailbox  *reindex.Mailbox
	embedder *embedder.Embedder
	indexer  *indexer.Indexer
	log      *slog.Logger

	scanningMu sync.Mutex
	scanning   map[string]bool
}

// Options bundles the resolved filesystem locations the daemon's
// components persist to, so callers (cmd/searchd) can override any of
// them without the daemon needing to know about config file parsing.
type Options struct {
	StoreDir    string
	CachePath   string
	StatusPath  string
	MailboxPath string
	ModelsDir   string
	OrtLibPath  string
	NumThreads  int
}

// New constructs a Daemon from cfg and opts, opening every on-disk
// component but not yet scanning or watching anything.
func New(cfg *config.Config, opts Options, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}

	storeDir := opts.StoreDir
	if storeDir == "" {
		storeDir = defaultStoreDir
	}
	resolvedStoreDir, err := config.ExpandPath(storeDir)
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}
	store, err := vectorstore.Open(resolvedStoreDir)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	c, err := cache.Open(opts.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	st, err := status.New(opts.StatusPath)
	if err != nil {
		return nil, fmt.Errorf("open status tracker: %w", err)
	}
	mb, err := reindex.Open(opts.MailboxPath)
	if err != nil {
		return nil, fmt.Errorf("open reindex mailbox: %w", err)
	}
	emb, err := embedder.New(opts.ModelsDir, opts.OrtLibPath, opts.NumThreads)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	idx := indexer.New(store, c, emb, st, log)

	return &Daemon{
		cfg:      cfg,
		store:    store,
		cache:    c,
		status:   st,
		mailbox:  mb,
		embedder: emb,
		indexer:  idx,
		log:      log,
		scanning: make(map[string]bool),
	}, nil
}

// Close stops the status heartbeat and releases the embedder. Other
// components have no resources to release beyond the files they've
// already flushed.
func (d *Daemon) Close() {
	d.status.StopHeartbeat()
	d.embedder.Close()
}

// Run performs the initial scan of every configured folder, starts a
// watcher goroutine per folder, starts the status heartbeat and the
// reindex-mailbox poller, and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.StartHeartbeat(heartbeatInterval)

	for _, folder := range d.cfg.Folders {
		if err := d.indexer.InitialScan(ctx, folder, d.cfg.Settings); err != nil {
			d.log.Error("initial scan failed", "folder", folder.Path, "err", err)
		}
	}

	var wg sync.WaitGroup
	for _, folder := range d.cfg.Folders {
		folder := folder
		fw, err := newFolderWatcher(folder, d.cfg.Settings, d.indexer, d.log)
		if err != nil {
			d.log.Error("failed to start watcher", "folder", folder.Path, "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fw.run(ctx); err != nil {
				d.log.Error("watcher stopped with error", "folder", folder.Path, "err", err)
			}
		}()
		d.log.Info("watching", "folder", folder.Path)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.pollReindexRequests(ctx, &wg)
	}()

	d.log.Info("daemon running")
	<-ctx.Done()
	wg.Wait()
	d.log.Info("daemon stopped")
	return nil
}

// pollReindexRequests checks the mailbox every reindexPollInterval and
// launches a background InitialScan for each folder requested, so a
// long rescan never blocks the poller from draining the next tick.
// Unknown folder paths (no matching configured folder) are a no-op.
func (d *Daemon) pollReindexRequests(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(reindexPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			folders, err := d.mailbox.PopAll()
			if err != nil {
				d.log.Warn("reindex mailbox read failed", "err", err)
				continue
			}
			for _, path := range folders {
				d.handleReindexRequest(ctx, path, wg)
			}
		}
	}
}

// handleReindexRequest invalidates the cache for a matching configured
// folder and spawns its rescan on a background worker, skipping the
// request if a scan for that folder is already in flight so overlapping
// rebuilds of the same collection never happen concurrently.
func (d *Daemon) handleReindexRequest(ctx context.Context, path string, wg *sync.WaitGroup) {
	for _, folder := range d.cfg.Folders {
		if folder.Path != path {
			continue
		}

		d.scanningMu.Lock()
		if d.scanning[folder.Path] {
			d.scanningMu.Unlock()
			d.log.Info("reindex request skipped: scan already in progress", "folder", folder.Path)
			return
		}
		d.scanning[folder.Path] = true
		d.scanningMu.Unlock()

		if err := d.cache.Invalidate(folder.Path); err != nil {
			d.log.Warn("cache invalidate failed", "folder", folder.Path, "err", err)
		}

		wg.Add(1)
		go func(folder config.Folder) {
			defer wg.Done()
			defer func() {
				d.scanningMu.Lock()
				delete(d.scanning, folder.Path)
				d.scanningMu.Unlock()
			}()
			if err := d.indexer.InitialScan(ctx, folder, d.cfg.Settings); err != nil {
				d.log.Error("reindex scan failed", "folder", folder.Path, "err", err)
			}
		}(folder)
		return
	}
	d.log.Warn("reindex requested for unconfigured folder", "path", path)
}
