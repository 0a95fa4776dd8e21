package slot

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const poolDebounce = 200 * time.Millisecond

// PoolWatcher re-syncs the pool whenever the pool file changes.
type PoolWatcher struct {
	repo Repository
	path string
}

func NewPoolWatcher(repo Repository, path string) *PoolWatcher {
	return &PoolWatcher{repo: repo, path: path}
}

// Start watches the pool file's directory, since editors often replace the
// file rather than write it in place. It blocks until ctx is cancelled.
func (w *PoolWatcher) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.ErrorContext(ctx, "pool watcher: failed to create watcher", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		slog.ErrorContext(ctx, "pool watcher: failed to watch", "dir", dir, "error", err)
		return
	}

	target := filepath.Clean(w.path)
	var debounce <-chan time.Time

	slog.Info("pool watcher started", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			slog.Info("pool watcher stopped")
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(poolDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "pool watcher error", "error", err)
		case <-debounce:
			debounce = nil
			if err := SyncPoolFile(ctx, w.repo, w.path); err != nil {
				slog.ErrorContext(ctx, "pool watcher: failed to sync pool", "path", w.path, "error", err)
			}
		}
	}
}
