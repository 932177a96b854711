package syncer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdblog/internal/storage"
)

// DefaultDebounce is how long the watcher waits for the tree to settle
// before re-running Sync.
const DefaultDebounce = 500 * time.Millisecond

// Watch re-runs e.Sync whenever articles or categories under root change,
// until ctx is cancelled. Bursts of events (an editor saving, a git
// checkout) are debounced into a single run.
//
// Only the root and its immediate subdirectories are watched; categories
// created at runtime are added as they appear.
func Watch(ctx context.Context, e *Engine, root string, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addCategoryDirs(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(debounce)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-syncCh:
			syncTimer = nil
			syncCh = nil
			report, err := e.Sync(ctx)
			if err != nil {
				logger.Error("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if failErr := report.Err(); failErr != nil {
				logger.Warn("watcher: sync finished with failures", slog.Int("failed", len(report.Failures)))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(w, root, ev, logger) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			scheduleSync()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant reports whether ev can change the article inventory. New category
// directories are added to the watch list as a side effect.
func relevant(w *fsnotify.Watcher, root string, ev fsnotify.Event, logger *slog.Logger) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if filepath.Dir(ev.Name) == filepath.Clean(root) {
		// Category created, removed or renamed.
		if ev.Op&fsnotify.Create != 0 {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.Add(ev.Name); err != nil {
					logger.Warn("watcher: add category failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
				}
				return true
			}
		}
		return ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0
	}
	return filepath.Ext(name) == storage.Ext
}

// addCategoryDirs watches root and each of its immediate subdirectories.
func addCategoryDirs(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(root, e.Name())
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if err := w.Add(p); err != nil {
				return err
			}
		}
	}
	return nil
}
