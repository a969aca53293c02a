package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the catalog file into store whenever it changes, until ctx is
// done. A file that fails to parse leaves the previous snapshot active.
func Watch(ctx context.Context, store *Store, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files atomically, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(reloadDebounce)
				fire = timer.C
			case <-fire:
				fire = nil
				Reload(store, path, logger)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", zap.Error(werr))
			}
		}
	}()
	return nil
}

// Reload parses path and swaps it in, reporting whether the swap happened.
func Reload(store *Store, path string, logger *zap.Logger) bool {
	snap, err := LoadFile(path)
	if err != nil {
		logger.Warn("catalog reload rejected", zap.String("path", path), zap.Error(err))
		return false
	}
	store.Swap(snap)
	logger.Info("catalog reloaded", zap.String("path", path), zap.Int("platforms", len(snap.order)))
	return true
}
