// Package watch reloads the note store when its blob file changes on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notes/internal/storage"
)

// DefaultDebounce collapses the event burst of one atomic write.
const DefaultDebounce = 200 * time.Millisecond

// Reloader re-reads persisted state and reports whether it changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Watch watches the directory holding path and calls r.Reload once events
// for path have been quiet for debounce. Writes made by the store itself are
// recognised by checksum inside Reload. It returns when ctx is cancelled.
func Watch(ctx context.Context, r Reloader, path string, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	logger.Info("watcher: started", slog.String("path", target))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(debounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reloadCh:
			changed, err := r.Reload(ctx)
			if err != nil {
				logger.Warn("watcher: reload failed", slog.String("path", target), slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Info("watcher: reloaded", slog.String("path", target))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), storage.TempPrefix) {
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: event", slog.String("op", ev.Op.String()))
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
