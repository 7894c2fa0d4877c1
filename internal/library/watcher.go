package library

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write to
// the source database before syncing.
const DefaultDebounce = 2 * time.Second

// SyncCallback is called after every watcher-driven sync attempt.
type SyncCallback func(rep Report, err error)

// Watch starts an fsnotify watcher on the directory holding the source
// database and runs Sync(false) once writes to it have settled for
// debounce. It returns when ctx is cancelled.
func Watch(ctx context.Context, lib *Library, debounce time.Duration, logger *slog.Logger, cb SyncCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	source, err := filepath.Abs(lib.cfg.Source)
	if err != nil {
		return err
	}
	dir := filepath.Dir(source)
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("source", source))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			rep, err := lib.Sync(false)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			} else if rep.CacheRebuilt {
				logger.Debug("watcher: synced", slog.Int("items", rep.Items))
			}
			if cb != nil {
				cb(rep, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !touchesSource(ev.Name, source) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: source changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// touchesSource reports whether name is the source database or one of its
// journal files.
func touchesSource(name, source string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if abs == source {
		return true
	}
	suffix, ok := strings.CutPrefix(abs, source)
	if !ok {
		return false
	}
	switch suffix {
	case "-journal", "-wal":
		return true
	}
	return false
}
