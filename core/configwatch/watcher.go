// Package configwatch invokes callbacks when watched files are written.
package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the directories of registered files, so that editors
// replacing a file through rename are seen as well as in-place writes.
// Bursts of events for one file are coalesced into one callback.
type Watcher struct {
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*watchEntry
	closed  bool
}

type watchEntry struct {
	path  string
	cb    func(path string)
	timer *time.Timer
}

// New creates a Watcher that waits debounce after the last event for a
// file before invoking its callback.
func New(debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		debounce: debounce,
		logger:   logger,
		entries:  make(map[string]*watchEntry),
	}
}

// Watch registers a file. The callback is invoked after the file is
// created or written. The file does not need to exist at watch time,
// but its directory must exist when Run starts.
func (w *Watcher) Watch(path string, cb func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := cleanPath(path)
	w.entries[key] = &watchEntry{path: path, cb: cb}
}

// Run watches until the context is cancelled. It blocks, so call it in
// a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	w.mu.Lock()
	dirs := map[string]bool{}
	for key := range w.entries {
		dirs[filepath.Dir(key)] = true
	}
	w.closed = false
	w.mu.Unlock()

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.schedule(cleanPath(ev.Name))
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok || w.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(w.debounce, func() { w.fire(e) })
}

func (w *Watcher) fire(e *watchEntry) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	// Skip if the file is gone again (may be mid-save).
	if _, err := os.Stat(e.path); err != nil {
		return
	}
	w.logger.Info("config file changed", "path", e.path)
	e.cb(e.path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for _, e := range w.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(resolved, filepath.Base(path))
	}
	return path
}
