// Package configwatch calls back when watched files are written.
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

// Watcher watches files through their parent directories, so that editors that
// replace a file by renaming over it are noticed, and invokes callbacks after a
// quiet period.
type Watcher struct {
	debounce time.Duration
	logger   *slog.Logger
	ready    chan struct{}

	mu      sync.Mutex
	entries map[string]*watchEntry
}

type watchEntry struct {
	path  string
	cb    func(path string)
	timer *time.Timer
}

// New creates a Watcher that waits debounce after the last event before calling back.
func New(debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		debounce: debounce,
		logger:   logger,
		ready:    make(chan struct{}),
		entries:  make(map[string]*watchEntry),
	}
}

// Watch adds a file to be watched. The file does not need to exist yet. Must be
// called before Run.
func (w *Watcher) Watch(path string, cb func(path string)) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[path] = &watchEntry{path: path, cb: cb}
}

// Ready is closed once Run has registered every watch.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until the context is cancelled. It blocks, so call it in a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	w.mu.Lock()
	dirs := make(map[string]bool)
	for path := range w.entries {
		dirs[filepath.Dir(path)] = true
	}
	w.mu.Unlock()
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	close(w.ready)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[filepath.Clean(ev.Name)]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(w.debounce, func() { w.fire(e) })
}

func (w *Watcher) fire(e *watchEntry) {
	// Skip if the file is gone (may be mid-save).
	if _, err := os.Stat(e.path); err != nil {
		return
	}
	w.logger.Info("config file changed", "path", e.path)
	e.cb(e.path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
