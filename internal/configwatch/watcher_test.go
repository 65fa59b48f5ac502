package configwatch_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jdelaire/turnbot/internal/configwatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, cb func(string)) context.CancelFunc {
	t.Helper()
	w := configwatch.New(20*time.Millisecond, testLogger())
	w.Watch(path, cb)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}
	return cancel
}

func waitCalled(t *testing.T, called *atomic.Int32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for called.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for change callback")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("v: 1\n"), 0644)

	var called atomic.Int32
	var gotPath atomic.Value
	startWatcher(t, path, func(p string) {
		gotPath.Store(p)
		called.Add(1)
	})

	os.WriteFile(path, []byte("v: 2\n"), 0644)
	waitCalled(t, &called)

	if gotPath.Load() != path {
		t.Errorf("callback path = %v, want %s", gotPath.Load(), path)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("v: 0\n"), 0644)

	var called atomic.Int32
	startWatcher(t, path, func(string) { called.Add(1) })

	for i := range 5 {
		os.WriteFile(path, []byte{byte('0' + i)}, 0644)
	}
	waitCalled(t, &called)
	time.Sleep(100 * time.Millisecond)

	if n := called.Load(); n != 1 {
		t.Errorf("callback fired %d times, want 1", n)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("v: 1\n"), 0644)

	var called atomic.Int32
	startWatcher(t, path, func(string) { called.Add(1) })

	os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644)
	time.Sleep(150 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("callback fired %d times for an unrelated file", called.Load())
	}
}

func TestWatcherHandlesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("v: 1\n"), 0644)

	var called atomic.Int32
	startWatcher(t, path, func(string) { called.Add(1) })

	os.Remove(path)

	// Should not panic or fire callback for deletion.
	time.Sleep(150 * time.Millisecond)
	if called.Load() != 0 {
		t.Errorf("callback fired %d times for deleted file", called.Load())
	}
}

func TestWatcherHandlesNonExistentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	var called atomic.Int32
	startWatcher(t, path, func(string) { called.Add(1) })

	// File appears after watch starts.
	os.WriteFile(path, []byte("v: 1\n"), 0644)
	waitCalled(t, &called)
}

func TestWatcherHandlesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("v: 1\n"), 0644)

	var called atomic.Int32
	startWatcher(t, path, func(string) { called.Add(1) })

	tmp := filepath.Join(dir, ".config.yaml.tmp")
	os.WriteFile(tmp, []byte("v: 2\n"), 0644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
	waitCalled(t, &called)
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	w := configwatch.New(20*time.Millisecond, testLogger())
	w.Watch(filepath.Join(t.TempDir(), "config.yaml"), func(string) {})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancel")
	}
}
