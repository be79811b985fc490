package store

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func startTestWatcher(t *testing.T, onChange func([]string)) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(50*time.Millisecond, onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.WatchRoots([]string{dir}); err != nil {
		t.Fatalf("WatchRoots: %v", err)
	}
	w.Start()
	t.Cleanup(w.Stop)
	return w, dir
}

func waitWithTimeout(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

func TestWatcher_CallsOnChangeAfterWrite(t *testing.T) {
	var called atomic.Bool
	var gotPaths []string
	done := make(chan struct{})

	_, dir := startTestWatcher(t, func(paths []string) {
		gotPaths = paths
		called.Store(true)
		close(done)
	})

	path := filepath.Join(dir, "rollout-test.jsonl")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitWithTimeout(t, done, 5*time.Second, "timed out waiting for onChange")
	if !called.Load() {
		t.Fatal("onChange was not called")
	}
	if !slices.Contains(gotPaths, path) {
		t.Fatalf("onChange paths = %v, want to contain %s", gotPaths, path)
	}
}

func TestWatcher_MissingRootIsSkippedNotFatal(t *testing.T) {
	w, err := NewWatcher(time.Millisecond, func([]string) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	if err := w.WatchRoots([]string{filepath.Join(t.TempDir(), "does-not-exist")}); err != nil {
		t.Fatalf("WatchRoots should skip a missing root, got error: %v", err)
	}
}

func TestHandleEvent_IgnoresNonWriteCreate(t *testing.T) {
	w := &Watcher{pending: make(map[string]time.Time), now: time.Now}
	w.handleEvent(fsnotify.Event{Name: "file.txt", Op: fsnotify.Chmod})
	w.handleEvent(fsnotify.Event{Name: "file.txt", Op: fsnotify.Remove})
	if len(w.pending) != 0 {
		t.Fatalf("pending = %v, want empty", w.pending)
	}
}

func TestFlush_RespectsDebouncePeriod(t *testing.T) {
	var called atomic.Bool
	w := &Watcher{
		pending:  make(map[string]time.Time),
		debounce: 100 * time.Millisecond,
		now:      time.Now,
		onChange: func([]string) { called.Store(true) },
	}
	w.mu.Lock()
	w.pending["/tmp/recent"] = time.Now()
	w.mu.Unlock()

	w.flush()

	if called.Load() {
		t.Fatal("flush fired before the debounce period elapsed")
	}
}

func TestFlush_FiresAfterDebounceElapses(t *testing.T) {
	var gotPaths []string
	var mu sync.Mutex
	w := &Watcher{
		pending:  make(map[string]time.Time),
		debounce: 10 * time.Millisecond,
		now:      time.Now,
		onChange: func(paths []string) {
			mu.Lock()
			gotPaths = paths
			mu.Unlock()
		},
	}
	w.mu.Lock()
	w.pending["/tmp/old"] = time.Now().Add(-50 * time.Millisecond)
	w.mu.Unlock()

	w.flush()

	mu.Lock()
	defer mu.Unlock()
	if len(gotPaths) != 1 || gotPaths[0] != "/tmp/old" {
		t.Fatalf("gotPaths = %v, want [/tmp/old]", gotPaths)
	}
}

func TestNewWatcher_RejectsNilOnChange(t *testing.T) {
	if _, err := NewWatcher(time.Second, nil); err == nil {
		t.Fatal("NewWatcher(nil) should return an error")
	}
}
