package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
)

const testDebounce = 60 * time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) count(kind events.Kind, path string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.Kind == kind && e.Path == path {
			n++
		}
	}
	return n
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, root string) (*Watcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	w := New(rec, WithDebounce(testDebounce), WithLogger(logger))
	if err := w.Start(root); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	return w, rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_Created(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, "new.md"), "# New")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileCreated, "new.md") == 1
	}, "expected file:created for new.md")
}

func TestWatcher_BurstCollapses(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "doc.md")
	writeFile(t, p, "v0")
	_, rec := startWatcher(t, root)

	// Editor-style burst: truncate, rewrite, rewrite again well within the window.
	for i := range 5 {
		writeFile(t, p, "v"+string(rune('1'+i)))
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileChanged, "doc.md") >= 1
	}, "expected file:changed for doc.md")
	time.Sleep(3 * testDebounce)
	if n := rec.count(events.FileChanged, "doc.md"); n != 1 {
		t.Errorf("burst produced %d change events, want 1", n)
	}
}

func TestWatcher_SpacedWritesProduceTwoEvents(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "doc.md")
	writeFile(t, p, "v0")
	_, rec := startWatcher(t, root)

	writeFile(t, p, "v1")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileChanged, "doc.md") == 1
	}, "first change not reported")

	writeFile(t, p, "v2")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileChanged, "doc.md") == 2
	}, "second change not reported")
}

func TestWatcher_Deleted(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "del.md")
	writeFile(t, p, "bye")
	_, rec := startWatcher(t, root)

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileDeleted, "del.md") == 1
	}, "expected file:deleted for del.md")
}

func TestWatcher_DirectoryRemovalReportsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir", "a.md"), "a")
	writeFile(t, filepath.Join(root, "dir", "sub", "b.md"), "b")
	_, rec := startWatcher(t, root)

	if err := os.RemoveAll(filepath.Join(root, "dir")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileDeleted, "dir/a.md") == 1 &&
			rec.count(events.FileDeleted, "dir/sub/b.md") == 1
	}, "expected deletes for every file in removed dir")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	sub := filepath.Join(root, "subdir")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the loop a moment to add the watch.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "deep.md"), "# Deep")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileCreated, "subdir/deep.md") == 1
	}, "file in new subdir not reported")
}

func TestWatcher_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, ignore.Filename), "drafts/\n")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.IgnoreChanged, ignore.Filename) == 1
	}, "expected ignore:changed")

	if n := rec.count(events.FileCreated, ignore.Filename); n != 0 {
		t.Errorf("ignore file also reported as created (%d)", n)
	}
}

func TestWatcher_HiddenAndExcludedSkipped(t *testing.T) {
	root := t.TempDir()
	_, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, ".hidden.md"), "h")
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "x.md"), "x")
	writeFile(t, filepath.Join(root, "visible.md"), "v")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileCreated, "visible.md") == 1
	}, "visible file not reported")
	time.Sleep(3 * testDebounce)

	for _, e := range rec.snapshot() {
		if e.Path != "visible.md" {
			t.Errorf("unexpected event %s", e)
		}
	}
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	root := t.TempDir()
	w, rec := startWatcher(t, root)

	writeFile(t, filepath.Join(root, "late.md"), "x")
	// Let fsnotify deliver the raw event, but stop before the debounce expires.
	time.Sleep(testDebounce / 3)
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	time.Sleep(3 * testDebounce)
	if evs := rec.snapshot(); len(evs) != 0 {
		t.Errorf("events after stop: %v", evs)
	}
	if st := w.Status(); st.Active {
		t.Error("watcher still active after Stop")
	}
	// Stopping twice is fine.
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWatcher_RestartSwitchesRoot(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	w, rec := startWatcher(t, rootA)

	if err := w.Start(rootB); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := w.Status()
	if !st.Active {
		t.Fatal("not active after restart")
	}
	wantB, _ := filepath.EvalSymlinks(rootB)
	if st.WatchedPath != wantB {
		t.Errorf("WatchedPath = %q, want %q", st.WatchedPath, wantB)
	}

	writeFile(t, filepath.Join(rootA, "a.md"), "a")
	writeFile(t, filepath.Join(rootB, "b.md"), "b")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.count(events.FileCreated, "b.md") == 1
	}, "new root not watched")
	time.Sleep(3 * testDebounce)
	if rec.count(events.FileCreated, "a.md") != 0 {
		t.Error("old root still watched after restart")
	}
}

func TestExcluded(t *testing.T) {
	cases := map[string]bool{
		"a.md":                     false,
		"dir/b.md":                 false,
		".git/config":              true,
		"sub/.git/HEAD":            true,
		"node_modules/x/y.md":      true,
		"deep/node_modules":        true,
		"vendor/x.md":              true,
		"pkg/vendor/lib/readme.md": true,
		"vendored/doc.md":          false,
		".obsidian/workspace":      true,
		"dir/.mdumb-tmp-123":       true,
		"node_modules_not/doc.md":  false,
	}
	for rel, want := range cases {
		if got := excluded(rel); got != want {
			t.Errorf("excluded(%q) = %v, want %v", rel, got, want)
		}
	}
}
