// Package watcher observes the content root and turns raw filesystem
// notifications into debounced created/changed/deleted events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/storage"
)

// DefaultDebounce is the quiet period a path needs before its event fires.
const DefaultDebounce = 300 * time.Millisecond

// excludeGlobs are never watched nor reported.
var excludeGlobs = []string{
	"**/node_modules",
	"**/node_modules/**",
	"**/.git",
	"**/.git/**",
	"**/vendor",
	"**/vendor/**",
}

// Status reports whether the watcher is running and on which root.
type Status struct {
	Active      bool   `json:"active"`
	WatchedPath string `json:"watchedPath,omitempty"`
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

type pending struct {
	timer *time.Timer
	seq   uint64
}

// Watcher is a restartable recursive watcher over one content root.
type Watcher struct {
	pub      events.Publisher
	logger   *slog.Logger
	debounce time.Duration

	lifeMu sync.Mutex // serializes Start and Stop

	mu     sync.Mutex
	active bool
	gen    uint64 // bumped on every stop; late callbacks from older runs are dropped
	seq    uint64
	root   string
	fsw    *fsnotify.Watcher
	done   chan struct{}
	timers map[string]pending
	known  map[string]struct{} // files seen to exist, relative to root
}

// New creates a stopped Watcher that emits to pub.
func New(pub events.Publisher, opts ...Option) *Watcher {
	w := &Watcher{
		pub:      pub,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches root recursively. A running watch is torn down first.
func (w *Watcher) Start(root string) error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	if err := w.stopLocked(context.Background()); err != nil {
		return err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	known := make(map[string]struct{})
	if err := w.addTree(fsw, abs, abs, func(rel string) { known[rel] = struct{}{} }); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watcher: add %s: %w", abs, err)
	}

	done := make(chan struct{})
	w.mu.Lock()
	w.active = true
	w.root = abs
	w.fsw = fsw
	w.done = done
	w.timers = make(map[string]pending)
	w.known = known
	gen := w.gen
	w.mu.Unlock()

	go w.loop(fsw, done, gen)

	w.logger.Info("watcher: started",
		slog.String("root", abs),
		slog.Duration("debounce", w.debounce),
		slog.Int("files", len(known)))
	return nil
}

// Stop cancels pending debounced events, releases the OS handle and waits
// for the event loop to exit or ctx to expire. Stopping a stopped watcher
// is a no-op.
func (w *Watcher) Stop(ctx context.Context) error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()
	return w.stopLocked(ctx)
}

// Status returns a snapshot of the watcher state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return Status{}
	}
	return Status{Active: true, WatchedPath: w.root}
}

func (w *Watcher) stopLocked(ctx context.Context) error {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return nil
	}
	w.active = false
	w.gen++
	for _, p := range w.timers {
		p.timer.Stop()
	}
	w.timers = nil
	fsw, done, root := w.fsw, w.done, w.root
	w.fsw = nil
	w.mu.Unlock()

	closeErr := fsw.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("watcher: stop: %w", ctx.Err())
	}
	if closeErr != nil {
		return fmt.Errorf("watcher: close: %w", closeErr)
	}
	w.logger.Info("watcher: stopped", slog.String("root", root))
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}, gen uint64) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, ev, gen)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event, gen uint64) {
	w.mu.Lock()
	root := w.root
	stale := gen != w.gen
	w.mu.Unlock()
	if stale {
		return
	}

	rel := storage.Rel(root, ev.Name)
	if rel == "" || strings.HasPrefix(rel, "../") {
		return
	}
	if rel == ignore.Filename {
		if ev.Op != fsnotify.Chmod {
			w.schedule(rel, gen)
		}
		return
	}
	if excluded(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			// Files already inside a directory that appeared (mkdir -p, move in)
			// never get their own Create notification.
			if err := w.addTree(fsw, root, ev.Name, func(child string) { w.schedule(child, gen) }); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
			return
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// The old name of a renamed directory keeps its watch otherwise.
		_ = fsw.Remove(ev.Name)
	case ev.Op == fsnotify.Chmod:
		return
	}
	w.schedule(rel, gen)
}

// schedule (re)arms the debounce timer for rel.
func (w *Watcher) schedule(rel string, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.timers == nil {
		return
	}
	if p, ok := w.timers[rel]; ok {
		p.timer.Stop()
	}
	w.seq++
	seq := w.seq
	w.timers[rel] = pending{
		seq:   seq,
		timer: time.AfterFunc(w.debounce, func() { w.fire(rel, gen, seq) }),
	}
}

// fire classifies the settled state of rel and emits the resulting events.
func (w *Watcher) fire(rel string, gen, seq uint64) {
	w.mu.Lock()
	p, ok := w.timers[rel]
	if gen != w.gen || !ok || p.seq != seq {
		w.mu.Unlock()
		return
	}
	delete(w.timers, rel)
	root := w.root
	w.mu.Unlock()

	if rel == ignore.Filename {
		w.logger.Debug("watcher: ignore file changed")
		w.pub.Emit(events.New(events.IgnoreChanged, rel))
		return
	}

	info, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))

	var out []events.Event
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	switch {
	case statErr == nil && info.IsDir():
	case statErr == nil:
		if _, seen := w.known[rel]; seen {
			out = append(out, events.New(events.FileChanged, rel))
		} else {
			w.known[rel] = struct{}{}
			out = append(out, events.New(events.FileCreated, rel))
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if _, seen := w.known[rel]; seen {
			delete(w.known, rel)
			out = append(out, events.New(events.FileDeleted, rel))
		}
		// A vanished directory takes every known file under it along.
		prefix := rel + "/"
		var gone []string
		for k := range w.known {
			if strings.HasPrefix(k, prefix) {
				gone = append(gone, k)
			}
		}
		sort.Strings(gone)
		for _, k := range gone {
			delete(w.known, k)
			out = append(out, events.New(events.FileDeleted, k))
		}
	default:
		w.logger.Warn("watcher: stat failed",
			slog.String("path", rel),
			slog.String("error", statErr.Error()))
	}
	w.mu.Unlock()

	for _, e := range out {
		w.logger.Debug("watcher: event", slog.String("type", string(e.Kind)), slog.String("path", e.Path))
		w.pub.Emit(e)
	}
}

// addTree watches dir and every non-excluded directory below it, calling
// onFile with the root-relative path of each file found.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root, dir string, onFile func(rel string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel := storage.Rel(root, path)
		if rel != "" && rel != ignore.Filename && excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		if rel != ignore.Filename {
			onFile(rel)
		}
		return nil
	})
}

// excluded reports whether rel is hidden or lives in a VCS or dependency directory.
func excluded(rel string) bool {
	if storage.IsHidden(rel) {
		return true
	}
	for _, g := range excludeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
