// Package testutil provides shared test helpers for setting up content roots,
// catalogs and a wired document service.
package testutil

import (
	"os"
	"sync"
	"testing"

	"github.com/sickfar/mdumb/internal/docservice"
	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/index"
	"github.com/sickfar/mdumb/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mdumb-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContent creates a temporary content root with a storage.FS on it.
func TestContent(t *testing.T) (string, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// Recorder collects every event emitted on a bus.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Events returns a copy of what has been recorded so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *Recorder) record(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Env is a fully wired document service over temporary storage.
type Env struct {
	Root     string
	Store    *storage.FS
	DB       *index.DB
	Matcher  *ignore.Matcher
	Bus      *events.Bus
	Indexer  *index.Indexer
	Service  *docservice.Service
	Recorder *Recorder
}

// NewEnv wires storage, catalog, ignore matcher, bus and service the same
// way the server does, minus the watcher.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	root, store := TestContent(t)
	db := TestDB(t)
	matcher := ignore.New(nil)
	bus := events.NewBus(nil)
	ix := index.NewIndexer(db, store, matcher, nil)
	bus.On(events.All, ix.Handle)

	rec := &Recorder{}
	bus.On(events.All, rec.record)

	return &Env{
		Root:     root,
		Store:    store,
		DB:       db,
		Matcher:  matcher,
		Bus:      bus,
		Indexer:  ix,
		Service:  docservice.New(store, db, ix, bus, nil),
		Recorder: rec,
	}
}
