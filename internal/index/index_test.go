package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sickfar/mdumb/internal/apperr"
	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/models"
	"github.com/sickfar/mdumb/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "mdumb-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEnv(t *testing.T) (*storage.FS, *DB, *Indexer) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	return store, db, NewIndexer(db, store, ignore.New(nil), nil)
}

func put(t *testing.T, store *storage.FS, path, content string) {
	t.Helper()
	if _, err := store.Write(models.WriteRequest{Path: path, Content: content}); err != nil {
		t.Fatal(err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{
		Path:      "hello.md",
		Title:     "Hello",
		Hash:      "abc123",
		Tags:      []string{"go"},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.Upsert(row, "body text"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	h, err := db.GetHash("hello.md")
	if err != nil || h != "abc123" {
		t.Errorf("GetHash = %q, %v", h, err)
	}

	got, err := db.Get("hello.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Hello" || len(got.Tags) != 1 || got.Tags[0] != "go" {
		t.Errorf("Get = %+v", got)
	}

	row.Hash = "def456"
	if err := db.Upsert(row, "new body"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if h, _ := db.GetHash("hello.md"); h != "def456" {
		t.Errorf("hash after update = %q", h)
	}
	if n, _ := db.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestGet_Missing(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if h, err := db.GetHash("nope.md"); h != "" || err != nil {
		t.Errorf("GetHash = %q, %v", h, err)
	}
}

func TestDelete_FolderPrefix(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"dir/a.md", "dir/sub/b.md", "dir.md", "dir2/c.md"} {
		if err := db.Upsert(DocumentRow{Path: p, Hash: "h"}, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Delete("dir"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hashes, _ := db.AllHashes()
	if len(hashes) != 2 {
		t.Errorf("remaining = %v, want dir.md and dir2/c.md", hashes)
	}
	if _, ok := hashes["dir.md"]; !ok {
		t.Error("sibling dir.md removed")
	}
}

func TestList_Paging(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"c.md", "a.md", "b.md"} {
		_ = db.Upsert(DocumentRow{Path: p}, "")
	}
	rows, total, err := db.List(2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(rows) != 2 || rows[0].Path != "a.md" || rows[1].Path != "b.md" {
		t.Errorf("page 1 = %v (total %d)", rows, total)
	}
	rows, _, _ = db.List(2, 2)
	if len(rows) != 1 || rows[0].Path != "c.md" {
		t.Errorf("page 2 = %v", rows)
	}
	rows, _, _ = db.List(0, 0)
	if len(rows) != 3 {
		t.Errorf("unbounded list = %d rows", len(rows))
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(DocumentRow{Path: "go.md", Title: "Go notes"}, "Goroutines and channels")
	_ = db.Upsert(DocumentRow{Path: "rust.md", Title: "Rust"}, "Ownership, borrowing and channels")
	_ = db.Upsert(DocumentRow{Path: "pct.md", Title: "Percent"}, "100% done")

	res, err := db.Search("channels", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("len = %d, want 2", len(res))
	}

	res, _ = db.Search("GO NOTES", 10)
	if len(res) != 1 || res[0].Path != "go.md" {
		t.Errorf("case-insensitive title search = %v", res)
	}

	res, _ = db.Search("%", 10)
	if len(res) != 1 || res[0].Path != "pct.md" {
		t.Errorf("literal percent search = %v", res)
	}

	if res, _ := db.Search("  ", 10); len(res) != 0 {
		t.Errorf("blank query returned %v", res)
	}
}

func TestIndexer_SyncHonoursIgnore(t *testing.T) {
	store, db, ix := testEnv(t)
	put(t, store, "visible.md", "# Visible\n")
	put(t, store, "drafts/wip.md", "# WIP\n")
	put(t, store, "secret.md", "# Secret\n")
	put(t, store, ignore.Filename, "drafts/\nsecret.md\n")

	if err := ix.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	hashes, _ := db.AllHashes()
	if len(hashes) != 1 {
		t.Fatalf("catalog = %v, want only visible.md", hashes)
	}
	row, err := db.Get("visible.md")
	if err != nil || row.Title != "Visible" {
		t.Errorf("visible.md row = %+v, %v", row, err)
	}

	// Ignored documents stay readable by direct path.
	res, _ := store.Read("drafts/wip.md")
	if !res.Exists {
		t.Error("ignored document should remain readable")
	}
}

func TestIndexer_SyncRemovesStale(t *testing.T) {
	store, db, ix := testEnv(t)
	put(t, store, "a.md", "a")
	put(t, store, "b.md", "b")
	if err := ix.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(store.Root(), "b.md")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Sync(); err != nil {
		t.Fatal(err)
	}
	if h, _ := db.GetHash("b.md"); h != "" {
		t.Error("stale entry survived sync")
	}
	if h, _ := db.GetHash("a.md"); h == "" {
		t.Error("a.md dropped")
	}
}

func TestIndexer_HandleEvents(t *testing.T) {
	store, db, ix := testEnv(t)

	put(t, store, "n.md", "# First\n")
	ix.Handle(events.New(events.FileCreated, "n.md"))
	if row, err := db.Get("n.md"); err != nil || row.Title != "First" {
		t.Fatalf("after create: %+v, %v", row, err)
	}

	put(t, store, "n.md", "# Second\n")
	ix.Handle(events.New(events.FileChanged, "n.md"))
	if row, _ := db.Get("n.md"); row == nil || row.Title != "Second" {
		t.Errorf("after change: %+v", row)
	}

	ix.Handle(events.New(events.FileDeleted, "n.md"))
	if h, _ := db.GetHash("n.md"); h != "" {
		t.Error("entry survived delete event")
	}

	// Non-markdown files are not catalogued.
	put(t, store, "image.png", "png")
	ix.Handle(events.New(events.FileCreated, "image.png"))
	if n, _ := db.Count(); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestIndexer_IgnoreChangedResyncs(t *testing.T) {
	store, db, ix := testEnv(t)
	put(t, store, "keep.md", "k")
	put(t, store, "hide.md", "h")
	if err := ix.Sync(); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.Count(); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	put(t, store, ignore.Filename, "hide.md\n")
	ix.Handle(events.New(events.IgnoreChanged, ignore.Filename))
	if h, _ := db.GetHash("hide.md"); h != "" {
		t.Error("newly ignored document still catalogued")
	}

	put(t, store, ignore.Filename, "")
	ix.Handle(events.New(events.IgnoreChanged, ignore.Filename))
	if h, _ := db.GetHash("hide.md"); h == "" {
		t.Error("un-ignored document not catalogued again")
	}
}
