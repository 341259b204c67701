package index

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sickfar/mdumb/internal/checksum"
	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/parser"
	"github.com/sickfar/mdumb/internal/storage"
)

// Indexer keeps a Catalog in step with the content root. Documents hidden
// by the ignore file are kept out of the catalog.
type Indexer struct {
	db      Catalog
	store   storage.Provider
	matcher *ignore.Matcher
	logger  *slog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(db Catalog, store storage.Provider, matcher *ignore.Matcher, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, store: store, matcher: matcher, logger: logger}
}

// Sync walks the content root and brings the catalog up to date:
//   - new/changed visible documents are parsed and upserted
//   - documents removed from disk or newly ignored are deleted
func (ix *Indexer) Sync() error {
	metas, err := ix.store.List("")
	if err != nil {
		return err
	}

	hashes, err := ix.db.AllHashes()
	if err != nil {
		return err
	}

	visible := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if ix.hidden(m.Path) {
			continue
		}
		visible[m.Path] = struct{}{}

		if hashes[m.Path] == m.Hash {
			continue
		}
		if err := ix.IndexPath(m.Path); err != nil {
			ix.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			ix.logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale and newly ignored entries.
	for p := range hashes {
		if _, ok := visible[p]; ok {
			continue
		}
		if err := ix.db.Delete(p); err != nil {
			ix.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			ix.logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	ix.logger.Info("index synced", slog.Int("documents", len(visible)))
	return nil
}

// Handle applies a single change event. It is meant to be registered on the
// event bus for every kind.
func (ix *Indexer) Handle(e events.Event) {
	var err error
	switch e.Kind {
	case events.FileCreated, events.FileChanged:
		if !catalogued(e.Path) {
			return
		}
		if ix.hidden(e.Path) {
			err = ix.db.Delete(e.Path)
			break
		}
		err = ix.IndexPath(e.Path)
	case events.FileDeleted:
		err = ix.db.Delete(e.Path)
	case events.IgnoreChanged:
		ix.matcher.ClearCache()
		err = ix.Sync()
	}
	if err != nil {
		ix.logger.Warn("index: apply event failed",
			slog.String("type", string(e.Kind)),
			slog.String("path", e.Path),
			slog.String("error", err.Error()))
	}
}

// IndexPath reads the document at path and upserts it. A document that has
// vanished in the meantime is removed instead.
func (ix *Indexer) IndexPath(path string) error {
	res, err := ix.store.Read(path)
	if err != nil {
		return err
	}
	if !res.Exists {
		return ix.db.Delete(path)
	}
	return ix.IndexContent(path, []byte(res.Content))
}

// IndexContent parses data and upserts it under path. Paths that are not
// visible Markdown documents are skipped.
func (ix *Indexer) IndexContent(path string, data []byte) error {
	if !catalogued(path) || ix.hidden(path) {
		return nil
	}
	doc := parser.Parse(path, data)
	row := DocumentRow{
		Path:  path,
		Title: doc.Title,
		Hash:  checksum.Sum(data),
		Tags:  doc.Tags,
	}
	if err := ix.db.Upsert(row, doc.Body); err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	return nil
}

// catalogued reports whether path is a visible Markdown document.
func catalogued(path string) bool {
	return strings.HasSuffix(path, ".md") && !storage.IsHidden(path)
}

// hidden reports whether path, or any folder above it, is ignored.
func (ix *Indexer) hidden(path string) bool {
	if ix.matcher == nil {
		return false
	}
	root := ix.store.Root()
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if ix.matcher.IsPathIgnored(strings.Join(parts[:i], "/"), true, root) {
			return true
		}
	}
	return ix.matcher.IsIgnored(path, root)
}
