// Package docservice coordinates the content store, the catalog and the
// event bus for the outer adapters (HTTP API, MCP).
package docservice

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/sickfar/mdumb/internal/events"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/index"
	"github.com/sickfar/mdumb/internal/models"
	"github.com/sickfar/mdumb/internal/storage"
)

// DocumentItem is a lightweight item in a list response.
type DocumentItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Hash      string    `json:"hash"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage and catalog operations. Raw content access is
// never filtered by ignore rules; listing, navigation and search are.
type Service struct {
	store   storage.Provider
	db      index.Catalog
	indexer *index.Indexer
	pub     events.Publisher
	logger  *slog.Logger
}

// New creates a new document service.
func New(store storage.Provider, db index.Catalog, indexer *index.Indexer, pub events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, indexer: indexer, pub: pub, logger: logger}
}

// Read returns the document at path with its content hash.
func (s *Service) Read(_ context.Context, p string) (models.ReadResult, error) {
	return s.store.Read(p)
}

// Write stores a document, rejecting it with a conflict result when
// req.ExpectedHash no longer matches. The watcher reports the change to
// subscribers; the catalog is refreshed here so search sees it at once.
func (s *Service) Write(_ context.Context, req models.WriteRequest) (models.WriteResult, error) {
	res, err := s.store.Write(req)
	if err != nil || !res.Success {
		return res, err
	}
	s.logger.Debug("document written", slog.String("path", req.Path), slog.String("hash", res.NewHash))
	if cleanPath(req.Path) == ignore.Filename {
		s.reloadIgnore()
		return res, nil
	}
	if err := s.indexer.IndexContent(cleanPath(req.Path), []byte(req.Content)); err != nil {
		s.logger.Warn("index after write failed", slog.String("path", req.Path), slog.String("error", err.Error()))
	}
	return res, nil
}

// Delete removes a document or folder and announces the deletion.
func (s *Service) Delete(_ context.Context, p string) error {
	if err := s.store.Delete(p); err != nil {
		return err
	}
	rel := cleanPath(p)
	if err := s.db.Delete(rel); err != nil {
		s.logger.Warn("unindex after delete failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	if rel == ignore.Filename {
		s.reloadIgnore()
	}
	s.logger.Info("deleted", slog.String("path", rel))
	s.pub.Emit(events.New(events.FileDeleted, rel))
	return nil
}

// Promote turns a document into a folder with an index document and
// announces both the removal and the new document. It returns the folder path.
func (s *Service) Promote(_ context.Context, p string) (string, error) {
	newPath, err := s.store.Promote(p)
	if err != nil {
		return "", err
	}
	old := cleanPath(p)
	indexDoc := path.Join(newPath, storage.IndexName)
	if err := s.db.Delete(old); err != nil {
		s.logger.Warn("unindex after promote failed", slog.String("path", old), slog.String("error", err.Error()))
	}
	if err := s.indexer.IndexPath(indexDoc); err != nil {
		s.logger.Warn("index after promote failed", slog.String("path", indexDoc), slog.String("error", err.Error()))
	}
	s.logger.Info("promoted", slog.String("from", old), slog.String("to", newPath))
	s.pub.Emit(events.New(events.FileDeleted, old))
	s.pub.Emit(events.New(events.FileCreated, indexDoc))
	return newPath, nil
}

// CreateFolder creates a folder, optionally with an index document.
func (s *Service) CreateFolder(_ context.Context, p string, withIndex bool) error {
	if err := s.store.CreateFolder(p, withIndex); err != nil {
		return err
	}
	rel := cleanPath(p)
	s.logger.Info("folder created", slog.String("path", rel), slog.Bool("index", withIndex))
	if !withIndex {
		return nil
	}
	doc := path.Join(rel, storage.IndexName)
	if err := s.indexer.IndexPath(doc); err != nil {
		s.logger.Warn("index after create folder failed", slog.String("path", doc), slog.String("error", err.Error()))
	}
	s.pub.Emit(events.New(events.FileCreated, doc))
	return nil
}

// List returns paginated visible documents.
func (s *Service) List(_ context.Context, limit, offset int) ([]DocumentItem, int, error) {
	rows, total, err := s.db.List(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentItem{
			Path:      r.Path,
			Title:     r.Title,
			Hash:      r.Hash,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// Count returns the number of visible documents.
func (s *Service) Count(_ context.Context) (int, error) {
	return s.db.Count()
}

// reloadIgnore applies an ignore file change to the catalog right away so
// it does not depend on the watcher running.
func (s *Service) reloadIgnore() {
	s.indexer.Handle(events.New(events.IgnoreChanged, ignore.Filename))
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
