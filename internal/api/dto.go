package api

import (
	"time"

	"github.com/sickfar/mdumb/internal/docservice"
	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/index"
	"github.com/sickfar/mdumb/internal/models"
)

// WriteFileRequest is the request body for writing a document. A null or
// absent hash writes unconditionally.
type WriteFileRequest struct {
	Path    string  `json:"path" example:"guides/setup.md" validate:"required"`
	Content string  `json:"content" example:"# Setup\n" validate:"required"`
	Hash    *string `json:"hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
}

// PathRequest carries a single path.
type PathRequest struct {
	Path string `json:"path" example:"guides/setup.md" validate:"required"`
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Path        string `json:"path" example:"guides" validate:"required"`
	CreateIndex bool   `json:"createIndex"`
}

// DeleteResponse acknowledges a path mutation.
type DeleteResponse struct {
	Success bool   `json:"success" validate:"required"`
	Path    string `json:"path" validate:"required"`
}

// PromoteResponse reports the folder a file was promoted into.
type PromoteResponse struct {
	Success bool   `json:"success" validate:"required"`
	NewPath string `json:"newPath" example:"guides" validate:"required"`
}

// ReadResult is the read response type (aliased from the domain layer).
type ReadResult = models.ReadResult

// WriteResult is the write response type (aliased from the domain layer).
type WriteResult = models.WriteResult

// NavItem is a navigation tree entry (aliased from the domain layer).
type NavItem = docservice.NavItem

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []docservice.DocumentItem `json:"documents" validate:"required"`
	Total     int                       `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// SyncResponse combines the sync loop state with repository info.
type SyncResponse struct {
	Status gitsync.Status `json:"status"`
	Info   gitsync.Info   `json:"info"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status        string         `json:"status" example:"healthy"`
	Timestamp     time.Time      `json:"timestamp"`
	PagesLoaded   int            `json:"pagesLoaded"`
	ContentPath   string         `json:"contentPath"`
	WatcherActive bool           `json:"watcherActive"`
	Uptime        int64          `json:"uptime"`
	Ignore        *ignore.Status `json:"ignore,omitempty"`
	Git           *gitsync.Info  `json:"git,omitempty"`
}
