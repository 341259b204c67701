package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sickfar/mdumb/internal/models"
)

// maxBody caps request bodies on write endpoints.
const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	d Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{d: d}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ReadFile handles GET /api/file.
//
//	@Summary		Read a document with its content hash
//	@Tags			files
//	@Produce		json
//	@Param			path	query		string	true	"Document path relative to the content root"
//	@Success		200		{object}	ReadResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/file [get]
func (h *Handler) ReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path parameter is required"))
		return
	}
	res, err := h.d.Docs.Read(r.Context(), path)
	if err != nil {
		writeError(w, "read file", path, err)
		return
	}
	if !res.Exists {
		slog.Debug("file not found", slog.String("path", path))
	}
	writeJSON(w, http.StatusOK, res)
}

// WriteFile handles POST /api/file.
//
//	@Summary		Write a document with optimistic concurrency
//	@Description	A stale hash yields success=false with the current hash, not an error status.
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		WriteFileRequest	true	"Document to write"
//	@Success		200		{object}	WriteResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/file [post]
func (h *Handler) WriteFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
		Hash    *string `json:"hash"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	res, err := h.d.Docs.Write(r.Context(), models.WriteRequest{
		Path:         req.Path,
		Content:      *req.Content,
		ExpectedHash: req.Hash,
	})
	if err != nil {
		writeError(w, "write file", req.Path, err)
		return
	}
	if !res.Success {
		slog.Warn("file write conflict detected",
			slog.String("path", req.Path),
			slog.String("current_hash", res.Conflict.CurrentHash))
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteFile handles DELETE /api/file.
//
//	@Summary		Delete a document or folder
//	@Tags			files
//	@Produce		json
//	@Param			path	query		string	true	"Path relative to the content root"
//	@Success		200		{object}	DeleteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/file [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.d.Docs.Delete(r.Context(), path); err != nil {
		writeError(w, "delete file", path, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Path: path})
}

// PromoteFile handles POST /api/file/promote.
//
//	@Summary		Turn a document into a folder with an index document
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Document to promote"
//	@Success		200		{object}	PromoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/file/promote [post]
func (h *Handler) PromoteFile(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	newPath, err := h.d.Docs.Promote(r.Context(), req.Path)
	if err != nil {
		writeError(w, "promote file", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, PromoteResponse{Success: true, NewPath: newPath})
}

// CreateFolder handles POST /api/folder.
//
//	@Summary		Create a folder, optionally with an index document
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder to create"
//	@Success		201		{object}	DeleteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folder [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.d.Docs.CreateFolder(r.Context(), req.Path, req.CreateIndex); err != nil {
		writeError(w, "create folder", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, DeleteResponse{Success: true, Path: req.Path})
}

// Navigation handles GET /api/navigation.
//
//	@Summary		Get the navigation tree of visible documents
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{array}	NavItem
//	@Security		BearerAuth
//	@Router			/navigation [get]
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	nav, err := h.d.Docs.Navigation(r.Context())
	if err != nil {
		writeError(w, "navigation", "", err)
		return
	}
	writeJSON(w, http.StatusOK, nav)
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List visible documents with optional pagination
//	@Tags			navigation
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.d.Docs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list documents", "", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: total})
}

// Search handles GET /api/search.
//
//	@Summary		Search visible documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.d.Docs.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
