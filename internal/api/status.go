package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/ignore"
	"github.com/sickfar/mdumb/internal/watcher"
)

// Syncer is the part of the git sync manager the API exposes.
type Syncer interface {
	Status() gitsync.Status
	Info(ctx context.Context) gitsync.Info
	ForceSync(ctx context.Context) error
}

// WatchReporter reports filesystem watcher state.
type WatchReporter interface {
	Status() watcher.Status
}

// IgnoreReporter reports the ignore rules loaded for a root.
type IgnoreReporter interface {
	Status(root string) ignore.Status
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. The catalog must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.d.Docs.Count(r.Context()); err != nil {
		slog.Warn("readiness check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Health handles GET /api/health.
//
//	@Summary		Service health with watcher, ignore and git state
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		ContentPath: h.d.Root,
		Uptime:      time.Since(h.d.started).Milliseconds(),
	}
	if n, err := h.d.Docs.Count(r.Context()); err != nil {
		resp.Status = "degraded"
	} else {
		resp.PagesLoaded = n
	}
	if h.d.Watcher != nil {
		st := h.d.Watcher.Status()
		resp.WatcherActive = st.Active
	}
	if h.d.Ignore != nil {
		st := h.d.Ignore.Status(h.d.Root)
		resp.Ignore = &st
	}
	if h.d.Sync != nil {
		info := h.d.Sync.Info(r.Context())
		resp.Git = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncStatus handles GET /api/sync.
//
//	@Summary		Git sync status
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.d.Sync == nil {
		writeJSON(w, http.StatusOK, SyncResponse{Info: gitsync.Info{}})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Status: h.d.Sync.Status(),
		Info:   h.d.Sync.Info(r.Context()),
	})
}

// ForceSync handles POST /api/sync.
//
//	@Summary		Run a git sync now
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if h.d.Sync == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("git sync is disabled"))
		return
	}
	err := h.d.Sync.ForceSync(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, gitsync.ErrDisabled):
		writeJSON(w, http.StatusBadRequest, errorBody("git sync is disabled"))
		return
	case errors.Is(err, gitsync.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, errorBody("sync already in progress"))
		return
	default:
		slog.Error("force sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("sync failed"))
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Status: h.d.Sync.Status(),
		Info:   h.d.Sync.Info(r.Context()),
	})
}
