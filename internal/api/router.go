package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sickfar/mdumb/internal/docservice"
)

// Deps are the collaborators the HTTP surface talks to. Sync, Watcher,
// Ignore and Events may be nil; the routes that need them degrade.
type Deps struct {
	Docs    *docservice.Service
	Sync    Syncer
	Watcher WatchReporter
	Ignore  IgnoreReporter
	Root    string
	Events  http.Handler

	AuthEnabled bool
	Token       string

	started time.Time
}

// NewRouter creates a chi router with all API routes mounted under /api,
// plus the unauthenticated liveness probes under /health.
func NewRouter(d Deps) chi.Router {
	d.started = time.Now()
	h := NewHandler(d)

	r := chi.NewRouter()

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

			// Documents.
			r.Get("/file", h.ReadFile)
			r.Post("/file", h.WriteFile)
			r.Delete("/file", h.DeleteFile)
			r.Post("/file/promote", h.PromoteFile)
			r.Post("/folder", h.CreateFolder)

			r.Get("/navigation", h.Navigation)
			r.Get("/documents", h.ListDocuments)
			r.Get("/search", h.Search)

			// Git sync.
			r.Get("/sync", h.SyncStatus)
			r.Post("/sync", h.ForceSync)

			// SSE endpoint (protected by same auth middleware).
			if d.Events != nil {
				r.Get("/events", d.Events.ServeHTTP)
			}
		})
	})

	return r
}
