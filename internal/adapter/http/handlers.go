package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runlens/runlens/internal/service"
)

// Handlers holds the HTTP handler dependencies. IngestLimiter, when non-nil,
// throttles only the batch endpoint; reads stay unthrottled.
type Handlers struct {
	Ingest        *service.IngestService
	Query         *service.QueryService
	IngestLimiter func(http.Handler) http.Handler
}

// MountRoutes registers all API routes on the router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.IngestLimiter != nil {
			r.With(h.IngestLimiter).Post("/runs/batch", h.handleIngestBatch)
		} else {
			r.Post("/runs/batch", h.handleIngestBatch)
		}

		r.Get("/runs", h.handleListRoots)
		r.Get("/runs/{id}/hierarchy", h.handleHierarchy)

		r.Get("/dashboard/summary", h.handleSummary)
	})
}
