package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Route("/devices/{device_id}", func(r chi.Router) {
				r.Post("/sync", h.Sync)
				r.Post("/rollback", h.Rollback)
				r.Get("/status", h.Status)
				r.Get("/history", h.History)
			})
			r.Get("/metrics", h.Metrics)
			r.Post("/maintenance/prune", h.Prune)
		})
	})

	return r
}
