package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(Recovery)
	r.Use(Logger)
	r.Use(PrivateSubnetOnly) // Restrict access to private subnets
	r.Use(JSONContentType)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Route endpoints
		r.Get("/routes", h.GetRoutes)
		r.Post("/routes", h.AddRoutes)
		r.Delete("/routes", h.DeleteRoutes)

		// Default route endpoints
		r.Get("/default-routes", h.GetDefaultRoutes)
		r.Get("/mtu", h.GetMTU)
		r.Get("/events", h.StreamEvents) // SSE stream
	})

	// Health check endpoint at root
	r.Get("/health", h.CheckHealth)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "Endpoint")
	})

	return r
}
