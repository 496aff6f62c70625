package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all nisab routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/nisab", func(r chi.Router) {
		r.Get("/threshold", h.HandleGetThreshold)
	})
}
