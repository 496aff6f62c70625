package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all record routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", withID(h.HandleGet))
			r.Patch("/", withID(h.HandleUpdate))
			r.Delete("/", withID(h.HandleDelete))
			r.Post("/refresh-assets", withID(h.HandleRefreshAssets))
			r.Post("/finalize", withID(h.HandleFinalize))
			r.Post("/unlock", withID(h.HandleUnlock))
			r.Post("/refinalize", withID(h.HandleRefinalize))
			r.Get("/audit", withID(h.HandleAuditTrail))
		})
	})
}

func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}
