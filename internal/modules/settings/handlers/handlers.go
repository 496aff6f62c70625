// Package handlers provides HTTP handlers for user preferences.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/identity"
	"github.com/mizanhq/mizan/internal/modules/settings"
)

// Handler handles preference HTTP requests
type Handler struct {
	repo *settings.Repository
	log  zerolog.Logger
}

// NewHandler creates a new preferences handler
func NewHandler(repo *settings.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "settings").Logger(),
	}
}

// HandleGet handles GET /api/preferences
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())

	prefs, err := h.repo.Get(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, prefs)
}

type putRequest struct {
	NisabBasis string `json:"nisab_basis"`
	Currency   string `json:"currency"`
}

// HandlePut handles PUT /api/preferences
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	prefs, err := h.repo.Put(userID, domain.NisabBasis(req.NisabBasis), req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, prefs)
}

// writeData writes the standard response envelope
func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if domain.IsValidation(err) {
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Preference operation failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
