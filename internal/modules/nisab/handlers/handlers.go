// Package handlers provides HTTP handlers for nisab threshold queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/nisab"
)

// Handler handles nisab HTTP requests
type Handler struct {
	service         *nisab.Service
	defaultBasis    domain.NisabBasis
	defaultCurrency string
	log             zerolog.Logger
}

// NewHandler creates a new nisab handler
func NewHandler(service *nisab.Service, defaultBasis domain.NisabBasis, defaultCurrency string, log zerolog.Logger) *Handler {
	return &Handler{
		service:         service,
		defaultBasis:    defaultBasis,
		defaultCurrency: defaultCurrency,
		log:             log.With().Str("handler", "nisab").Logger(),
	}
}

// HandleGetThreshold handles GET /api/nisab/threshold?basis=&currency=
func (h *Handler) HandleGetThreshold(w http.ResponseWriter, r *http.Request) {
	basis := domain.NisabBasis(r.URL.Query().Get("basis"))
	if basis == "" {
		basis = h.defaultBasis
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = h.defaultCurrency
	}

	threshold, err := h.service.GetThreshold(r.Context(), basis, currency)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case domain.IsValidation(err):
			status = http.StatusBadRequest
		case domain.IsProviderUnavailable(err):
			status = http.StatusBadGateway
		}
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Threshold lookup failed")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	response := map[string]interface{}{
		"data": threshold,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
