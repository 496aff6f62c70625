// Package handlers provides HTTP handlers for asset management.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/identity"
	"github.com/mizanhq/mizan/internal/modules/wealth"
)

// Handler handles asset HTTP requests
type Handler struct {
	store *wealth.Store
	log   zerolog.Logger
}

// NewHandler creates a new asset handler
func NewHandler(store *wealth.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "assets").Logger(),
	}
}

// HandleList handles GET /api/assets
// Returns the user's assets along with aggregated wealth totals.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())

	assets, err := h.store.AssetsForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if assets == nil {
		assets = []domain.Asset{}
	}

	totals := wealth.Aggregate(assets)

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"totals": totals,
		"count":  len(assets),
	})
}

type assetRequest struct {
	Name        *string          `json:"name"`
	Category    *string          `json:"category"`
	Value       *decimal.Decimal `json:"value"`
	IsZakatable *bool            `json:"is_zakatable"`
}

// HandleCreate handles POST /api/assets
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())

	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	asset := domain.Asset{IsZakatable: true}
	if req.Name != nil {
		asset.Name = *req.Name
	}
	if req.Category != nil {
		asset.Category = *req.Category
	}
	if req.Value != nil {
		asset.Value = *req.Value
	}
	if req.IsZakatable != nil {
		asset.IsZakatable = *req.IsZakatable
	}

	created, err := h.store.CreateAsset(r.Context(), userID, asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, created)
}

// HandleUpdate handles PATCH /api/assets/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, assetID string) {
	userID := identity.FromContext(r.Context())

	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	updated, err := h.store.UpdateAsset(r.Context(), userID, assetID, wealth.AssetUpdate{
		Name:        req.Name,
		Category:    req.Category,
		Value:       req.Value,
		IsZakatable: req.IsZakatable,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/assets/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, assetID string) {
	userID := identity.FromContext(r.Context())

	if err := h.store.DeleteAsset(r.Context(), userID, assetID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Asset operation failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
