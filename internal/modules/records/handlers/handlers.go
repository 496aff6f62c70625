// Package handlers provides HTTP handlers for nisab year record operations.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/identity"
	"github.com/mizanhq/mizan/internal/modules/hawl"
	"github.com/mizanhq/mizan/internal/modules/records"
)

// Handler handles record HTTP requests
type Handler struct {
	lifecycle *records.Lifecycle
	engine    *hawl.Engine
	prefs     hawl.PreferenceSource
	log       zerolog.Logger
}

// NewHandler creates a new records handler
func NewHandler(
	lifecycle *records.Lifecycle,
	engine *hawl.Engine,
	prefs hawl.PreferenceSource,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		engine:    engine,
		prefs:     prefs,
		log:       log.With().Str("handler", "records").Logger(),
	}
}

type createRequest struct {
	NisabBasis string   `json:"nisab_basis"`
	Currency   string   `json:"currency"`
	AssetIDs   []string `json:"asset_ids"`
}

// HandleCreate handles POST /api/records
// Opens a new draft record from the user's current assets. Basis and currency
// default to the user's preferences.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())

	var req createRequest
	if r.Body != nil {
		// An empty body is a valid "use my defaults" request.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	if req.NisabBasis == "" || req.Currency == "" {
		prefs, err := h.prefs.Get(userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if req.NisabBasis == "" {
			req.NisabBasis = string(prefs.NisabBasis)
		}
		if req.Currency == "" {
			req.Currency = prefs.Currency
		}
	}

	rec, err := h.lifecycle.Create(r.Context(), records.CreateParams{
		UserID:   userID,
		Basis:    domain.NisabBasis(req.NisabBasis),
		Currency: req.Currency,
		AssetIDs: req.AssetIDs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, rec)
}

// HandleList handles GET /api/records?status=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := identity.FromContext(r.Context())
	status := domain.RecordStatus(r.URL.Query().Get("status"))

	recs, err := h.lifecycle.List(userID, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []records.Record{}
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// HandleGet handles GET /api/records/{id}
// Draft records include a live progress view of the running Hawl.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	rec, err := h.lifecycle.Get(userID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data := map[string]interface{}{"record": rec}
	if rec.Status == domain.StatusDraft {
		progress, err := h.engine.ProgressFor(r.Context(), time.Now().UTC(), userID)
		if err != nil {
			h.log.Warn().Err(err).Str("record_id", recordID).Msg("Failed to compute hawl progress")
		} else if progress != nil {
			data["progress"] = progress
		}
	}

	h.writeData(w, http.StatusOK, data)
}

type updateRequest struct {
	TotalWealth     *decimal.Decimal `json:"total_wealth"`
	ZakatableWealth *decimal.Decimal `json:"zakatable_wealth"`
	UserNotes       *string          `json:"user_notes"`
}

// HandleUpdate handles PATCH /api/records/{id}
// Drafts accept notes only; wealth figures are derived from assets until the
// record is unlocked.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	rec, err := h.lifecycle.Get(userID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if rec.Status == domain.StatusDraft && req.TotalWealth == nil && req.ZakatableWealth == nil {
		if req.UserNotes == nil {
			http.Error(w, "no editable fields provided", http.StatusBadRequest)
			return
		}
		updated, err := h.lifecycle.UpdateDraftNotes(userID, recordID, *req.UserNotes)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeData(w, http.StatusOK, updated)
		return
	}

	updated, err := h.lifecycle.Edit(userID, recordID, records.EditFields{
		TotalWealth:     req.TotalWealth,
		ZakatableWealth: req.ZakatableWealth,
		UserNotes:       req.UserNotes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/records/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	if err := h.lifecycle.Delete(userID, recordID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshAssets handles POST /api/records/{id}/refresh-assets?save=
// Recomputes the draft's snapshot from current assets. save=true persists.
func (h *Handler) HandleRefreshAssets(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())
	save := r.URL.Query().Get("save") == "true"

	rec, err := h.lifecycle.Refresh(r.Context(), userID, recordID, save)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"record": rec,
		"saved":  save,
	})
}

// HandleFinalize handles POST /api/records/{id}/finalize
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	rec, err := h.lifecycle.Finalize(userID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, rec)
}

type unlockRequest struct {
	Reason string `json:"reason"`
}

// HandleUnlock handles POST /api/records/{id}/unlock
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	rec, err := h.lifecycle.Unlock(userID, recordID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, rec)
}

// HandleRefinalize handles POST /api/records/{id}/refinalize
func (h *Handler) HandleRefinalize(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	rec, err := h.lifecycle.Refinalize(userID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, rec)
}

// HandleAuditTrail handles GET /api/records/{id}/audit
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request, recordID string) {
	userID := identity.FromContext(r.Context())

	entries, err := h.lifecycle.AuditTrail(userID, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
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
	case domain.IsInvalidTransition(err):
		status = http.StatusConflict
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsProviderUnavailable(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Record operation failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
