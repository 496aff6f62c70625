// Package records owns the nisab year record state machine
// (DRAFT -> FINALIZED <-> UNLOCKED) and its audit trail.
package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/audit"
	"github.com/mizanhq/mizan/internal/modules/nisab"
	"github.com/mizanhq/mizan/internal/modules/wealth"
)

// MinUnlockReasonLen is the minimum length of an unlock justification.
const MinUnlockReasonLen = 10

// ThresholdSource abstracts the nisab service for testing.
type ThresholdSource interface {
	GetThreshold(ctx context.Context, basis domain.NisabBasis, currency string) (*nisab.Threshold, error)
}

// Lifecycle validates and applies record state transitions. Every mutation of
// a given record is serialized through a per-record lock, so an audit entry
// always reflects the actually-applied state.
type Lifecycle struct {
	repo      *Repository
	auditRepo *audit.Repository
	assets    wealth.AssetProvider
	nisab     ThresholdSource
	locks     sync.Map // record id -> *sync.Mutex
	now       func() time.Time
	log       zerolog.Logger
}

// NewLifecycle creates the record lifecycle service.
func NewLifecycle(
	repo *Repository,
	auditRepo *audit.Repository,
	assets wealth.AssetProvider,
	nisabSvc ThresholdSource,
	log zerolog.Logger,
) *Lifecycle {
	return &Lifecycle{
		repo:      repo,
		auditRepo: auditRepo,
		assets:    assets,
		nisab:     nisabSvc,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("service", "lifecycle").Logger(),
	}
}

// SetClock overrides the time source. Used by tests.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Lifecycle) lockFor(recordID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(recordID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateParams controls draft creation.
type CreateParams struct {
	UserID   string
	Basis    domain.NisabBasis
	Currency string
	// AssetIDs optionally restricts the snapshot to a subset (manual creation).
	// Empty means all assets.
	AssetIDs []string
	// Automatic marks detection-job creation, which is threshold-gated.
	// Manual creation is allowed below nisab; the explicit user request is
	// its own guard.
	Automatic bool
}

// Create opens a new DRAFT record, captures the asset snapshot, and appends
// the mandatory CREATED audit entry.
func (l *Lifecycle) Create(ctx context.Context, p CreateParams) (*Record, error) {
	if p.UserID == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	if !p.Basis.Valid() {
		return nil, domain.NewValidationError("nisab_basis", "must be GOLD or SILVER")
	}
	if len(p.Currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	if existing, err := l.repo.FindActiveDraft(p.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      existing.ID,
			CurrentStatus: domain.StatusDraft,
			Event:         "create",
			Reason:        "an active draft already exists for this user",
		}
	}

	assets, err := l.assets.AssetsForUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for user %s: %w", p.UserID, err)
	}
	assets = filterAssets(assets, p.AssetIDs)

	threshold, err := l.nisab.GetThreshold(ctx, p.Basis, p.Currency)
	if err != nil {
		return nil, err
	}

	totals := wealth.Aggregate(assets)
	if p.Automatic && totals.ZakatableWealth.LessThan(threshold.ThresholdValue) {
		return nil, &domain.InvalidStateTransitionError{
			CurrentStatus: "",
			Event:         "create",
			Reason:        "zakatable wealth is below the nisab threshold",
		}
	}

	now := l.now()
	rec := &Record{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		Status:          domain.StatusDraft,
		HawlStartDate:   now,
		HawlEndDate:     now.AddDate(0, 0, domain.HawlDays),
		TotalWealth:     totals.TotalWealth,
		ZakatableWealth: totals.ZakatableWealth,
		ZakatAmount:     wealth.ZakatDue(totals.ZakatableWealth),
		NisabThreshold:  threshold.ThresholdValue,
		NisabBasis:      p.Basis,
		Currency:        p.Currency,
		AssetBreakdown:  snapshotOf(assets, now),
		AssetScope:      p.AssetIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := l.repo.Create(rec); err != nil {
		if errors.Is(err, ErrDraftExists) {
			// Lost a race against a concurrent create; the index held the invariant.
			return nil, &domain.InvalidStateTransitionError{
				CurrentStatus: domain.StatusDraft,
				Event:         "create",
				Reason:        "an active draft already exists for this user",
			}
		}
		return nil, err
	}

	if _, err := l.auditRepo.Append(rec.ID, domain.AuditCreated, p.UserID, nil); err != nil {
		// A record without its mandatory CREATED entry violates audit
		// completeness; compensate by removing the record.
		if delErr := l.repo.Delete(rec.ID); delErr != nil {
			l.log.Error().Err(delErr).Str("record_id", rec.ID).
				Msg("Failed to roll back record after audit failure")
		}
		return nil, err
	}

	l.log.Info().
		Str("record_id", rec.ID).
		Str("user_id", p.UserID).
		Bool("automatic", p.Automatic).
		Str("zakatable", rec.ZakatableWealth.String()).
		Msg("Draft record created")

	return rec, nil
}

// Get returns a record owned by userID.
func (l *Lifecycle) Get(userID, recordID string) (*Record, error) {
	return l.repo.GetForUser(recordID, userID)
}

// List returns the user's records, optionally filtered by status.
func (l *Lifecycle) List(userID string, status domain.RecordStatus) ([]Record, error) {
	if status != "" && !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status filter")
	}
	return l.repo.ListForUser(userID, status)
}

// Refresh re-derives a DRAFT's snapshot and totals from current asset data.
// It is an idempotent re-derivation, not a content edit, so no audit entry is
// appended. With save=false the recomputed record is returned without being
// persisted.
func (l *Lifecycle) Refresh(ctx context.Context, userID, recordID string, save bool) (*Record, error) {
	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusDraft {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "refresh",
			Reason:        "only drafts re-derive their snapshot",
		}
	}

	assets, err := l.assets.AssetsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for user %s: %w", userID, err)
	}
	// A record created over an asset subset keeps that scoping on refresh.
	assets = filterAssets(assets, rec.AssetScope)

	totals := wealth.Aggregate(assets)
	now := l.now()
	rec.TotalWealth = totals.TotalWealth
	rec.ZakatableWealth = totals.ZakatableWealth
	rec.ZakatAmount = wealth.ZakatDue(totals.ZakatableWealth)
	rec.AssetBreakdown = snapshotOf(assets, now)

	if save {
		rec.UpdatedAt = now
		if err := l.repo.Update(rec); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// UpdateDraftNotes changes the free-text notes on a DRAFT. Notes are not a
// financial field, so no audit entry is required before finalization.
func (l *Lifecycle) UpdateDraftNotes(userID, recordID, notes string) (*Record, error) {
	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusDraft {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "update",
			Reason:        "notes are edited on drafts; finalized records require an unlock",
		}
	}

	rec.UserNotes = notes
	rec.UpdatedAt = l.now()
	if err := l.repo.Update(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Finalize freezes a DRAFT whose Hawl has elapsed. Premature finalization is
// rejected; human confirmation is the only caller of this path.
func (l *Lifecycle) Finalize(userID, recordID string) (*Record, error) {
	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusDraft {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "finalize",
		}
	}

	now := l.now()
	if !rec.HawlElapsed(now) {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "finalize",
			Reason:        fmt.Sprintf("hawl period ends %s", rec.HawlEndDate.Format(time.RFC3339)),
		}
	}

	rec.Status = domain.StatusFinalized
	rec.ZakatAmount = wealth.ZakatDue(rec.ZakatableWealth)
	rec.UpdatedAt = now
	if err := l.repo.Update(rec); err != nil {
		return nil, err
	}

	if _, err := l.auditRepo.Append(rec.ID, domain.AuditFinalized, userID, nil); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("record_id", rec.ID).
		Str("zakat_amount", rec.ZakatAmount.String()).
		Msg("Record finalized")

	return rec, nil
}

// Delete permanently removes a DRAFT record and its audit trail. Finalized
// records are never hard-deleted.
func (l *Lifecycle) Delete(userID, recordID string) error {
	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return err
	}
	if rec.Status != domain.StatusDraft {
		return &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "delete",
			Reason:        "finalized records are never hard-deleted",
		}
	}

	if err := l.repo.Delete(recordID); err != nil {
		return err
	}
	if err := l.auditRepo.DeleteForRecord(recordID); err != nil {
		return err
	}

	l.locks.Delete(recordID)
	l.log.Info().Str("record_id", recordID).Msg("Draft record deleted")
	return nil
}

// Unlock opens a FINALIZED record for edits. The reason is mandatory,
// length-checked, and stored encrypted in the audit trail.
func (l *Lifecycle) Unlock(userID, recordID, reason string) (*Record, error) {
	if utf8.RuneCountInString(reason) < MinUnlockReasonLen {
		return nil, domain.NewValidationError("reason",
			fmt.Sprintf("unlock reason must be at least %d characters", MinUnlockReasonLen))
	}

	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusFinalized {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "unlock",
		}
	}

	rec.Status = domain.StatusUnlocked
	rec.UpdatedAt = l.now()
	if err := l.repo.Update(rec); err != nil {
		return nil, err
	}

	if _, err := l.auditRepo.Append(rec.ID, domain.AuditUnlocked, userID, audit.UnlockPayload{Reason: reason}); err != nil {
		return nil, err
	}

	l.log.Info().Str("record_id", rec.ID).Msg("Record unlocked for edit")
	return rec, nil
}

// EditFields is the set of changes applied to an UNLOCKED record.
// Nil decimal pointers mean "unchanged".
type EditFields struct {
	TotalWealth     *decimal.Decimal
	ZakatableWealth *decimal.Decimal
	UserNotes       *string
}

func (e EditFields) empty() bool {
	return e.TotalWealth == nil && e.ZakatableWealth == nil && e.UserNotes == nil
}

// Edit applies field-level changes to an UNLOCKED record and appends an
// EDITED audit entry carrying the diff. When total wealth is edited and the
// zakatable base previously tracked it exactly, the base follows the edit so
// the obligation stays consistent with a fully-zakatable breakdown.
func (l *Lifecycle) Edit(userID, recordID string, fields EditFields) (*Record, error) {
	if fields.empty() {
		return nil, domain.NewValidationError("fields", "no editable fields provided")
	}
	if fields.TotalWealth != nil && fields.TotalWealth.IsNegative() {
		return nil, domain.NewValidationError("total_wealth", "must not be negative")
	}
	if fields.ZakatableWealth != nil && fields.ZakatableWealth.IsNegative() {
		return nil, domain.NewValidationError("zakatable_wealth", "must not be negative")
	}

	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusUnlocked {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "edit",
			Reason:        "fields are only editable while unlocked",
		}
	}

	var changes []audit.FieldChange

	if fields.TotalWealth != nil && !fields.TotalWealth.Equal(rec.TotalWealth) {
		changes = append(changes, audit.FieldChange{
			Field: "total_wealth", From: rec.TotalWealth.String(), To: fields.TotalWealth.String(),
		})
		trackedTotal := rec.ZakatableWealth.Equal(rec.TotalWealth)
		rec.TotalWealth = *fields.TotalWealth
		if trackedTotal && fields.ZakatableWealth == nil {
			changes = append(changes, audit.FieldChange{
				Field: "zakatable_wealth", From: rec.ZakatableWealth.String(), To: fields.TotalWealth.String(),
			})
			rec.ZakatableWealth = *fields.TotalWealth
		}
	}
	if fields.ZakatableWealth != nil && !fields.ZakatableWealth.Equal(rec.ZakatableWealth) {
		changes = append(changes, audit.FieldChange{
			Field: "zakatable_wealth", From: rec.ZakatableWealth.String(), To: fields.ZakatableWealth.String(),
		})
		rec.ZakatableWealth = *fields.ZakatableWealth
	}
	if fields.UserNotes != nil && *fields.UserNotes != rec.UserNotes {
		changes = append(changes, audit.FieldChange{
			Field: "user_notes", From: rec.UserNotes, To: *fields.UserNotes,
		})
		rec.UserNotes = *fields.UserNotes
	}

	if len(changes) == 0 {
		// Nothing actually changed; no audit noise.
		return rec, nil
	}

	rec.UpdatedAt = l.now()
	if err := l.repo.Update(rec); err != nil {
		return nil, err
	}

	if _, err := l.auditRepo.Append(rec.ID, domain.AuditEdited, userID, audit.EditPayload{Changes: changes}); err != nil {
		return nil, err
	}

	return rec, nil
}

// Refinalize freezes an UNLOCKED record again, recomputing the obligation
// from the (possibly edited) zakatable base.
func (l *Lifecycle) Refinalize(userID, recordID string) (*Record, error) {
	mu := l.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.repo.GetForUser(recordID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusUnlocked {
		return nil, &domain.InvalidStateTransitionError{
			RecordID:      rec.ID,
			CurrentStatus: rec.Status,
			Event:         "refinalize",
		}
	}

	rec.Status = domain.StatusFinalized
	rec.ZakatAmount = wealth.ZakatDue(rec.ZakatableWealth)
	rec.UpdatedAt = l.now()
	if err := l.repo.Update(rec); err != nil {
		return nil, err
	}

	if _, err := l.auditRepo.Append(rec.ID, domain.AuditRefinalized, userID, nil); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("record_id", rec.ID).
		Str("zakat_amount", rec.ZakatAmount.String()).
		Msg("Record refinalized")

	return rec, nil
}

// AuditTrail returns the record's audit entries, oldest first. Ownership is
// checked the same way as any other read.
func (l *Lifecycle) AuditTrail(userID, recordID string) ([]audit.Entry, error) {
	if _, err := l.repo.GetForUser(recordID, userID); err != nil {
		return nil, err
	}
	return l.auditRepo.ListFor(recordID)
}

// FindActiveDraft exposes the single-draft query for the hawl engine.
func (l *Lifecycle) FindActiveDraft(userID string) (*Record, error) {
	return l.repo.FindActiveDraft(userID)
}

func filterAssets(assets []domain.Asset, ids []string) []domain.Asset {
	if len(ids) == 0 {
		return assets
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]domain.Asset, 0, len(ids))
	for _, a := range assets {
		if keep[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

func snapshotOf(assets []domain.Asset, capturedAt time.Time) []SnapshotItem {
	items := make([]SnapshotItem, 0, len(assets))
	for _, a := range assets {
		items = append(items, SnapshotItem{
			AssetID:     a.ID,
			Name:        a.Name,
			Category:    a.Category,
			Value:       a.Value,
			IsZakatable: a.IsZakatable,
			CapturedAt:  capturedAt,
		})
	}
	return items
}
