// Package hawl decides when a lunar obligation year starts and completes.
package hawl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/modules/records"
	"github.com/mizanhq/mizan/internal/modules/settings"
	"github.com/mizanhq/mizan/internal/modules/wealth"
)

// Action is the outcome of one evaluation.
type Action string

const (
	// ActionNone means nothing changed for the user.
	ActionNone Action = "NONE"
	// ActionStarted means a new draft was opened because wealth crossed nisab.
	ActionStarted Action = "STARTED"
	// ActionCompletable means the draft's Hawl has elapsed. Finalization stays
	// a human decision; the engine only surfaces readiness.
	ActionCompletable Action = "COMPLETABLE"
)

// Decision is the result of evaluating one user at one instant.
type Decision struct {
	UserID          string          `json:"user_id"`
	Action          Action          `json:"action"`
	RecordID        string          `json:"record_id,omitempty"`
	ZakatableWealth decimal.Decimal `json:"zakatable_wealth"`
	Threshold       decimal.Decimal `json:"threshold"`
	BelowNisab      bool            `json:"below_nisab"`
	StalePrice      bool            `json:"stale_price"`
}

// RecordService is the slice of the record lifecycle the engine drives.
type RecordService interface {
	FindActiveDraft(userID string) (*records.Record, error)
	Create(ctx context.Context, p records.CreateParams) (*records.Record, error)
}

// PreferenceSource resolves a user's basis and currency.
type PreferenceSource interface {
	Get(userID string) (*settings.Preferences, error)
}

// Engine evaluates users against the nisab threshold and the Hawl calendar.
type Engine struct {
	recs   RecordService
	assets wealth.AssetProvider
	nisab  records.ThresholdSource
	prefs  PreferenceSource
	log    zerolog.Logger
}

// NewEngine creates the hawl engine.
func NewEngine(recs RecordService, assets wealth.AssetProvider, nisabSvc records.ThresholdSource, prefs PreferenceSource, log zerolog.Logger) *Engine {
	return &Engine{
		recs:   recs,
		assets: assets,
		nisab:  nisabSvc,
		prefs:  prefs,
		log:    log.With().Str("service", "hawl").Logger(),
	}
}

// Evaluate runs the detection rules for one user at the given instant.
// With no active draft it opens one when zakatable wealth meets the
// threshold. With an active draft it reports completion once the Hawl has
// elapsed, and surfaces a below-nisab dip without closing the draft; the
// dip is resolved at finalization time, not mid-Hawl.
func (e *Engine) Evaluate(ctx context.Context, now time.Time, userID string) (*Decision, error) {
	prefs, err := e.prefs.Get(userID)
	if err != nil {
		return nil, err
	}

	draft, err := e.recs.FindActiveDraft(userID)
	if err != nil {
		return nil, err
	}

	d := &Decision{UserID: userID, Action: ActionNone}

	if draft == nil {
		threshold, err := e.nisab.GetThreshold(ctx, prefs.NisabBasis, prefs.Currency)
		if err != nil {
			return nil, err
		}

		assets, err := e.assets.AssetsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assets for user %s: %w", userID, err)
		}
		totals := wealth.Aggregate(assets)

		d.ZakatableWealth = totals.ZakatableWealth
		d.Threshold = threshold.ThresholdValue
		d.StalePrice = threshold.Stale

		if totals.ZakatableWealth.LessThan(threshold.ThresholdValue) {
			return d, nil
		}

		rec, err := e.recs.Create(ctx, records.CreateParams{
			UserID:    userID,
			Basis:     prefs.NisabBasis,
			Currency:  prefs.Currency,
			Automatic: true,
		})
		if err != nil {
			// A concurrent manual create is a benign race, not a failure.
			if domain.IsInvalidTransition(err) {
				e.log.Debug().Str("user_id", userID).Msg("Draft appeared during evaluation")
				return d, nil
			}
			return nil, err
		}

		d.Action = ActionStarted
		d.RecordID = rec.ID
		e.log.Info().
			Str("user_id", userID).
			Str("record_id", rec.ID).
			Str("zakatable", totals.ZakatableWealth.String()).
			Str("threshold", threshold.ThresholdValue.String()).
			Msg("Hawl started")
		return d, nil
	}

	d.RecordID = draft.ID
	d.Threshold = draft.NisabThreshold

	assets, err := e.assets.AssetsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for user %s: %w", userID, err)
	}
	totals := wealth.Aggregate(assets)
	d.ZakatableWealth = totals.ZakatableWealth

	// The dip compares against the threshold captured at creation so a later
	// price move does not silently change the rule mid-Hawl.
	if totals.ZakatableWealth.LessThan(draft.NisabThreshold) {
		d.BelowNisab = true
		e.log.Warn().
			Str("user_id", userID).
			Str("record_id", draft.ID).
			Str("zakatable", totals.ZakatableWealth.String()).
			Str("threshold", draft.NisabThreshold.String()).
			Msg("Wealth dipped below nisab mid-Hawl; draft retained")
	}

	if draft.HawlElapsed(now) {
		d.Action = ActionCompletable
		e.log.Info().
			Str("user_id", userID).
			Str("record_id", draft.ID).
			Time("hawl_end", draft.HawlEndDate).
			Msg("Hawl period completed; awaiting finalization")
	}

	return d, nil
}

// Progress is a live, non-persisted view of an active Hawl.
type Progress struct {
	RecordID        string          `json:"record_id"`
	HawlStartDate   time.Time       `json:"hawl_start_date"`
	HawlEndDate     time.Time       `json:"hawl_end_date"`
	ElapsedDays     int             `json:"elapsed_days"`
	RemainingDays   int             `json:"remaining_days"`
	Completable     bool            `json:"completable"`
	ZakatableWealth decimal.Decimal `json:"zakatable_wealth"`
	TotalWealth     decimal.Decimal `json:"total_wealth"`
	Threshold       decimal.Decimal `json:"threshold"`
	BelowNisab      bool            `json:"below_nisab"`
	ProjectedZakat  decimal.Decimal `json:"projected_zakat"`
}

// ProgressFor computes the live view for a user's active draft, or nil when
// the user has none. Nothing is persisted.
func (e *Engine) ProgressFor(ctx context.Context, now time.Time, userID string) (*Progress, error) {
	draft, err := e.recs.FindActiveDraft(userID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, nil
	}

	assets, err := e.assets.AssetsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for user %s: %w", userID, err)
	}
	totals := wealth.Aggregate(assets)

	elapsed := int(now.Sub(draft.HawlStartDate).Hours() / 24)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > domain.HawlDays {
		elapsed = domain.HawlDays
	}

	return &Progress{
		RecordID:        draft.ID,
		HawlStartDate:   draft.HawlStartDate,
		HawlEndDate:     draft.HawlEndDate,
		ElapsedDays:     elapsed,
		RemainingDays:   domain.HawlDays - elapsed,
		Completable:     draft.HawlElapsed(now),
		ZakatableWealth: totals.ZakatableWealth,
		TotalWealth:     totals.TotalWealth,
		Threshold:       draft.NisabThreshold,
		BelowNisab:      totals.ZakatableWealth.LessThan(draft.NisabThreshold),
		ProjectedZakat:  wealth.ZakatDue(totals.ZakatableWealth),
	}, nil
}
