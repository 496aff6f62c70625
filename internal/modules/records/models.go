package records

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
)

// SnapshotItem is one asset captured in a record's immutable breakdown.
type SnapshotItem struct {
	AssetID     string          `json:"asset_id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Value       decimal.Decimal `json:"value"`
	IsZakatable bool            `json:"is_zakatable"`
	CapturedAt  time.Time       `json:"captured_at"`
}

// Record is one nisab year record: a user's zakat obligation over one Hawl.
// AssetBreakdown and UserNotes are encrypted at rest; the struct carries the
// decrypted view.
type Record struct {
	ID     string              `json:"id"`
	UserID string              `json:"user_id"`
	Status domain.RecordStatus `json:"status"`

	HawlStartDate time.Time `json:"hawl_start_date"`
	HawlEndDate   time.Time `json:"hawl_end_date"`

	TotalWealth     decimal.Decimal `json:"total_wealth"`
	ZakatableWealth decimal.Decimal `json:"zakatable_wealth"`
	ZakatAmount     decimal.Decimal `json:"zakat_amount"`

	NisabThreshold decimal.Decimal   `json:"nisab_threshold_at_creation"`
	NisabBasis     domain.NisabBasis `json:"nisab_basis"`
	Currency       string            `json:"currency"`

	AssetBreakdown []SnapshotItem `json:"asset_breakdown"`
	// AssetScope restricts the record to a chosen subset of asset ids.
	// Empty means the record tracks all of the user's assets.
	AssetScope []string `json:"asset_scope,omitempty"`
	UserNotes  string   `json:"user_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HawlElapsed reports whether the obligation period has completed.
func (r *Record) HawlElapsed(now time.Time) bool {
	return !now.Before(r.HawlEndDate)
}
