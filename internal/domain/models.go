// Package domain holds the core types shared across modules.
// It has no infrastructure dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NisabBasis selects which metal the nisab threshold is derived from.
type NisabBasis string

const (
	BasisGold   NisabBasis = "GOLD"
	BasisSilver NisabBasis = "SILVER"
)

// Valid reports whether the basis is one of the two supported metals.
func (b NisabBasis) Valid() bool {
	return b == BasisGold || b == BasisSilver
}

// Nisab weight constants in grams. The thresholds are computed from the exact
// figures; the traditional values carry a ±0.5g documentation tolerance.
var (
	NisabGoldGrams   = decimal.RequireFromString("87.48")
	NisabSilverGrams = decimal.RequireFromString("612.36")
)

// ZakatRate is the obligation rate applied to the entire zakatable base.
var ZakatRate = decimal.RequireFromString("0.025")

// RecordStatus is the lifecycle state of a nisab year record.
type RecordStatus string

const (
	StatusDraft     RecordStatus = "DRAFT"
	StatusFinalized RecordStatus = "FINALIZED"
	StatusUnlocked  RecordStatus = "UNLOCKED"
)

// Valid reports whether the status is a known lifecycle state.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusFinalized, StatusUnlocked:
		return true
	}
	return false
}

// HawlDays is the lunar year approximation used for the obligation period.
// A 354-355 day tolerance is acceptable for calendar rounding; we use the
// fixed civil approximation.
const HawlDays = 354

// Asset is one wealth item as reported by the external asset provider.
type Asset struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Value       decimal.Decimal `json:"value"`
	IsZakatable bool            `json:"is_zakatable"`
	AddedAt     time.Time       `json:"added_at"`
}

// AuditEventType classifies an audit trail entry.
type AuditEventType string

const (
	AuditCreated     AuditEventType = "CREATED"
	AuditEdited      AuditEventType = "EDITED"
	AuditUnlocked    AuditEventType = "UNLOCKED"
	AuditRefinalized AuditEventType = "REFINALIZED"
	AuditFinalized   AuditEventType = "FINALIZED"
)
