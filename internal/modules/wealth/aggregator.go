// Package wealth computes a user's wealth totals from live asset data.
package wealth

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
)

// Totals holds the aggregated wealth figures for one user.
type Totals struct {
	TotalWealth     decimal.Decimal `json:"total_wealth"`
	ZakatableWealth decimal.Decimal `json:"zakatable_wealth"`
}

// AssetProvider is the outbound collaborator that owns asset storage.
// The core never persists assets itself.
type AssetProvider interface {
	AssetsForUser(ctx context.Context, userID string) ([]domain.Asset, error)
}

// UserDirectory enumerates users for the detection job.
type UserDirectory interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// Aggregate sums asset values into total and zakatable wealth.
// Pure function: no side effects, no persistence. A linear scan keeps it
// comfortably inside the latency contract for realistic asset counts.
func Aggregate(assets []domain.Asset) Totals {
	total := decimal.Zero
	zakatable := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.Value)
		if a.IsZakatable {
			zakatable = zakatable.Add(a.Value)
		}
	}
	return Totals{TotalWealth: total, ZakatableWealth: zakatable}
}

// ZakatDue computes the obligation for a zakatable base: 2.5% of the entire
// base, not just the excess over nisab.
func ZakatDue(zakatable decimal.Decimal) decimal.Decimal {
	return zakatable.Mul(domain.ZakatRate)
}
