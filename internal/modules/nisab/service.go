// Package nisab computes the wealth threshold above which the zakat
// obligation applies, from live or cached precious metal prices.
package nisab

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mizanhq/mizan/internal/clients/metalprice"
	"github.com/mizanhq/mizan/internal/domain"
)

// Threshold is the nisab threshold in the requested currency.
type Threshold struct {
	Basis          domain.NisabBasis `json:"basis"`
	Currency       string            `json:"currency"`
	ThresholdValue decimal.Decimal   `json:"threshold_value"`
	PricePerGram   decimal.Decimal   `json:"price_per_gram"`
	AsOf           time.Time         `json:"as_of"`
	Stale          bool              `json:"stale"`
}

// PriceSource abstracts the metal price client for testing.
type PriceSource interface {
	GetPricePerGram(ctx context.Context, metal domain.NisabBasis, currency string) (*metalprice.Quote, error)
}

// Service computes nisab thresholds.
type Service struct {
	prices PriceSource
	group  singleflight.Group
	log    zerolog.Logger
}

// NewService creates a new nisab service.
func NewService(prices PriceSource, log zerolog.Logger) *Service {
	return &Service{
		prices: prices,
		log:    log.With().Str("service", "nisab").Logger(),
	}
}

// GetThreshold returns the nisab threshold for a basis and currency.
// Concurrent calls for the same pair share a single provider round trip.
// A provider outage never fails the caller as long as any cached price
// exists; the response carries Stale=true instead.
func (s *Service) GetThreshold(ctx context.Context, basis domain.NisabBasis, currency string) (*Threshold, error) {
	if !basis.Valid() {
		return nil, domain.NewValidationError("basis", "must be GOLD or SILVER")
	}
	if len(currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	key := string(basis) + ":" + currency
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.prices.GetPricePerGram(ctx, basis, currency)
	})
	if err != nil {
		return nil, err
	}
	quote := v.(*metalprice.Quote)

	grams := domain.NisabGoldGrams
	if basis == domain.BasisSilver {
		grams = domain.NisabSilverGrams
	}

	t := &Threshold{
		Basis:          basis,
		Currency:       currency,
		ThresholdValue: quote.PricePerGram.Mul(grams),
		PricePerGram:   quote.PricePerGram,
		AsOf:           quote.AsOf,
		Stale:          quote.Stale,
	}

	if t.Stale {
		s.log.Warn().
			Str("basis", string(basis)).
			Str("currency", currency).
			Time("as_of", t.AsOf).
			Msg("Serving threshold from stale price")
	}

	return t, nil
}
