package nisab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/clients/metalprice"
	"github.com/mizanhq/mizan/internal/domain"
)

type fakePriceSource struct {
	mu    sync.Mutex
	calls int
	quote *metalprice.Quote
	err   error
	delay time.Duration
}

func (f *fakePriceSource) GetPricePerGram(ctx context.Context, metal domain.NisabBasis, currency string) (*metalprice.Quote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func TestService_GoldThreshold(t *testing.T) {
	prices := &fakePriceSource{quote: &metalprice.Quote{
		Metal:        "GOLD",
		Currency:     "USD",
		PricePerGram: decimal.RequireFromString("100"),
		AsOf:         time.Now(),
	}}
	svc := NewService(prices, zerolog.Nop())

	threshold, err := svc.GetThreshold(context.Background(), domain.BasisGold, "USD")
	require.NoError(t, err)

	// 87.48g x 100/g
	assert.True(t, threshold.ThresholdValue.Equal(decimal.RequireFromString("8748")),
		"got %s", threshold.ThresholdValue)
	assert.False(t, threshold.Stale)
}

func TestService_SilverThreshold(t *testing.T) {
	prices := &fakePriceSource{quote: &metalprice.Quote{
		Metal:        "SILVER",
		Currency:     "USD",
		PricePerGram: decimal.RequireFromString("1.05"),
		AsOf:         time.Now(),
	}}
	svc := NewService(prices, zerolog.Nop())

	threshold, err := svc.GetThreshold(context.Background(), domain.BasisSilver, "USD")
	require.NoError(t, err)

	// 612.36g x 1.05/g
	assert.True(t, threshold.ThresholdValue.Equal(decimal.RequireFromString("642.978")),
		"got %s", threshold.ThresholdValue)
}

func TestService_StalePassthrough(t *testing.T) {
	prices := &fakePriceSource{quote: &metalprice.Quote{
		Metal:        "GOLD",
		Currency:     "USD",
		PricePerGram: decimal.RequireFromString("100"),
		AsOf:         time.Now().Add(-48 * time.Hour),
		Stale:        true,
	}}
	svc := NewService(prices, zerolog.Nop())

	threshold, err := svc.GetThreshold(context.Background(), domain.BasisGold, "USD")
	require.NoError(t, err)
	assert.True(t, threshold.Stale)
}

func TestService_Validation(t *testing.T) {
	svc := NewService(&fakePriceSource{}, zerolog.Nop())

	_, err := svc.GetThreshold(context.Background(), "PLATINUM", "USD")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.GetThreshold(context.Background(), domain.BasisGold, "US")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestService_ConcurrentCallsShareOneFetch(t *testing.T) {
	prices := &fakePriceSource{
		quote: &metalprice.Quote{
			Metal:        "GOLD",
			Currency:     "USD",
			PricePerGram: decimal.RequireFromString("100"),
			AsOf:         time.Now(),
		},
		delay: 50 * time.Millisecond,
	}
	svc := NewService(prices, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetThreshold(context.Background(), domain.BasisGold, "USD")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	prices.mu.Lock()
	defer prices.mu.Unlock()
	assert.Equal(t, 1, prices.calls)
}
