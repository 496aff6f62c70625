// Package metalprice provides gold and silver spot price fetching and caching.
package metalprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/pricecache"
)

// Quote is a spot price per gram for one metal in one currency.
type Quote struct {
	Metal        string
	Currency     string
	PricePerGram decimal.Decimal
	AsOf         time.Time
	Stale        bool
}

// Client fetches precious metal prices from an HTTP provider with a
// persistent cache. If the provider fails, it returns stale cached data when
// available (stale data > no data).
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *pricecache.Repository
	cacheTTL  time.Duration
}

// NewClient creates a new metal price client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL, apiKey string, cacheTTL time.Duration, cacheRepo *pricecache.Repository, log zerolog.Logger) *Client {
	if cacheTTL <= 0 {
		cacheTTL = pricecache.DefaultTTL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "metalprice").Logger(),
		cacheRepo: cacheRepo,
		cacheTTL:  cacheTTL,
	}
}

// cachedPrice is the structure stored in the cache.
type cachedPrice struct {
	PricePerGram string `json:"price_per_gram"`
}

// GetPricePerGram fetches the spot price per gram for a metal with cache.
// A fresh cache hit short-circuits the provider call entirely. On provider
// failure an expired cache entry is returned with Stale=true; with no cached
// value at all the failure surfaces as a ProviderUnavailableError.
func (c *Client) GetPricePerGram(ctx context.Context, metal domain.NisabBasis, currency string) (*Quote, error) {
	cacheKey := pricecache.Key(string(metal), currency)

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		entry, err := c.cacheRepo.GetIfFresh(cacheKey)
		if err == nil && entry != nil {
			var cached cachedPrice
			if err := json.Unmarshal(entry.Data, &cached); err == nil {
				price, perr := decimal.NewFromString(cached.PricePerGram)
				if perr == nil {
					c.log.Debug().
						Str("metal", string(metal)).
						Str("currency", currency).
						Str("price", cached.PricePerGram).
						Msg("Cache hit")
					return &Quote{
						Metal:        string(metal),
						Currency:     currency,
						PricePerGram: price,
						AsOf:         entry.FetchedAt,
						Stale:        false,
					}, nil
				}
			}
		}
	}

	// Fetch from provider
	price, err := c.fetch(ctx, metal, currency)
	if err != nil {
		// Provider failed - fall back to stale cached data if available
		if quote, ok := c.getStaleFromCache(cacheKey, metal, currency); ok {
			c.log.Warn().
				Err(err).
				Str("metal", string(metal)).
				Str("currency", currency).
				Str("price", quote.PricePerGram.String()).
				Msg("Provider failed, using stale cached price")
			return quote, nil
		}
		return nil, &domain.ProviderUnavailableError{Provider: "metalprice", Err: err}
	}

	// Cache persistently
	if c.cacheRepo != nil {
		cached := cachedPrice{PricePerGram: price.String()}
		if err := c.cacheRepo.Store(cacheKey, cached, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache metal price")
		}
	}

	c.log.Info().
		Str("metal", string(metal)).
		Str("currency", currency).
		Str("price", price.String()).
		Msg("Fetched spot price")

	return &Quote{
		Metal:        string(metal),
		Currency:     currency,
		PricePerGram: price,
		AsOf:         time.Now().UTC(),
		Stale:        false,
	}, nil
}

// fetch calls the HTTP provider for a single metal/currency pair.
func (c *Client) fetch(ctx context.Context, metal domain.NisabBasis, currency string) (decimal.Decimal, error) {
	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("currency", currency)
	q.Set("unit", "g")
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result struct {
		Metals map[string]float64 `json:"metals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse provider response: %w", err)
	}

	price, exists := result.Metals[strings.ToLower(string(metal))]
	if !exists {
		return decimal.Zero, fmt.Errorf("price not found for %s in %s", metal, currency)
	}
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("provider returned non-positive price %f for %s", price, metal)
	}

	return decimal.NewFromFloat(price), nil
}

// getStaleFromCache retrieves a cached quote even if expired.
// Use this as a fallback when provider calls fail.
func (c *Client) getStaleFromCache(cacheKey string, metal domain.NisabBasis, currency string) (*Quote, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	entry, err := c.cacheRepo.Get(cacheKey)
	if err != nil || entry == nil {
		return nil, false
	}

	var cached cachedPrice
	if err := json.Unmarshal(entry.Data, &cached); err != nil {
		return nil, false
	}

	price, err := decimal.NewFromString(cached.PricePerGram)
	if err != nil {
		return nil, false
	}

	return &Quote{
		Metal:        string(metal),
		Currency:     currency,
		PricePerGram: price,
		AsOf:         entry.FetchedAt,
		Stale:        !entry.Fresh,
	}, true
}
