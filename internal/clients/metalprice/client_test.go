package metalprice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/database"
	"github.com/mizanhq/mizan/internal/domain"
	"github.com/mizanhq/mizan/internal/pricecache"
)

func setupCacheRepo(t *testing.T) (*pricecache.Repository, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_metalprice_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	cleanup := func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
	}
	return pricecache.NewRepository(db.Conn()), cleanup
}

func TestClient_FetchesAndCaches(t *testing.T) {
	repo, cleanup := setupCacheRepo(t)
	defer cleanup()

	var calls int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		assert.Equal(t, "g", r.URL.Query().Get("unit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"metals":{"gold":85.40,"silver":1.05}}`))
	}))
	defer provider.Close()

	client := NewClient(provider.URL, "", time.Hour, repo, zerolog.Nop())

	quote, err := client.GetPricePerGram(context.Background(), domain.BasisGold, "USD")
	require.NoError(t, err)
	assert.Equal(t, "85.4", quote.PricePerGram.String())
	assert.False(t, quote.Stale)

	// Second call is served from the fresh cache.
	quote, err = client.GetPricePerGram(context.Background(), domain.BasisGold, "USD")
	require.NoError(t, err)
	assert.Equal(t, "85.4", quote.PricePerGram.String())
	assert.False(t, quote.Stale)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_StaleFallbackOnProviderFailure(t *testing.T) {
	repo, cleanup := setupCacheRepo(t)
	defer cleanup()

	// Seed an expired cache entry.
	key := pricecache.Key(string(domain.BasisGold), "USD")
	require.NoError(t, repo.Store(key, map[string]string{"price_per_gram": "82.00"}, -time.Hour))

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer provider.Close()

	client := NewClient(provider.URL, "", time.Hour, repo, zerolog.Nop())

	quote, err := client.GetPricePerGram(context.Background(), domain.BasisGold, "USD")
	require.NoError(t, err)
	assert.Equal(t, "82", quote.PricePerGram.String())
	assert.True(t, quote.Stale)
}

func TestClient_ProviderUnavailableWithEmptyCache(t *testing.T) {
	repo, cleanup := setupCacheRepo(t)
	defer cleanup()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer provider.Close()

	client := NewClient(provider.URL, "", time.Hour, repo, zerolog.Nop())

	_, err := client.GetPricePerGram(context.Background(), domain.BasisGold, "USD")
	require.Error(t, err)
	assert.True(t, domain.IsProviderUnavailable(err))
}

func TestClient_RejectsNonPositivePrice(t *testing.T) {
	repo, cleanup := setupCacheRepo(t)
	defer cleanup()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metals":{"gold":0}}`))
	}))
	defer provider.Close()

	client := NewClient(provider.URL, "", time.Hour, repo, zerolog.Nop())

	_, err := client.GetPricePerGram(context.Background(), domain.BasisGold, "USD")
	require.Error(t, err)
	assert.True(t, domain.IsProviderUnavailable(err))
}

func TestClient_MissingMetalInResponse(t *testing.T) {
	repo, cleanup := setupCacheRepo(t)
	defer cleanup()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metals":{"platinum":30.5}}`))
	}))
	defer provider.Close()

	client := NewClient(provider.URL, "", time.Hour, repo, zerolog.Nop())

	_, err := client.GetPricePerGram(context.Background(), domain.BasisSilver, "USD")
	require.Error(t, err)
	assert.True(t, domain.IsProviderUnavailable(err))
}
