package pricecache

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/database"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_pricecache_*.db")
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
	return db, cleanup
}

type testPayload struct {
	PricePerGram string `json:"price_per_gram"`
}

func TestRepository_StoreAndGetIfFresh(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db.Conn())
	key := Key("GOLD", "USD")

	require.NoError(t, repo.Store(key, testPayload{PricePerGram: "85.40"}, time.Hour))

	entry, err := repo.GetIfFresh(key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Fresh)

	var payload testPayload
	require.NoError(t, json.Unmarshal(entry.Data, &payload))
	assert.Equal(t, "85.40", payload.PricePerGram)
}

func TestRepository_GetIfFresh_MissingKey(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db.Conn())

	entry, err := repo.GetIfFresh(Key("SILVER", "EUR"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRepository_ExpiredServedOnlyByGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db.Conn())
	key := Key("GOLD", "USD")

	// Negative TTL produces an already-expired row.
	require.NoError(t, repo.Store(key, testPayload{PricePerGram: "85.40"}, -time.Hour))

	fresh, err := repo.GetIfFresh(key)
	require.NoError(t, err)
	assert.Nil(t, fresh)

	stale, err := repo.Get(key)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.False(t, stale.Fresh)
}

func TestRepository_StoreOverwrites(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db.Conn())
	key := Key("GOLD", "USD")

	require.NoError(t, repo.Store(key, testPayload{PricePerGram: "80.00"}, time.Hour))
	require.NoError(t, repo.Store(key, testPayload{PricePerGram: "85.40"}, time.Hour))

	entry, err := repo.GetIfFresh(key)
	require.NoError(t, err)
	require.NotNil(t, entry)

	var payload testPayload
	require.NoError(t, json.Unmarshal(entry.Data, &payload))
	assert.Equal(t, "85.40", payload.PricePerGram)
}

func TestRepository_DeleteExpired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db.Conn())

	// Expired beyond the retention window.
	require.NoError(t, repo.Store(Key("GOLD", "USD"), testPayload{PricePerGram: "85.40"}, -48*time.Hour))
	// Still fresh.
	require.NoError(t, repo.Store(Key("SILVER", "USD"), testPayload{PricePerGram: "1.05"}, time.Hour))

	deleted, err := repo.DeleteExpired(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.Get(Key("SILVER", "USD"))
	require.NoError(t, err)
	assert.NotNil(t, remaining)

	gone, err := repo.Get(Key("GOLD", "USD"))
	require.NoError(t, err)
	assert.Nil(t, gone)
}
