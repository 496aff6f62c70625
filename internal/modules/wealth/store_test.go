package wealth

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/database"
	"github.com/mizanhq/mizan/internal/domain"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_assets_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "records",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	cleanup := func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
	}
	return NewStore(db.Conn(), zerolog.Nop()), cleanup
}

func TestStore_CreateAndList(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:        "Savings account",
		Category:    "CASH",
		Value:       decimal.RequireFromString("5000"),
		IsZakatable: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:        "Family home",
		Category:    "PROPERTY",
		Value:       decimal.RequireFromString("200000"),
		IsZakatable: false,
	})
	require.NoError(t, err)

	assets, err := store.AssetsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, assets, 2)

	totals := Aggregate(assets)
	assert.True(t, totals.TotalWealth.Equal(decimal.RequireFromString("205000")))
	assert.True(t, totals.ZakatableWealth.Equal(decimal.RequireFromString("5000")))
}

func TestStore_CreateValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.CreateAsset(ctx, "user-1", domain.Asset{Value: decimal.RequireFromString("10")})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:  "negative",
		Value: decimal.RequireFromString("-1"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestStore_UpdateAsset(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:        "Brokerage",
		Category:    "INVESTMENT",
		Value:       decimal.RequireFromString("1000"),
		IsZakatable: true,
	})
	require.NoError(t, err)

	newValue := decimal.RequireFromString("1250.50")
	updated, err := store.UpdateAsset(ctx, "user-1", created.ID, AssetUpdate{Value: &newValue})
	require.NoError(t, err)
	assert.True(t, updated.Value.Equal(newValue))
	assert.Equal(t, "Brokerage", updated.Name)
}

func TestStore_UpdateAsset_OwnershipMiss(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:  "Cash",
		Value: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	v := decimal.RequireFromString("200")
	_, err = store.UpdateAsset(ctx, "user-2", created.ID, AssetUpdate{Value: &v})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_DeleteAsset(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, "user-1", domain.Asset{
		Name:  "Cash",
		Value: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteAsset(ctx, "user-1", created.ID))

	err = store.DeleteAsset(ctx, "user-1", created.ID)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_ActiveUserIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, userID := range []string{"user-b", "user-a", "user-b"} {
		_, err := store.CreateAsset(ctx, userID, domain.Asset{
			Name:  "Cash",
			Value: decimal.RequireFromString("100"),
		})
		require.NoError(t, err)
	}

	ids, err := store.ActiveUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a", "user-b"}, ids)
}
