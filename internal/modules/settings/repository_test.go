package settings

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/internal/database"
	"github.com/mizanhq/mizan/internal/domain"
)

func setupTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_settings_*.db")
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
	return NewRepository(db.Conn(), domain.BasisGold, "USD", zerolog.Nop()), cleanup
}

func TestRepository_DefaultsWhenUnset(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	prefs, err := repo.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BasisGold, prefs.NisabBasis)
	assert.Equal(t, "USD", prefs.Currency)
	assert.True(t, prefs.UpdatedAt.IsZero())
}

func TestRepository_PutAndGet(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	saved, err := repo.Put("user-1", domain.BasisSilver, "EUR")
	require.NoError(t, err)
	assert.Equal(t, domain.BasisSilver, saved.NisabBasis)

	prefs, err := repo.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BasisSilver, prefs.NisabBasis)
	assert.Equal(t, "EUR", prefs.Currency)
	assert.False(t, prefs.UpdatedAt.IsZero())

	// Upsert replaces the previous row.
	_, err = repo.Put("user-1", domain.BasisGold, "GBP")
	require.NoError(t, err)

	prefs, err = repo.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BasisGold, prefs.NisabBasis)
	assert.Equal(t, "GBP", prefs.Currency)
}

func TestRepository_PutValidation(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.Put("user-1", "PLATINUM", "USD")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = repo.Put("user-1", domain.BasisGold, "DOLLARS")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
