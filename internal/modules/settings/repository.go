// Package settings stores per-user calculation preferences.
package settings

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/domain"
)

// Preferences are the per-user knobs for threshold calculation.
type Preferences struct {
	UserID     string            `json:"user_id"`
	NisabBasis domain.NisabBasis `json:"nisab_basis"`
	Currency   string            `json:"currency"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Repository handles user preference database operations. Users without a
// stored row get the configured defaults.
type Repository struct {
	db              *sql.DB
	defaultBasis    domain.NisabBasis
	defaultCurrency string
	log             zerolog.Logger
}

// NewRepository creates a new preferences repository.
func NewRepository(db *sql.DB, defaultBasis domain.NisabBasis, defaultCurrency string, log zerolog.Logger) *Repository {
	return &Repository{
		db:              db,
		defaultBasis:    defaultBasis,
		defaultCurrency: defaultCurrency,
		log:             log.With().Str("repo", "settings").Logger(),
	}
}

// Get returns the user's preferences, falling back to defaults when the user
// has never saved any.
func (r *Repository) Get(userID string) (*Preferences, error) {
	row := r.db.QueryRow(
		"SELECT nisab_basis, currency, updated_at FROM user_preferences WHERE user_id = ?",
		userID,
	)

	var basis, currency, updatedAt string
	err := row.Scan(&basis, &currency, &updatedAt)
	if err == sql.ErrNoRows {
		return &Preferences{
			UserID:     userID,
			NisabBasis: r.defaultBasis,
			Currency:   r.defaultCurrency,
		}, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "preferences get", Err: err}
	}

	p := &Preferences{
		UserID:     userID,
		NisabBasis: domain.NisabBasis(basis),
		Currency:   currency,
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "preferences get", Err: err}
	}

	return p, nil
}

// Put validates and upserts the user's preferences.
func (r *Repository) Put(userID string, basis domain.NisabBasis, currency string) (*Preferences, error) {
	if !basis.Valid() {
		return nil, domain.NewValidationError("nisab_basis", "must be GOLD or SILVER")
	}
	if len(currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now().UTC()
	_, err := r.db.Exec(
		`INSERT INTO user_preferences (user_id, nisab_basis, currency, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			nisab_basis = excluded.nisab_basis,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		userID, string(basis), currency, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "preferences put", Err: err}
	}

	r.log.Info().
		Str("user_id", userID).
		Str("basis", string(basis)).
		Str("currency", currency).
		Msg("Preferences updated")

	return &Preferences{UserID: userID, NisabBasis: basis, Currency: currency, UpdatedAt: now}, nil
}
