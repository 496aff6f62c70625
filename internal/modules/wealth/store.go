package wealth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/domain"
)

// Store is the sqlite-backed asset repository. It implements AssetProvider
// and UserDirectory.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new asset store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "assets").Logger(),
	}
}

// AssetsForUser returns all assets owned by userID.
func (s *Store) AssetsForUser(ctx context.Context, userID string) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, value, is_zakatable, added_at
		 FROM assets WHERE user_id = ? ORDER BY added_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var value, addedAt string
		var zakatable int
		if err := rows.Scan(&a.ID, &a.Name, &a.Category, &value, &zakatable, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse asset value %q: %w", value, err)
		}
		a.AddedAt, err = time.Parse(time.RFC3339, addedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse added_at %q: %w", addedAt, err)
		}
		a.IsZakatable = zakatable != 0
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// ActiveUserIDs returns every user with at least one asset.
func (s *Store) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM assets ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}

	return ids, nil
}

// CreateAsset validates and inserts a new holding for userID.
func (s *Store) CreateAsset(ctx context.Context, userID string, a domain.Asset) (*domain.Asset, error) {
	if a.Name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	if a.Value.IsNegative() {
		return nil, domain.NewValidationError("value", "must not be negative")
	}
	if a.Category == "" {
		a.Category = "OTHER"
	}

	a.ID = uuid.NewString()
	a.AddedAt = time.Now().UTC()

	zakatable := 0
	if a.IsZakatable {
		zakatable = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, user_id, name, category, value, is_zakatable, added_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, userID, a.Name, a.Category, a.Value.String(), zakatable,
		a.AddedAt.Format(time.RFC3339), a.AddedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "asset create", Err: err}
	}

	s.log.Info().
		Str("asset_id", a.ID).
		Str("user_id", userID).
		Str("value", a.Value.String()).
		Msg("Asset created")

	return &a, nil
}

// AssetUpdate carries the editable asset fields. Nil means unchanged.
type AssetUpdate struct {
	Name        *string
	Category    *string
	Value       *decimal.Decimal
	IsZakatable *bool
}

// UpdateAsset applies a partial update to an asset owned by userID.
func (s *Store) UpdateAsset(ctx context.Context, userID, assetID string, upd AssetUpdate) (*domain.Asset, error) {
	if upd.Value != nil && upd.Value.IsNegative() {
		return nil, domain.NewValidationError("value", "must not be negative")
	}

	current, err := s.getAsset(ctx, userID, assetID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, domain.NewValidationError("name", "required")
		}
		current.Name = *upd.Name
	}
	if upd.Category != nil {
		current.Category = *upd.Category
	}
	if upd.Value != nil {
		current.Value = *upd.Value
	}
	if upd.IsZakatable != nil {
		current.IsZakatable = *upd.IsZakatable
	}

	zakatable := 0
	if current.IsZakatable {
		zakatable = 1
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE assets SET name = ?, category = ?, value = ?, is_zakatable = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		current.Name, current.Category, current.Value.String(), zakatable,
		time.Now().UTC().Format(time.RFC3339), assetID, userID,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "asset update", Err: err}
	}

	return current, nil
}

// DeleteAsset removes an asset owned by userID.
func (s *Store) DeleteAsset(ctx context.Context, userID, assetID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM assets WHERE id = ? AND user_id = ?", assetID, userID)
	if err != nil {
		return &domain.PersistenceError{Op: "asset delete", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "asset delete", Err: err}
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "asset", ID: assetID}
	}
	return nil
}

func (s *Store) getAsset(ctx context.Context, userID, assetID string) (*domain.Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, value, is_zakatable, added_at
		 FROM assets WHERE id = ? AND user_id = ?`,
		assetID, userID,
	)

	var a domain.Asset
	var value, addedAt string
	var zakatable int
	err := row.Scan(&a.ID, &a.Name, &a.Category, &value, &zakatable, &addedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "asset", ID: assetID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", assetID, err)
	}

	a.Value, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asset value %q: %w", value, err)
	}
	a.AddedAt, err = time.Parse(time.RFC3339, addedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_at %q: %w", addedAt, err)
	}
	a.IsZakatable = zakatable != 0

	return &a, nil
}
