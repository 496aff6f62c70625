package records

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizanhq/mizan/internal/crypto"
	"github.com/mizanhq/mizan/internal/domain"
)

// Repository handles nisab year record database operations. Sensitive fields
// (asset breakdown, user notes) are encrypted before they reach the store.
type Repository struct {
	db     *sql.DB
	cipher crypto.Cipher
	log    zerolog.Logger
}

// NewRepository creates a new records repository.
func NewRepository(db *sql.DB, cipher crypto.Cipher, log zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		cipher: cipher,
		log:    log.With().Str("repo", "records").Logger(),
	}
}

const recordColumns = `id, user_id, status, hawl_start_date, hawl_end_date,
	total_wealth, zakatable_wealth, zakat_amount, nisab_threshold, nisab_basis,
	currency, asset_breakdown_enc, asset_scope, user_notes_enc, created_at, updated_at`

// Create inserts a new record. The partial unique index on (user_id) WHERE
// status='DRAFT' enforces at most one active draft per user at the storage
// layer; a violation surfaces as ErrDraftExists.
func (r *Repository) Create(rec *Record) error {
	breakdownEnc, notesEnc, err := r.encryptSensitive(rec)
	if err != nil {
		return &domain.PersistenceError{Op: "record create", Err: err}
	}

	scope, err := marshalScope(rec.AssetScope)
	if err != nil {
		return &domain.PersistenceError{Op: "record create", Err: err}
	}

	_, err = r.db.Exec(
		`INSERT INTO nisab_year_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Status),
		rec.HawlStartDate.UTC().Format(time.RFC3339),
		rec.HawlEndDate.UTC().Format(time.RFC3339),
		rec.TotalWealth.String(), rec.ZakatableWealth.String(), rec.ZakatAmount.String(),
		rec.NisabThreshold.String(), string(rec.NisabBasis), rec.Currency,
		breakdownEnc, scope, notesEnc,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_records_one_draft_per_user") ||
			strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDraftExists
		}
		return &domain.PersistenceError{Op: "record create", Err: err}
	}

	return nil
}

// ErrDraftExists signals that the one-active-draft-per-user invariant would
// be violated.
var ErrDraftExists = fmt.Errorf("an active draft already exists for this user")

// Update rewrites all mutable columns of a record.
func (r *Repository) Update(rec *Record) error {
	breakdownEnc, notesEnc, err := r.encryptSensitive(rec)
	if err != nil {
		return &domain.PersistenceError{Op: "record update", Err: err}
	}

	scope, err := marshalScope(rec.AssetScope)
	if err != nil {
		return &domain.PersistenceError{Op: "record update", Err: err}
	}

	res, err := r.db.Exec(
		`UPDATE nisab_year_records SET
			status = ?, hawl_start_date = ?, hawl_end_date = ?,
			total_wealth = ?, zakatable_wealth = ?, zakat_amount = ?,
			nisab_threshold = ?, nisab_basis = ?, currency = ?,
			asset_breakdown_enc = ?, asset_scope = ?, user_notes_enc = ?, updated_at = ?
		 WHERE id = ?`,
		string(rec.Status),
		rec.HawlStartDate.UTC().Format(time.RFC3339),
		rec.HawlEndDate.UTC().Format(time.RFC3339),
		rec.TotalWealth.String(), rec.ZakatableWealth.String(), rec.ZakatAmount.String(),
		rec.NisabThreshold.String(), string(rec.NisabBasis), rec.Currency,
		breakdownEnc, scope, notesEnc,
		rec.UpdatedAt.UTC().Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "record update", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "record update", Err: err}
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "record", ID: rec.ID}
	}

	return nil
}

// GetForUser returns a record only if it is owned by userID.
// An ownership miss is indistinguishable from a missing record.
func (r *Repository) GetForUser(id, userID string) (*Record, error) {
	row := r.db.QueryRow(
		"SELECT "+recordColumns+" FROM nisab_year_records WHERE id = ? AND user_id = ?",
		id, userID,
	)
	rec, err := r.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "record", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// ListForUser returns all records for a user, newest Hawl first, optionally
// filtered by status.
func (r *Repository) ListForUser(userID string, status domain.RecordStatus) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM nisab_year_records WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY hawl_start_date DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return out, nil
}

// FindActiveDraft returns the user's single DRAFT record, or nil if none.
func (r *Repository) FindActiveDraft(userID string) (*Record, error) {
	row := r.db.QueryRow(
		"SELECT "+recordColumns+" FROM nisab_year_records WHERE user_id = ? AND status = 'DRAFT'",
		userID,
	)
	rec, err := r.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active draft for user %s: %w", userID, err)
	}
	return rec, nil
}

// Delete removes a record permanently. Callers enforce the DRAFT-only rule.
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM nisab_year_records WHERE id = ?", id)
	if err != nil {
		return &domain.PersistenceError{Op: "record delete", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "record delete", Err: err}
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "record", ID: id}
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanRecord(row scanner) (*Record, error) {
	var rec Record
	var status, basis string
	var hawlStart, hawlEnd, createdAt, updatedAt string
	var total, zakatable, zakat, threshold string
	var breakdownEnc, scope, notesEnc string

	err := row.Scan(
		&rec.ID, &rec.UserID, &status, &hawlStart, &hawlEnd,
		&total, &zakatable, &zakat, &threshold, &basis,
		&rec.Currency, &breakdownEnc, &scope, &notesEnc, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scope != "" {
		if err := json.Unmarshal([]byte(scope), &rec.AssetScope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal asset scope for record %s: %w", rec.ID, err)
		}
	}

	rec.Status = domain.RecordStatus(status)
	rec.NisabBasis = domain.NisabBasis(basis)

	times := []struct {
		raw string
		dst *time.Time
	}{
		{hawlStart, &rec.HawlStartDate},
		{hawlEnd, &rec.HawlEndDate},
		{createdAt, &rec.CreatedAt},
		{updatedAt, &rec.UpdatedAt},
	}
	for _, t := range times {
		parsed, err := time.Parse(time.RFC3339, t.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", t.raw, err)
		}
		*t.dst = parsed
	}

	decimals := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{total, &rec.TotalWealth},
		{zakatable, &rec.ZakatableWealth},
		{zakat, &rec.ZakatAmount},
		{threshold, &rec.NisabThreshold},
	}
	for _, d := range decimals {
		parsed, err := decimal.NewFromString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse decimal %q: %w", d.raw, err)
		}
		*d.dst = parsed
	}

	if breakdownEnc != "" {
		raw, err := r.cipher.Decrypt(breakdownEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt asset breakdown for record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(raw, &rec.AssetBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal asset breakdown for record %s: %w", rec.ID, err)
		}
	}

	if notesEnc != "" {
		raw, err := r.cipher.Decrypt(notesEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt notes for record %s: %w", rec.ID, err)
		}
		rec.UserNotes = string(raw)
	}

	return &rec, nil
}

func (r *Repository) encryptSensitive(rec *Record) (breakdownEnc, notesEnc string, err error) {
	raw, err := json.Marshal(rec.AssetBreakdown)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal asset breakdown: %w", err)
	}
	breakdownEnc, err = r.cipher.Encrypt(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt asset breakdown: %w", err)
	}

	if rec.UserNotes != "" {
		notesEnc, err = r.cipher.Encrypt([]byte(rec.UserNotes))
		if err != nil {
			return "", "", fmt.Errorf("failed to encrypt notes: %w", err)
		}
	}

	return breakdownEnc, notesEnc, nil
}

// marshalScope serializes an asset-id subset; an unscoped record stores "".
func marshalScope(scope []string) (string, error) {
	if len(scope) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(scope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal asset scope: %w", err)
	}
	return string(raw), nil
}
