// Package audit provides the append-only, tamper-evident event store for
// nisab year records. Entries are never updated after append; a correction is
// itself a new entry.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mizanhq/mizan/internal/crypto"
	"github.com/mizanhq/mizan/internal/domain"
)

// Repository handles audit trail database operations. The only write paths
// are Append and DeleteForRecord (draft hard-delete); there is no update.
type Repository struct {
	db     *sql.DB
	cipher crypto.Cipher
	log    zerolog.Logger
}

// NewRepository creates a new audit repository.
func NewRepository(db *sql.DB, cipher crypto.Cipher, log zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		cipher: cipher,
		log:    log.With().Str("repo", "audit").Logger(),
	}
}

// Append writes one audit entry. payload may be nil for events that carry no
// detail (FINALIZED, REFINALIZED). A write failure is a hard PersistenceError:
// an unrecorded transition would break tamper evidence, so there is no
// soft-fail path.
func (r *Repository) Append(recordID string, eventType domain.AuditEventType, actorUserID string, payload interface{}) (*Entry, error) {
	entry := &Entry{
		ID:          uuid.NewString(),
		RecordID:    recordID,
		EventType:   eventType,
		ActorUserID: actorUserID,
		OccurredAt:  time.Now().UTC(),
	}

	var payloadEnc string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "audit append", Err: fmt.Errorf("failed to marshal payload: %w", err)}
		}
		entry.Payload = raw

		payloadEnc, err = r.cipher.Encrypt(raw)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "audit append", Err: fmt.Errorf("failed to encrypt payload: %w", err)}
		}
	}

	_, err := r.db.Exec(
		`INSERT INTO audit_trail_entries (id, record_id, event_type, actor_user_id, payload_enc, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordID, string(entry.EventType), entry.ActorUserID,
		payloadEnc, entry.OccurredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "audit append", Err: err}
	}

	r.log.Debug().
		Str("record_id", recordID).
		Str("event", string(eventType)).
		Msg("Audit entry appended")

	return entry, nil
}

// ListFor returns all entries for a record ordered by occurred_at ascending,
// with payloads decrypted.
func (r *Repository) ListFor(recordID string) ([]Entry, error) {
	rows, err := r.db.Query(
		`SELECT id, record_id, event_type, actor_user_id, payload_enc, occurred_at
		 FROM audit_trail_entries WHERE record_id = ? ORDER BY occurred_at ASC, id ASC`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventType, payloadEnc, occurredAt string
		if err := rows.Scan(&e.ID, &e.RecordID, &eventType, &e.ActorUserID, &payloadEnc, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.EventType = domain.AuditEventType(eventType)

		e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse occurred_at for entry %s: %w", e.ID, err)
		}

		if payloadEnc != "" {
			plaintext, err := r.cipher.Decrypt(payloadEnc)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt payload for entry %s: %w", e.ID, err)
			}
			e.Payload = plaintext
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// DeleteForRecord removes the trail for a hard-deleted DRAFT record. Records
// that have ever been finalized are never hard-deleted, so this is the only
// path that removes audit rows.
func (r *Repository) DeleteForRecord(recordID string) error {
	if _, err := r.db.Exec("DELETE FROM audit_trail_entries WHERE record_id = ?", recordID); err != nil {
		return &domain.PersistenceError{Op: "audit delete", Err: err}
	}
	return nil
}
