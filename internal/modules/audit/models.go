package audit

import (
	"encoding/json"
	"time"

	"github.com/mizanhq/mizan/internal/domain"
)

// Entry is one append-only audit trail row for a nisab year record.
// The payload is encrypted at rest; the decrypted JSON is exposed on reads.
type Entry struct {
	ID          string                `json:"id"`
	RecordID    string                `json:"record_id"`
	EventType   domain.AuditEventType `json:"event_type"`
	ActorUserID string                `json:"actor_user_id"`
	Payload     json.RawMessage       `json:"payload,omitempty"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

// UnlockPayload is the audit payload for an UNLOCKED event.
type UnlockPayload struct {
	Reason string `json:"reason"`
}

// FieldChange captures one field-level diff for an EDITED event.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// EditPayload is the audit payload for an EDITED event.
type EditPayload struct {
	Changes []FieldChange `json:"changes"`
}
