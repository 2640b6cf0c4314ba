package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusDeadLetter OutboxStatus = "dead_letter"
)

// MaxErrorLength bounds the stored last_error column.
const MaxErrorLength = 1000

// OutboxEntry is the unit of asynchronous work relayed from the relational
// store to the document store. ID doubles as the idempotency token presented
// to the downstream apply. Entries are created in the same transaction as the
// authoritative row they describe and are mutated only by the outbox
// repository on behalf of the dispatcher. They are never deleted by the core;
// a retention job may prune terminal rows out of band.
type OutboxEntry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      OutboxStatus    `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *time.Time      `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	// Denormalized routing keys for queries, never authoritative.
	SessionID *uuid.UUID `db:"session_id" json:"session_id,omitempty"`
	MessageID *uuid.UUID `db:"message_id" json:"message_id,omitempty"`
}

// NewOutboxEntry builds a pending entry for the given event. The payload must
// already be serialized; correlation ids may be nil.
func NewOutboxEntry(eventType string, payload json.RawMessage, sessionID, messageID *uuid.UUID) *OutboxEntry {
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		SessionID: sessionID,
		MessageID: messageID,
	}
}

// IsTerminal reports whether no further transitions may occur.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusCompleted || s == OutboxStatusDeadLetter
}

// TruncateError bounds an error message to MaxErrorLength characters.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}
	return string(runes[:MaxErrorLength])
}

// OutboxStatistics is the aggregate observability view over the outbox table.
type OutboxStatistics struct {
	Pending         int        `db:"pending" json:"pending"`
	Processing      int        `db:"processing" json:"processing"`
	Completed       int        `db:"completed" json:"completed"`
	DeadLetter      int        `db:"dead_letter" json:"dead_letter"`
	OldestPendingAt *time.Time `db:"oldest_pending_at" json:"oldest_pending_at,omitempty"`
}
