package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageDocument is the document-store shape of a message. The document key
// is (sessionID, messageID) assigned by the relational store; SourceEntryID
// carries the outbox id for diagnostic idempotency checks downstream.
type MessageDocument struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	Sender        string     `json:"sender"`
	Content       string     `json:"content"`
	ContentLength int        `json:"content_length"`
	Preview       string     `json:"preview"`
	ReplyToID     *uuid.UUID `json:"reply_to_id,omitempty"`
	Edited        bool       `json:"edited"`
	Deleted       bool       `json:"deleted"`
	SentAt        time.Time  `json:"sent_at"`
	SourceEntryID uuid.UUID  `json:"source_entry_id"`
}

// SessionSnapshotDocument is the denormalized per-session summary used by the
// session-list fast path.
type SessionSnapshotDocument struct {
	SessionID          uuid.UUID `json:"session_id"`
	Name               string    `json:"name"`
	Topic              *string   `json:"topic,omitempty"`
	Status             string    `json:"status"`
	ParticipantCount   int       `json:"participant_count"`
	MessageCount       int       `json:"message_count"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	LastMessagePreview *string   `json:"last_message_preview,omitempty"`
	SourceEntryID      uuid.UUID `json:"source_entry_id"`
}
