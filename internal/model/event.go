package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbox event types. The set is closed on the writer side but the decoder
// keeps an explicit unknown variant so pending entries written by a newer
// deployment do not poison an older dispatcher.
const (
	EventMessageCreated  = "message-created"
	EventMessageEdited   = "message-edited"
	EventMessageDeleted  = "message-deleted"
	EventSessionSnapshot = "session-snapshot"
)

// Event is the decoded form of an outbox payload, a tagged union over the
// known event shapes. Decoding happens once, at the store boundary.
type Event interface {
	isEvent()
}

// MessageEvent is the payload for message-created and message-edited. The two
// types share a shape: a full replacement of the message document.
type MessageEvent struct {
	MessageID     uuid.UUID  `json:"message_id"`
	SessionID     uuid.UUID  `json:"session_id"`
	Sender        string     `json:"sender"`
	Content       string     `json:"content"`
	ContentLength int        `json:"content_length"`
	Preview       string     `json:"preview"`
	ReplyToID     *uuid.UUID `json:"reply_to_id,omitempty"`
	Edited        bool       `json:"edited"`
	SentAt        time.Time  `json:"sent_at"`
}

// MessageDeletedEvent carries just enough to soft-delete the document.
type MessageDeletedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// SessionSnapshotEvent is the denormalized session summary projected for
// fast session-list rendering.
type SessionSnapshotEvent struct {
	SessionID          uuid.UUID `json:"session_id"`
	Name               string    `json:"name"`
	Topic              *string   `json:"topic,omitempty"`
	Status             string    `json:"status"`
	ParticipantCount   int       `json:"participant_count"`
	MessageCount       int       `json:"message_count"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	LastMessagePreview *string   `json:"last_message_preview,omitempty"`
}

// UnknownEvent preserves the raw payload of an unrecognized event type so the
// caller can decide the policy (no-op or dead-letter).
type UnknownEvent struct {
	Type    string
	Payload json.RawMessage
}

func (MessageEvent) isEvent()         {}
func (MessageDeletedEvent) isEvent()  {}
func (SessionSnapshotEvent) isEvent() {}
func (UnknownEvent) isEvent()         {}

// DecodeEvent parses a stored payload by event type. Unknown fields are
// ignored and missing optional fields default, so entries written before or
// after a schema change still decode. A malformed payload for a known type is
// an error; the retry policy for it lives with the caller.
func DecodeEvent(eventType string, payload json.RawMessage) (Event, error) {
	switch eventType {
	case EventMessageCreated, EventMessageEdited:
		var ev MessageEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		if ev.MessageID == uuid.Nil || ev.SessionID == uuid.Nil {
			return nil, fmt.Errorf("decode %s payload: missing message_id or session_id", eventType)
		}
		return ev, nil
	case EventMessageDeleted:
		var ev MessageDeletedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		if ev.MessageID == uuid.Nil || ev.SessionID == uuid.Nil {
			return nil, fmt.Errorf("decode %s payload: missing message_id or session_id", eventType)
		}
		return ev, nil
	case EventSessionSnapshot:
		var ev SessionSnapshotEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		if ev.SessionID == uuid.Nil {
			return nil, fmt.Errorf("decode %s payload: missing session_id", eventType)
		}
		return ev, nil
	default:
		return UnknownEvent{Type: eventType, Payload: payload}, nil
	}
}
