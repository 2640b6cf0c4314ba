package model

import (
	"time"

	"github.com/google/uuid"
)

// PreviewLength is the number of content characters carried in the
// denormalized preview column and in session snapshots.
const PreviewLength = 120

// Message is the authoritative message row. Deletion is a soft-delete:
// the row keeps its content and DeletedAt is set, so the outbox entry and
// the flag flip stay atomic.
type Message struct {
	Base
	SessionID     uuid.UUID  `db:"session_id" json:"session_id"`
	Sender        string     `db:"sender" json:"sender"`
	Content       string     `db:"content" json:"content"`
	ContentLength int        `db:"content_length" json:"content_length"`
	Preview       string     `db:"preview" json:"preview"`
	ReplyToID     *uuid.UUID `db:"reply_to_id" json:"reply_to_id,omitempty"`
	Edited        bool       `db:"edited" json:"edited"`
	EditedAt      *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}

// DerivePreview returns the preview column value for content.
func DerivePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}

type SendMessageRequest struct {
	Sender    string     `json:"sender" binding:"required,max=100"`
	Content   string     `json:"content" binding:"required,max=8000"`
	ReplyToID *uuid.UUID `json:"reply_to_id"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required,max=8000"`
}
