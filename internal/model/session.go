package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusArchived SessionStatus = "archived"
)

// ChatSession is the authoritative session row. LastActivityAt is denormalized
// and bumped inside the same transaction as every message write.
type ChatSession struct {
	Base
	Name           string        `db:"name" json:"name"`
	Topic          *string       `db:"topic" json:"topic,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	CreatedBy      string        `db:"created_by" json:"created_by"`
	LastActivityAt time.Time     `db:"last_activity_at" json:"last_activity_at"`
}

type ParticipantRole string

const (
	ParticipantRoleOwner  ParticipantRole = "owner"
	ParticipantRoleMember ParticipantRole = "member"
)

type Participant struct {
	Base
	SessionID   uuid.UUID       `db:"session_id" json:"session_id"`
	UserName    string          `db:"user_name" json:"user_name"`
	DisplayName string          `db:"display_name" json:"display_name"`
	Role        ParticipantRole `db:"role" json:"role"`
	JoinedAt    time.Time       `db:"joined_at" json:"joined_at"`
}

type CreateSessionRequest struct {
	Name        string  `json:"name" binding:"required,max=200"`
	Topic       *string `json:"topic" binding:"omitempty,max=500"`
	CreatedBy   string  `json:"created_by" binding:"required,max=100"`
	DisplayName string  `json:"display_name" binding:"omitempty,max=100"`
}

type AddParticipantRequest struct {
	UserName    string `json:"user_name" binding:"required,max=100"`
	DisplayName string `json:"display_name" binding:"omitempty,max=100"`
}
