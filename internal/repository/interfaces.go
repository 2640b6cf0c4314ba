package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MCLifeLeader/chat-service/internal/model"
)

type SessionRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, session *model.ChatSession) error
	Get(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)
	List(ctx context.Context, page model.Pagination) ([]*model.ChatSession, error)
	TouchActivityTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
	AddParticipantTx(ctx context.Context, tx *sqlx.Tx, p *model.Participant) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*model.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type MessageRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	UpdateContentTx(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	SoftDeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.Message, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	LastPreview(ctx context.Context, sessionID uuid.UUID) (*string, error)
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// OutboxRepository is the only component permitted to mutate outbox entry
// status. MarkProcessing is the claim primitive: a conditional transition
// from pending to processing that exactly one concurrent caller wins.
type OutboxRepository interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, entry *model.OutboxEntry) error
	GetPending(ctx context.Context, limit int) ([]*model.OutboxEntry, error)
	GetReadyForRetry(ctx context.Context, limit int) ([]*model.OutboxEntry, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, nextRetryAt *time.Time) error
	MarkDeadLetter(ctx context.Context, id uuid.UUID, finalError string) error
	GetStatistics(ctx context.Context) (*model.OutboxStatistics, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// DocumentStore is the secondary-store contract consumed by the projector
// and the fast read path. All writes are idempotent under retry.
type DocumentStore interface {
	UpsertMessage(ctx context.Context, doc *model.MessageDocument) error
	GetMessage(ctx context.Context, sessionID, messageID uuid.UUID) (*model.MessageDocument, error)
	SoftDeleteMessage(ctx context.Context, sessionID, messageID uuid.UUID) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.MessageDocument, error)
	UpsertSnapshot(ctx context.Context, doc *model.SessionSnapshotDocument) error
	GetSnapshot(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshotDocument, error)
	ListSnapshots(ctx context.Context, page model.Pagination) ([]*model.SessionSnapshotDocument, error)
}
