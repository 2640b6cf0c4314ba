package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	apperrors "github.com/MCLifeLeader/chat-service/pkg/errors"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	query := `
		INSERT INTO messages (
			id, session_id, sender, content, content_length, preview,
			reply_to_id, edited, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Sender,
		msg.Content,
		msg.ContentLength,
		msg.Preview,
		msg.ReplyToID,
		msg.Edited,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) UpdateContentTx(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	query := `
		UPDATE messages
		SET content = $1, content_length = $2, preview = $3,
		    edited = TRUE, edited_at = $4, updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query,
		msg.Content,
		msg.ContentLength,
		msg.Preview,
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("message", nil)
	}
	return nil
}

// SoftDeleteTx flips the deleted flag only; content stays in place so the
// outbox enqueue in the same transaction describes a consistent row.
func (r *messageRepository) SoftDeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE messages
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("message", nil)
	}
	return nil
}

func (r *messageRepository) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	query := `
		SELECT id, session_id, sender, content, content_length, preview,
		       reply_to_id, edited, edited_at, created_at, updated_at, deleted_at
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL
	`

	var msg model.Message
	err := r.db.GetContext(ctx, &msg, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("message", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (r *messageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.Message, error) {
	query := `
		SELECT id, session_id, sender, content, content_length, preview,
		       reply_to_id, edited, edited_at, created_at, updated_at, deleted_at
		FROM messages
		WHERE session_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	var messages []*model.Message
	err := r.db.SelectContext(ctx, &messages, query, sessionID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE session_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *messageRepository) LastPreview(ctx context.Context, sessionID uuid.UUID) (*string, error) {
	query := `
		SELECT preview
		FROM messages
		WHERE session_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var preview string
	err := r.db.GetContext(ctx, &preview, query, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last preview: %w", err)
	}
	return &preview, nil
}
