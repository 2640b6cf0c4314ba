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

type sessionRepository struct {
	BaseRepository
}

func NewSessionRepository(base BaseRepository) repository.SessionRepository {
	return &sessionRepository{base}
}

func (r *sessionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, session *model.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (
			id, name, topic, status, created_by, last_activity_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		session.ID,
		session.Name,
		session.Topic,
		session.Status,
		session.CreatedBy,
		session.LastActivityAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	query := `
		SELECT id, name, topic, status, created_by, last_activity_at,
		       created_at, updated_at, deleted_at
		FROM chat_sessions
		WHERE id = $1 AND deleted_at IS NULL
	`

	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("session", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) List(ctx context.Context, page model.Pagination) ([]*model.ChatSession, error) {
	query := `
		SELECT id, name, topic, status, created_by, last_activity_at,
		       created_at, updated_at, deleted_at
		FROM chat_sessions
		WHERE deleted_at IS NULL
		ORDER BY last_activity_at DESC
		LIMIT $1 OFFSET $2
	`

	var sessions []*model.ChatSession
	err := r.db.SelectContext(ctx, &sessions, query, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// TouchActivityTx bumps the denormalized last-activity column; called inside
// the same transaction as the message write it reflects.
func (r *sessionRepository) TouchActivityTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE chat_sessions
		SET last_activity_at = $1, updated_at = $1
		WHERE id = $2
	`
	result, err := tx.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("session", nil)
	}
	return nil
}

func (r *sessionRepository) AddParticipantTx(ctx context.Context, tx *sqlx.Tx, p *model.Participant) error {
	query := `
		INSERT INTO participants (
			id, session_id, user_name, display_name, role, joined_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		p.ID,
		p.SessionID,
		p.UserName,
		p.DisplayName,
		p.Role,
		p.JoinedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (r *sessionRepository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*model.Participant, error) {
	query := `
		SELECT id, session_id, user_name, display_name, role, joined_at,
		       created_at, updated_at, deleted_at
		FROM participants
		WHERE session_id = $1 AND deleted_at IS NULL
		ORDER BY joined_at ASC
	`

	var participants []*model.Participant
	err := r.db.SelectContext(ctx, &participants, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

func (r *sessionRepository) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM participants WHERE session_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}
