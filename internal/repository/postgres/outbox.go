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
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

// InsertTx writes a pending entry inside the caller's transaction. The
// transactional writer pairs this with the authoritative row so either both
// commit or neither does.
func (r *outboxRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *model.OutboxEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.Payload == nil {
		return fmt.Errorf("entry payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_entries (
			id, event_type, payload, status, attempts, created_at, updated_at, session_id, message_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`
	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.Payload,
		entry.Status,
		entry.Attempts,
		entry.CreatedAt,
		entry.UpdatedAt,
		entry.SessionID,
		entry.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]*model.OutboxEntry, error) {
	query := `
		SELECT id, event_type, payload, status, attempts, last_error,
		       next_retry_at, processed_at, created_at, updated_at, session_id, message_id
		FROM outbox_entries
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var entries []*model.OutboxEntry
	err := r.db.SelectContext(ctx, &entries, query, model.OutboxStatusPending, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entries, err
}

// GetReadyForRetry unifies never-attempted and backed-off-and-ready entries:
// pending rows whose next_retry_at is unset or elapsed, oldest first.
func (r *outboxRepository) GetReadyForRetry(ctx context.Context, limit int) ([]*model.OutboxEntry, error) {
	query := `
		SELECT id, event_type, payload, status, attempts, last_error,
		       next_retry_at, processed_at, created_at, updated_at, session_id, message_id
		FROM outbox_entries
		WHERE status = $1
		AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $2
	`

	var entries []*model.OutboxEntry
	err := r.db.SelectContext(ctx, &entries, query, model.OutboxStatusPending, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entries, err
}

// MarkProcessing is the claim primitive. The WHERE clause makes the
// transition conditional on the current status, so two dispatchers racing on
// the same entry produce exactly one winner; the loser sees false and skips.
// Attempts is incremented exactly once per claim, here and nowhere else.
func (r *outboxRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox_entries
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessing, id, model.OutboxStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return rows == 1, nil
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_entries
		SET status = $1, processed_at = NOW(), last_error = NULL, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, model.OutboxStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("failed to complete outbox entry: %w", err)
	}
	return nil
}

// MarkFailed re-queues the entry for a future retry. nextRetryAt is computed
// by the dispatcher, which owns retry policy; nil means immediately eligible.
func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, nextRetryAt *time.Time) error {
	truncated := model.TruncateError(errorMessage)
	query := `
		UPDATE outbox_entries
		SET status = $1, last_error = $2, next_retry_at = $3, updated_at = NOW()
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, model.OutboxStatusPending, truncated, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry failed: %w", err)
	}
	return nil
}

// MarkDeadLetter is terminal; attempts keeps the value it held when the
// dispatcher made the decision.
func (r *outboxRepository) MarkDeadLetter(ctx context.Context, id uuid.UUID, finalError string) error {
	truncated := model.TruncateError(finalError)
	query := `
		UPDATE outbox_entries
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, model.OutboxStatusDeadLetter, truncated, id)
	if err != nil {
		return fmt.Errorf("failed to dead-letter outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetStatistics(ctx context.Context) (*model.OutboxStatistics, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending')     AS pending,
			COUNT(*) FILTER (WHERE status = 'processing')  AS processing,
			COUNT(*) FILTER (WHERE status = 'completed')   AS completed,
			COUNT(*) FILTER (WHERE status = 'dead_letter') AS dead_letter,
			MIN(created_at) FILTER (WHERE status = 'pending') AS oldest_pending_at
		FROM outbox_entries
	`

	var stats model.OutboxStatistics
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get outbox statistics: %w", err)
	}
	return &stats, nil
}

// DeleteCompletedBefore is the retention hook for an out-of-band archival
// job; the core never calls it on its own.
func (r *outboxRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_entries
		WHERE status = 'completed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed entries: %w", err)
	}

	return result.RowsAffected()
}
