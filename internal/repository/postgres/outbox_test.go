package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
)

func newMockRepo(t *testing.T) (repository.OutboxRepository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewOutboxRepository(NewBaseRepository(db)), db, mock
}

func TestMarkProcessingClaimsPendingEntry(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_entries")).
		WithArgs(model.OutboxStatusProcessing, id, model.OutboxStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.MarkProcessing(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingLosesRaceWhenNotPending(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	id := uuid.New()

	// Zero rows affected: entry missing or already claimed. Not an error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_entries")).
		WithArgs(model.OutboxStatusProcessing, id, model.OutboxStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkProcessing(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReadyForRetryPredicate(t *testing.T) {
	repo, _, mock := newMockRepo(t)

	oldID := uuid.New()
	newID := uuid.New()
	t0 := time.Now().UTC().Add(-time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "event_type", "payload", "status", "attempts", "last_error",
		"next_retry_at", "processed_at", "created_at", "updated_at", "session_id", "message_id",
	}).
		AddRow(oldID, "message-created", []byte(`{}`), "pending", 0, nil, nil, nil, t0, t0, nil, nil).
		AddRow(newID, "message-created", []byte(`{}`), "pending", 1, "timeout", nil, nil, t0.Add(time.Second), t0, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("next_retry_at IS NULL OR next_retry_at <= NOW()")).
		WithArgs(model.OutboxStatusPending, 10).
		WillReturnRows(rows)

	entries, err := repo.GetReadyForRetry(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, oldID, entries[0].ID, "oldest entry first")
	assert.Equal(t, newID, entries[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedTruncatesError(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	id := uuid.New()
	retryAt := time.Now().UTC().Add(4 * time.Second)
	longErr := strings.Repeat("x", 1500)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_entries")).
		WithArgs(model.OutboxStatusPending, strings.Repeat("x", model.MaxErrorLength), &retryAt, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), id, longErr, &retryAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeadLetterTruncatesError(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	id := uuid.New()
	longErr := strings.Repeat("y", 2000)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_entries")).
		WithArgs(model.OutboxStatusDeadLetter, strings.Repeat("y", model.MaxErrorLength), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkDeadLetter(context.Background(), id, longErr)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompleted(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_entries")).
		WithArgs(model.OutboxStatusCompleted, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkCompleted(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTxWritesAllColumns(t *testing.T) {
	repo, db, mock := newMockRepo(t)

	sessionID := uuid.New()
	messageID := uuid.New()
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	entry := model.NewOutboxEntry(model.EventMessageCreated, payload, &sessionID, &messageID)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WithArgs(entry.ID, entry.EventType, []byte(payload), entry.Status, 0,
			entry.CreatedAt, entry.UpdatedAt, &sessionID, &messageID).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.InsertTx(context.Background(), tx, entry))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTxRejectsNilPayload(t *testing.T) {
	repo, db, mock := newMockRepo(t)

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)

	entry := model.NewOutboxEntry(model.EventMessageCreated, nil, nil, nil)
	assert.Error(t, repo.InsertTx(context.Background(), tx, entry))
	assert.Error(t, repo.InsertTx(context.Background(), tx, nil))
}

func TestGetStatistics(t *testing.T) {
	repo, _, mock := newMockRepo(t)

	oldest := time.Now().UTC().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"pending", "processing", "completed", "dead_letter", "oldest_pending_at"}).
		AddRow(2, 1, 3, 1, oldest)

	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_entries")).
		WillReturnRows(rows)

	stats, err := repo.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.DeadLetter)
	require.NotNil(t, stats.OldestPendingAt)
	assert.WithinDuration(t, oldest, *stats.OldestPendingAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCompletedBefore(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outbox_entries")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteCompletedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
