package chat

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository/postgres"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
)

// Registered once; promauto panics on duplicate collector names.
var testMetrics = metrics.NewMetrics("test", "chat_service")

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	base := postgres.NewBaseRepository(db)

	svc := NewService(
		postgres.NewSessionRepository(base),
		postgres.NewMessageRepository(base),
		postgres.NewOutboxRepository(base),
		testMetrics,
	)
	return svc, mock
}

// The authoritative message row, the session activity bump, and the outbox
// entry must commit as one transaction.
func TestSendMessageCommitsRowAndOutboxTogether(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msg, err := svc.SendMessage(context.Background(), sessionID, &model.SendMessageRequest{
		Sender:  "alice",
		Content: "hello world",
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, msg.SessionID)
	assert.Equal(t, 11, msg.ContentLength)
	assert.Equal(t, "hello world", msg.Preview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageRollsBackWhenOutboxInsertFails(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err := svc.SendMessage(context.Background(), sessionID, &model.SendMessageRequest{
		Sender:  "alice",
		Content: "hello world",
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageRollsBackWhenSessionMissing(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.SendMessage(context.Background(), sessionID, &model.SendMessageRequest{
		Sender:  "alice",
		Content: "hello world",
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageDerivesPreview(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()

	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msg, err := svc.SendMessage(context.Background(), sessionID, &model.SendMessageRequest{
		Sender:  "alice",
		Content: long,
	})
	require.NoError(t, err)
	assert.Equal(t, 500, msg.ContentLength)
	assert.Len(t, []rune(msg.Preview), model.PreviewLength)
}

func TestDeleteMessagePairsSoftDeleteWithOutbox(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()
	messageID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "sender", "content", "content_length", "preview",
		"reply_to_id", "edited", "edited_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(messageID, sessionID, "alice", "hello", 5, "hello", nil, false, nil, now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages")).
		WithArgs(messageID).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE messages")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.DeleteMessage(context.Background(), sessionID, messageID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMessageRejectsWrongSession(t *testing.T) {
	svc, mock := newTestService(t)
	sessionID := uuid.New()
	messageID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "sender", "content", "content_length", "preview",
		"reply_to_id", "edited", "edited_at", "created_at", "updated_at", "deleted_at",
	}).AddRow(messageID, uuid.New(), "alice", "hello", 5, "hello", nil, false, nil, now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages")).
		WithArgs(messageID).
		WillReturnRows(rows)

	err := svc.DeleteMessage(context.Background(), sessionID, messageID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong to session")
}

func TestCreateSessionCommitsOwnerAndSnapshot(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO participants")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	session, err := svc.CreateSession(context.Background(), &model.CreateSessionRequest{
		Name:      "general",
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, session.Status)
	assert.NotEqual(t, uuid.Nil, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
