package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/pkg/logger"
)

// fakeDocStore keeps documents in maps so tests can assert exact end state.
type fakeDocStore struct {
	messages  map[string]*model.MessageDocument
	snapshots map[uuid.UUID]*model.SessionSnapshotDocument
	failWith  error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		messages:  make(map[string]*model.MessageDocument),
		snapshots: make(map[uuid.UUID]*model.SessionSnapshotDocument),
	}
}

func msgKey(sessionID, messageID uuid.UUID) string {
	return sessionID.String() + "/" + messageID.String()
}

func (f *fakeDocStore) UpsertMessage(_ context.Context, doc *model.MessageDocument) error {
	if f.failWith != nil {
		return f.failWith
	}
	copied := *doc
	f.messages[msgKey(doc.SessionID, doc.ID)] = &copied
	return nil
}

func (f *fakeDocStore) GetMessage(_ context.Context, sessionID, messageID uuid.UUID) (*model.MessageDocument, error) {
	return f.messages[msgKey(sessionID, messageID)], nil
}

func (f *fakeDocStore) SoftDeleteMessage(_ context.Context, sessionID, messageID uuid.UUID) error {
	if f.failWith != nil {
		return f.failWith
	}
	doc, ok := f.messages[msgKey(sessionID, messageID)]
	if !ok || doc.Deleted {
		return nil
	}
	doc.Deleted = true
	return nil
}

func (f *fakeDocStore) ListMessages(_ context.Context, _ uuid.UUID, _ model.Pagination) ([]*model.MessageDocument, error) {
	return nil, nil
}

func (f *fakeDocStore) UpsertSnapshot(_ context.Context, doc *model.SessionSnapshotDocument) error {
	if f.failWith != nil {
		return f.failWith
	}
	copied := *doc
	f.snapshots[doc.SessionID] = &copied
	return nil
}

func (f *fakeDocStore) GetSnapshot(_ context.Context, sessionID uuid.UUID) (*model.SessionSnapshotDocument, error) {
	return f.snapshots[sessionID], nil
}

func (f *fakeDocStore) ListSnapshots(_ context.Context, _ model.Pagination) ([]*model.SessionSnapshotDocument, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil)
}

func messageEntry(t *testing.T, eventType string) (*model.OutboxEntry, model.MessageEvent) {
	t.Helper()

	ev := model.MessageEvent{
		MessageID:     uuid.New(),
		SessionID:     uuid.New(),
		Sender:        "alice",
		Content:       "hello",
		ContentLength: 5,
		Preview:       "hello",
		SentAt:        time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return model.NewOutboxEntry(eventType, payload, &ev.SessionID, &ev.MessageID), ev
}

func TestApplyMessageCreatedUpserts(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	entry, ev := messageEntry(t, model.EventMessageCreated)
	require.NoError(t, p.Apply(context.Background(), entry))

	doc := store.messages[msgKey(ev.SessionID, ev.MessageID)]
	require.NotNil(t, doc)
	assert.Equal(t, ev.MessageID, doc.ID)
	assert.Equal(t, ev.Content, doc.Content)
	assert.Equal(t, entry.ID, doc.SourceEntryID)
	assert.False(t, doc.Deleted)
}

// Redelivery after a crash-before-ack must converge to the same document.
func TestApplyIsIdempotent(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	entry, ev := messageEntry(t, model.EventMessageCreated)
	require.NoError(t, p.Apply(context.Background(), entry))
	first := *store.messages[msgKey(ev.SessionID, ev.MessageID)]

	require.NoError(t, p.Apply(context.Background(), entry))
	second := *store.messages[msgKey(ev.SessionID, ev.MessageID)]

	assert.Equal(t, first, second)
	assert.Len(t, store.messages, 1)
}

func TestApplyMessageDeletedMissingDocumentIsNoOp(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	payload, err := json.Marshal(model.MessageDeletedEvent{
		MessageID: uuid.New(),
		SessionID: uuid.New(),
	})
	require.NoError(t, err)
	entry := model.NewOutboxEntry(model.EventMessageDeleted, payload, nil, nil)

	assert.NoError(t, p.Apply(context.Background(), entry))
	assert.Empty(t, store.messages)
}

func TestApplyMessageDeletedFlagsDocument(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	created, ev := messageEntry(t, model.EventMessageCreated)
	require.NoError(t, p.Apply(context.Background(), created))

	payload, err := json.Marshal(model.MessageDeletedEvent{
		MessageID: ev.MessageID,
		SessionID: ev.SessionID,
	})
	require.NoError(t, err)
	deleted := model.NewOutboxEntry(model.EventMessageDeleted, payload, &ev.SessionID, &ev.MessageID)

	require.NoError(t, p.Apply(context.Background(), deleted))
	assert.True(t, store.messages[msgKey(ev.SessionID, ev.MessageID)].Deleted)
}

func TestApplySessionSnapshot(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	ev := model.SessionSnapshotEvent{
		SessionID:        uuid.New(),
		Name:             "general",
		Status:           "active",
		ParticipantCount: 2,
		MessageCount:     9,
		LastActivityAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	entry := model.NewOutboxEntry(model.EventSessionSnapshot, payload, &ev.SessionID, nil)

	require.NoError(t, p.Apply(context.Background(), entry))

	doc := store.snapshots[ev.SessionID]
	require.NotNil(t, doc)
	assert.Equal(t, 9, doc.MessageCount)
	assert.Equal(t, entry.ID, doc.SourceEntryID)
}

func TestApplyUnknownEventTypeDefaultsToNoOp(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	entry := model.NewOutboxEntry("reaction-added", json.RawMessage(`{}`), nil, nil)

	assert.NoError(t, p.Apply(context.Background(), entry))
	assert.Empty(t, store.messages)
	assert.Empty(t, store.snapshots)
}

func TestApplyUnknownEventTypeDeadLetterPolicy(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), true)

	entry := model.NewOutboxEntry("reaction-added", json.RawMessage(`{}`), nil, nil)

	err := p.Apply(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestApplyPropagatesDecodeFailure(t *testing.T) {
	store := newFakeDocStore()
	p := New(store, testLogger(), false)

	entry := model.NewOutboxEntry(model.EventMessageCreated, json.RawMessage(`{broken`), nil, nil)

	assert.Error(t, p.Apply(context.Background(), entry))
}

func TestApplyPropagatesStoreFailure(t *testing.T) {
	store := newFakeDocStore()
	store.failWith = fmt.Errorf("connection reset")
	p := New(store, testLogger(), false)

	entry, _ := messageEntry(t, model.EventMessageCreated)
	assert.ErrorContains(t, p.Apply(context.Background(), entry), "connection reset")
}
