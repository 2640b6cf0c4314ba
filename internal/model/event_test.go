package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventMessageShapes(t *testing.T) {
	messageID := uuid.New()
	sessionID := uuid.New()
	sentAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	payload, err := json.Marshal(MessageEvent{
		MessageID:     messageID,
		SessionID:     sessionID,
		Sender:        "alice",
		Content:       "hello there",
		ContentLength: 11,
		Preview:       "hello there",
		SentAt:        sentAt,
	})
	require.NoError(t, err)

	// created and edited share a shape
	for _, eventType := range []string{EventMessageCreated, EventMessageEdited} {
		event, err := DecodeEvent(eventType, payload)
		require.NoError(t, err)

		ev, ok := event.(MessageEvent)
		require.True(t, ok)
		assert.Equal(t, messageID, ev.MessageID)
		assert.Equal(t, sessionID, ev.SessionID)
		assert.Equal(t, "alice", ev.Sender)
		assert.Equal(t, sentAt, ev.SentAt)
	}
}

func TestDecodeEventMessageDeleted(t *testing.T) {
	messageID := uuid.New()
	sessionID := uuid.New()

	payload, err := json.Marshal(MessageDeletedEvent{MessageID: messageID, SessionID: sessionID})
	require.NoError(t, err)

	event, err := DecodeEvent(EventMessageDeleted, payload)
	require.NoError(t, err)

	ev, ok := event.(MessageDeletedEvent)
	require.True(t, ok)
	assert.Equal(t, messageID, ev.MessageID)
	assert.Equal(t, sessionID, ev.SessionID)
}

func TestDecodeEventSessionSnapshot(t *testing.T) {
	sessionID := uuid.New()
	preview := "latest message"

	payload, err := json.Marshal(SessionSnapshotEvent{
		SessionID:          sessionID,
		Name:               "general",
		Status:             "active",
		ParticipantCount:   3,
		MessageCount:       42,
		LastActivityAt:     time.Now().UTC(),
		LastMessagePreview: &preview,
	})
	require.NoError(t, err)

	event, err := DecodeEvent(EventSessionSnapshot, payload)
	require.NoError(t, err)

	ev, ok := event.(SessionSnapshotEvent)
	require.True(t, ok)
	assert.Equal(t, sessionID, ev.SessionID)
	assert.Equal(t, 42, ev.MessageCount)
	require.NotNil(t, ev.LastMessagePreview)
	assert.Equal(t, preview, *ev.LastMessagePreview)
}

func TestDecodeEventUnknownType(t *testing.T) {
	payload := json.RawMessage(`{"some":"future-shape"}`)

	event, err := DecodeEvent("reaction-added", payload)
	require.NoError(t, err)

	ev, ok := event.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "reaction-added", ev.Type)
	assert.Equal(t, payload, ev.Payload)
}

func TestDecodeEventSkewTolerance(t *testing.T) {
	messageID := uuid.New()
	sessionID := uuid.New()

	// Unknown fields from a newer writer are ignored; missing optional
	// fields default.
	raw := `{
		"message_id": "` + messageID.String() + `",
		"session_id": "` + sessionID.String() + `",
		"sender": "bob",
		"content": "hi",
		"future_field": {"nested": true}
	}`

	event, err := DecodeEvent(EventMessageCreated, json.RawMessage(raw))
	require.NoError(t, err)

	ev, ok := event.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, messageID, ev.MessageID)
	assert.Nil(t, ev.ReplyToID)
	assert.False(t, ev.Edited)
	assert.Zero(t, ev.ContentLength)
}

func TestDecodeEventMalformedPayload(t *testing.T) {
	_, err := DecodeEvent(EventMessageCreated, json.RawMessage(`{not json`))
	assert.Error(t, err)

	_, err = DecodeEvent(EventMessageDeleted, json.RawMessage(`{}`))
	assert.Error(t, err, "missing ids should not decode")

	_, err = DecodeEvent(EventSessionSnapshot, json.RawMessage(`{"name":"x"}`))
	assert.Error(t, err, "missing session_id should not decode")
}
