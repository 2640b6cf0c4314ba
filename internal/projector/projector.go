// Package projector applies decoded outbox payloads to the document store.
// It performs no retries of its own; any decode or apply failure propagates
// to the dispatcher, which owns retry and dead-letter policy.
package projector

import (
	"context"
	"fmt"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/pkg/logger"
)

// ErrUnknownEventType is returned for unrecognized event types only when
// dead-lettering them is enabled; the default is to log and report success so
// a version-skewed dispatcher does not poison entries it does not yet
// understand.
var ErrUnknownEventType = fmt.Errorf("unknown outbox event type")

type Projector struct {
	store                   repository.DocumentStore
	logger                  *logger.Logger
	deadLetterUnknownEvents bool
}

func New(store repository.DocumentStore, log *logger.Logger, deadLetterUnknownEvents bool) *Projector {
	return &Projector{
		store:                   store,
		logger:                  log,
		deadLetterUnknownEvents: deadLetterUnknownEvents,
	}
}

// Apply projects one outbox entry. The document key is always the
// primary-store-assigned id pair; the outbox id rides along as
// source_entry_id so duplicate delivery is diagnosable downstream.
func (p *Projector) Apply(ctx context.Context, entry *model.OutboxEntry) error {
	event, err := model.DecodeEvent(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}

	switch ev := event.(type) {
	case model.MessageEvent:
		return p.store.UpsertMessage(ctx, &model.MessageDocument{
			ID:            ev.MessageID,
			SessionID:     ev.SessionID,
			Sender:        ev.Sender,
			Content:       ev.Content,
			ContentLength: ev.ContentLength,
			Preview:       ev.Preview,
			ReplyToID:     ev.ReplyToID,
			Edited:        ev.Edited,
			SentAt:        ev.SentAt,
			SourceEntryID: entry.ID,
		})
	case model.MessageDeletedEvent:
		return p.store.SoftDeleteMessage(ctx, ev.SessionID, ev.MessageID)
	case model.SessionSnapshotEvent:
		return p.store.UpsertSnapshot(ctx, &model.SessionSnapshotDocument{
			SessionID:          ev.SessionID,
			Name:               ev.Name,
			Topic:              ev.Topic,
			Status:             ev.Status,
			ParticipantCount:   ev.ParticipantCount,
			MessageCount:       ev.MessageCount,
			LastActivityAt:     ev.LastActivityAt,
			LastMessagePreview: ev.LastMessagePreview,
			SourceEntryID:      entry.ID,
		})
	case model.UnknownEvent:
		if p.deadLetterUnknownEvents {
			return fmt.Errorf("%w: %s", ErrUnknownEventType, ev.Type)
		}
		p.logger.Warn("skipping unknown outbox event type",
			"event_type", ev.Type,
			"entry_id", entry.ID.String())
		return nil
	default:
		return fmt.Errorf("unhandled event %T", event)
	}
}
