// Package chat is the primary transactional writer: every user-facing
// mutation commits its authoritative rows and exactly one outbox entry in a
// single database transaction, so the dispatcher either sees both or neither.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
)

type ChatService interface {
	CreateSession(ctx context.Context, req *model.CreateSessionRequest) (*model.ChatSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)
	ListSessions(ctx context.Context, page model.Pagination) ([]*model.ChatSession, error)
	AddParticipant(ctx context.Context, sessionID uuid.UUID, req *model.AddParticipantRequest) (*model.Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*model.Participant, error)
	SendMessage(ctx context.Context, sessionID uuid.UUID, req *model.SendMessageRequest) (*model.Message, error)
	EditMessage(ctx context.Context, sessionID, messageID uuid.UUID, req *model.EditMessageRequest) (*model.Message, error)
	DeleteMessage(ctx context.Context, sessionID, messageID uuid.UUID) error
	SnapshotSession(ctx context.Context, sessionID uuid.UUID) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.Message, error)
}

type Service struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	outboxRepo  repository.OutboxRepository
	metrics     *metrics.Metrics
}

func NewService(
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	outboxRepo repository.OutboxRepository,
	m *metrics.Metrics,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		outboxRepo:  outboxRepo,
		metrics:     m,
	}
}

// observeTx records the outcome and duration of one write transaction.
func (s *Service) observeTx(op string, start time.Time, err error) {
	s.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
}

func (s *Service) CreateSession(ctx context.Context, req *model.CreateSessionRequest) (*model.ChatSession, error) {
	now := time.Now().UTC()
	session := &model.ChatSession{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:           req.Name,
		Topic:          req.Topic,
		Status:         model.SessionStatusActive,
		CreatedBy:      req.CreatedBy,
		LastActivityAt: now,
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.CreatedBy
	}
	owner := &model.Participant{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		SessionID:   session.ID,
		UserName:    req.CreatedBy,
		DisplayName: displayName,
		Role:        model.ParticipantRoleOwner,
		JoinedAt:    now,
	}

	entry, err := s.snapshotEntry(session, 1, 0, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.sessionRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.sessionRepo.CreateTx(ctx, tx, session); err != nil {
			return err
		}
		if err := s.sessionRepo.AddParticipantTx(ctx, tx, owner); err != nil {
			return err
		}
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("create_session", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	return s.sessionRepo.Get(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, page model.Pagination) ([]*model.ChatSession, error) {
	return s.sessionRepo.List(ctx, page)
}

func (s *Service) AddParticipant(ctx context.Context, sessionID uuid.UUID, req *model.AddParticipantRequest) (*model.Participant, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.UserName
	}
	participant := &model.Participant{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		SessionID:   sessionID,
		UserName:    req.UserName,
		DisplayName: displayName,
		Role:        model.ParticipantRoleMember,
		JoinedAt:    now,
	}

	summary, err := s.sessionSummary(ctx, session)
	if err != nil {
		return nil, err
	}
	summary.ParticipantCount++
	summary.LastActivityAt = now

	entry, err := s.summaryEntry(summary)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.sessionRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.sessionRepo.AddParticipantTx(ctx, tx, participant); err != nil {
			return err
		}
		if err := s.sessionRepo.TouchActivityTx(ctx, tx, sessionID, now); err != nil {
			return err
		}
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("add_participant", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return participant, nil
}

func (s *Service) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*model.Participant, error) {
	return s.sessionRepo.ListParticipants(ctx, sessionID)
}

// SendMessage derives the preview and length from the content, inserts the
// row, bumps the parent session's last-activity column, and enqueues a
// message-created entry, all in one transaction.
func (s *Service) SendMessage(ctx context.Context, sessionID uuid.UUID, req *model.SendMessageRequest) (*model.Message, error) {
	now := time.Now().UTC()
	msg := &model.Message{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		SessionID:     sessionID,
		Sender:        req.Sender,
		Content:       req.Content,
		ContentLength: len([]rune(req.Content)),
		Preview:       model.DerivePreview(req.Content),
		ReplyToID:     req.ReplyToID,
	}

	entry, err := s.messageEntry(model.EventMessageCreated, msg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.messageRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messageRepo.CreateTx(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.sessionRepo.TouchActivityTx(ctx, tx, sessionID, now); err != nil {
			return err
		}
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("send_message", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return msg, nil
}

func (s *Service) EditMessage(ctx context.Context, sessionID, messageID uuid.UUID, req *model.EditMessageRequest) (*model.Message, error) {
	msg, err := s.messageRepo.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SessionID != sessionID {
		return nil, fmt.Errorf("message %s does not belong to session %s", messageID, sessionID)
	}

	now := time.Now().UTC()
	msg.Content = req.Content
	msg.ContentLength = len([]rune(req.Content))
	msg.Preview = model.DerivePreview(req.Content)
	msg.Edited = true
	msg.EditedAt = &now
	msg.UpdatedAt = now

	entry, err := s.messageEntry(model.EventMessageEdited, msg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.messageRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messageRepo.UpdateContentTx(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.sessionRepo.TouchActivityTx(ctx, tx, sessionID, now); err != nil {
			return err
		}
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("edit_message", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return msg, nil
}

// DeleteMessage soft-deletes: the status flip and the outbox enqueue commit
// atomically while the row's content stays in place.
func (s *Service) DeleteMessage(ctx context.Context, sessionID, messageID uuid.UUID) error {
	msg, err := s.messageRepo.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SessionID != sessionID {
		return fmt.Errorf("message %s does not belong to session %s", messageID, sessionID)
	}

	payload, err := json.Marshal(model.MessageDeletedEvent{
		MessageID: messageID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delete event: %w", err)
	}
	entry := model.NewOutboxEntry(model.EventMessageDeleted, payload, &sessionID, &messageID)

	now := time.Now().UTC()
	start := time.Now()
	err = s.messageRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messageRepo.SoftDeleteTx(ctx, tx, messageID, now); err != nil {
			return err
		}
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("delete_message", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return nil
}

// SnapshotSession recomputes the aggregate summary and enqueues it for
// projection into the session-list fast path.
func (s *Service) SnapshotSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	summary, err := s.sessionSummary(ctx, session)
	if err != nil {
		return err
	}

	entry, err := s.summaryEntry(summary)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.sessionRepo.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.outboxRepo.InsertTx(ctx, tx, entry)
	})
	s.observeTx("snapshot_session", start, err)
	if err != nil {
		return fmt.Errorf("failed to snapshot session: %w", err)
	}

	s.metrics.OutboxEntriesEnqueued.WithLabelValues(entry.EventType).Inc()
	return nil
}

func (s *Service) ListMessages(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.Message, error) {
	return s.messageRepo.ListBySession(ctx, sessionID, page)
}

func (s *Service) messageEntry(eventType string, msg *model.Message) (*model.OutboxEntry, error) {
	payload, err := json.Marshal(model.MessageEvent{
		MessageID:     msg.ID,
		SessionID:     msg.SessionID,
		Sender:        msg.Sender,
		Content:       msg.Content,
		ContentLength: msg.ContentLength,
		Preview:       msg.Preview,
		ReplyToID:     msg.ReplyToID,
		Edited:        msg.Edited,
		SentAt:        msg.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return model.NewOutboxEntry(eventType, payload, &msg.SessionID, &msg.ID), nil
}

func (s *Service) sessionSummary(ctx context.Context, session *model.ChatSession) (*model.SessionSnapshotEvent, error) {
	participants, err := s.sessionRepo.CountParticipants(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.CountBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	preview, err := s.messageRepo.LastPreview(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return &model.SessionSnapshotEvent{
		SessionID:          session.ID,
		Name:               session.Name,
		Topic:              session.Topic,
		Status:             string(session.Status),
		ParticipantCount:   participants,
		MessageCount:       messages,
		LastActivityAt:     session.LastActivityAt,
		LastMessagePreview: preview,
	}, nil
}

func (s *Service) snapshotEntry(session *model.ChatSession, participants, messages int, preview *string) (*model.OutboxEntry, error) {
	return s.summaryEntry(&model.SessionSnapshotEvent{
		SessionID:          session.ID,
		Name:               session.Name,
		Topic:              session.Topic,
		Status:             string(session.Status),
		ParticipantCount:   participants,
		MessageCount:       messages,
		LastActivityAt:     session.LastActivityAt,
		LastMessagePreview: preview,
	})
}

func (s *Service) summaryEntry(summary *model.SessionSnapshotEvent) (*model.OutboxEntry, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	return model.NewOutboxEntry(model.EventSessionSnapshot, payload, &summary.SessionID, nil), nil
}
