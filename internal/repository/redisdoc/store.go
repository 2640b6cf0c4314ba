// Package redisdoc implements the document store contract on Redis. Message
// documents are JSON values keyed by (session, message); a per-session sorted
// set keeps them ordered for the fast read path, and session snapshots hang
// off a global index ordered by last activity. Every write is a full replace
// keyed by primary-store-assigned ids, so redelivery after a crash-before-ack
// converges to the same state.
package redisdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MCLifeLeader/chat-service/internal/config"
	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/pkg/circuitbreaker"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
)

type Store struct {
	client  *redis.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

func NewStore(cfg config.RedisConfig, logger *zerolog.Logger, m *metrics.Metrics) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "document-store",
		MaxFailures: 5,
		Timeout:     10 * time.Second,
	})

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:  client,
		cb:      cb,
		logger:  logger,
		metrics: m,
	}, nil
}

var _ repository.DocumentStore = (*Store)(nil)

// instrument runs fn through the circuit breaker and records the operation
// counter and latency for it.
func (s *Store) instrument(op string, fn func() error) error {
	start := time.Now()
	err := s.cb.Execute(fn)
	s.metrics.DocStoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.DocStoreOperations.WithLabelValues(op, "error").Inc()
		return err
	}
	s.metrics.DocStoreOperations.WithLabelValues(op, "success").Inc()
	return nil
}

func messageKey(sessionID, messageID uuid.UUID) string {
	return fmt.Sprintf("chat:msg:%s:%s", sessionID, messageID)
}

func sessionIndexKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("chat:session:%s:messages", sessionID)
}

func snapshotKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("chat:session:%s:snapshot", sessionID)
}

const snapshotIndexKey = "chat:sessions"

// UpsertMessage replaces the document and its index entry. Repeating the
// same payload yields the same stored state.
func (s *Store) UpsertMessage(ctx context.Context, doc *model.MessageDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal message document: %w", err)
	}

	return s.instrument("upsert_message", func() error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, messageKey(doc.SessionID, doc.ID), data, 0)
		pipe.ZAdd(ctx, sessionIndexKey(doc.SessionID), redis.Z{
			Score:  float64(doc.SentAt.UnixMilli()),
			Member: doc.ID.String(),
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert message document: %w", err)
		}
		return nil
	})
}

func (s *Store) GetMessage(ctx context.Context, sessionID, messageID uuid.UUID) (*model.MessageDocument, error) {
	var doc *model.MessageDocument
	err := s.instrument("get_message", func() error {
		data, err := s.client.Get(ctx, messageKey(sessionID, messageID)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get message document: %w", err)
		}
		doc = &model.MessageDocument{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("failed to unmarshal message document: %w", err)
		}
		return nil
	})
	return doc, err
}

// SoftDeleteMessage flips the deleted flag on the stored document; a missing
// or already-deleted document is a no-op, not an error.
func (s *Store) SoftDeleteMessage(ctx context.Context, sessionID, messageID uuid.UUID) error {
	doc, err := s.GetMessage(ctx, sessionID, messageID)
	if err != nil {
		return err
	}
	if doc == nil || doc.Deleted {
		return nil
	}

	doc.Deleted = true
	doc.Content = ""
	doc.Preview = ""

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal message document: %w", err)
	}

	return s.instrument("soft_delete_message", func() error {
		if err := s.client.Set(ctx, messageKey(sessionID, messageID), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to soft-delete message document: %w", err)
		}
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, sessionID uuid.UUID, page model.Pagination) ([]*model.MessageDocument, error) {
	var docs []*model.MessageDocument
	err := s.instrument("list_messages", func() error {
		start := int64(page.Offset())
		stop := start + int64(page.Limit()) - 1

		ids, err := s.client.ZRange(ctx, sessionIndexKey(sessionID), start, stop).Result()
		if err != nil {
			return fmt.Errorf("failed to read message index: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			mid, err := uuid.Parse(id)
			if err != nil {
				s.logger.Warn().Str("member", id).Msg("skipping malformed message index entry")
				continue
			}
			keys = append(keys, messageKey(sessionID, mid))
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read message documents: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var doc model.MessageDocument
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				s.logger.Warn().Err(err).Msg("skipping malformed message document")
				continue
			}
			if doc.Deleted {
				continue
			}
			docs = append(docs, &doc)
		}
		return nil
	})
	return docs, err
}

func (s *Store) UpsertSnapshot(ctx context.Context, doc *model.SessionSnapshotDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot document: %w", err)
	}

	return s.instrument("upsert_snapshot", func() error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, snapshotKey(doc.SessionID), data, 0)
		pipe.ZAdd(ctx, snapshotIndexKey, redis.Z{
			Score:  float64(doc.LastActivityAt.UnixMilli()),
			Member: doc.SessionID.String(),
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert snapshot document: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSnapshot(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshotDocument, error) {
	var doc *model.SessionSnapshotDocument
	err := s.instrument("get_snapshot", func() error {
		data, err := s.client.Get(ctx, snapshotKey(sessionID)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get snapshot document: %w", err)
		}
		doc = &model.SessionSnapshotDocument{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot document: %w", err)
		}
		return nil
	})
	return doc, err
}

// ListSnapshots returns snapshots ordered by most recent activity first.
func (s *Store) ListSnapshots(ctx context.Context, page model.Pagination) ([]*model.SessionSnapshotDocument, error) {
	var docs []*model.SessionSnapshotDocument
	err := s.instrument("list_snapshots", func() error {
		start := int64(page.Offset())
		stop := start + int64(page.Limit()) - 1

		ids, err := s.client.ZRevRange(ctx, snapshotIndexKey, start, stop).Result()
		if err != nil {
			return fmt.Errorf("failed to read session index: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			sid, err := uuid.Parse(id)
			if err != nil {
				s.logger.Warn().Str("member", id).Msg("skipping malformed session index entry")
				continue
			}
			keys = append(keys, snapshotKey(sid))
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read snapshot documents: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var doc model.SessionSnapshotDocument
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				s.logger.Warn().Err(err).Msg("skipping malformed snapshot document")
				continue
			}
			docs = append(docs, &doc)
		}
		return nil
	})
	return docs, err
}

func (s *Store) Close() error {
	return s.client.Close()
}
