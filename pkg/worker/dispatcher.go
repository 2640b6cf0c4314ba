// Package worker contains the outbox dispatcher: the background loop that
// drains pending entries from the relational store into the document store.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/pkg/logger"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
)

// Projector applies one claimed entry to the document store.
type Projector interface {
	Apply(ctx context.Context, entry *model.OutboxEntry) error
}

type DispatcherConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxRetryAttempts int
	MaxConcurrency   int
	BaseRetryDelay   time.Duration
}

// Dispatcher polls the outbox on an interval, claims a bounded batch, and
// fans entries out to the projector with a concurrency cap. Multiple
// dispatcher instances may run against the same store; the conditional claim
// in the repository is the only coordination between them. Entries are
// selected oldest first, giving approximate ordering only; no per-aggregate
// ordering is enforced here.
type Dispatcher struct {
	repo      repository.OutboxRepository
	projector Projector
	config    DispatcherConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(
	repo repository.OutboxRepository,
	projector Projector,
	config DispatcherConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.MaxRetryAttempts <= 0 {
		panic("MaxRetryAttempts must be greater than 0")
	}
	if config.MaxConcurrency <= 0 {
		panic("MaxConcurrency must be greater than 0")
	}
	if config.BaseRetryDelay <= 0 {
		panic("BaseRetryDelay must be greater than 0")
	}

	return &Dispatcher{
		repo:      repo,
		projector: projector,
		config:    config,
		logger:    log,
		metrics:   m,
	}
}

// Start runs the dispatch loop until ctx is cancelled. The in-flight batch is
// always joined before returning, so cancellation waits for work already
// claimed.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("starting outbox dispatcher",
		"batch_size", d.config.BatchSize,
		"max_concurrency", d.config.MaxConcurrency,
		"max_retry_attempts", d.config.MaxRetryAttempts)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down outbox dispatcher")
			return
		case <-ticker.C:
			if err := d.processBatch(ctx); err != nil {
				d.logger.Error(err, "failed to process outbox batch")
			}
		}
	}
}

// processBatch drains one poll's worth of entries. The whole batch is joined
// before the next tick polls again, bounding overlap across ticks.
func (d *Dispatcher) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(d.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	entries, err := d.repo.GetReadyForRetry(ctx, d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("get_ready_for_retry", "error").Inc()
		return fmt.Errorf("failed to get ready entries: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("get_ready_for_retry", "success").Inc()

	if len(entries) == 0 {
		return nil
	}

	sem := make(chan struct{}, d.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(entry *model.OutboxEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			d.processEntry(ctx, entry)
		}(entry)
	}

	wg.Wait()
	return nil
}

func (d *Dispatcher) processEntry(ctx context.Context, entry *model.OutboxEntry) {
	claimed, err := d.repo.MarkProcessing(ctx, entry.ID)
	if err != nil {
		d.logger.Error(err, "failed to claim entry", "entry_id", entry.ID.String())
		return
	}
	if !claimed {
		// Another dispatcher instance won the race. Not an error.
		d.metrics.OutboxClaimLost.Inc()
		return
	}

	attempts := entry.Attempts + 1

	if err := d.projector.Apply(ctx, entry); err != nil {
		d.handleFailure(ctx, entry, attempts, err)
		return
	}

	if err := d.repo.MarkCompleted(ctx, entry.ID); err != nil {
		d.logger.Error(err, "failed to mark entry completed", "entry_id", entry.ID.String())
		return
	}
	d.metrics.OutboxEntriesProcessed.Inc()
}

// handleFailure routes a projection failure: dead-letter once the retry
// budget is spent, otherwise re-queue with exponential backoff. The backoff
// is computed here because the dispatcher, not the repository, owns retry
// policy.
func (d *Dispatcher) handleFailure(ctx context.Context, entry *model.OutboxEntry, attempts int, applyErr error) {
	d.metrics.OutboxEntriesFailed.Inc()

	if attempts >= d.config.MaxRetryAttempts {
		d.logger.Error(applyErr, "dead-lettering entry after exhausting retries",
			"entry_id", entry.ID.String(),
			"event_type", entry.EventType,
			"attempts", attempts)
		if err := d.repo.MarkDeadLetter(ctx, entry.ID, applyErr.Error()); err != nil {
			d.logger.Error(err, "failed to dead-letter entry", "entry_id", entry.ID.String())
		}
		d.metrics.OutboxEntriesDeadLetter.Inc()
		return
	}

	nextRetryAt := d.nextRetryAt(attempts)
	d.logger.Warn("entry failed, scheduling retry",
		"entry_id", entry.ID.String(),
		"event_type", entry.EventType,
		"attempts", attempts,
		"next_retry_at", nextRetryAt.Format(time.RFC3339),
		"error", applyErr.Error())
	d.metrics.OutboxRetries.WithLabelValues(entry.EventType).Inc()

	if err := d.repo.MarkFailed(ctx, entry.ID, applyErr.Error(), &nextRetryAt); err != nil {
		d.logger.Error(err, "failed to mark entry failed", "entry_id", entry.ID.String())
	}
}

// nextRetryAt computes now + 2^attempts * baseRetryDelay.
func (d *Dispatcher) nextRetryAt(attempts int) time.Time {
	backoff := time.Duration(math.Pow(2, float64(attempts))) * d.config.BaseRetryDelay
	return time.Now().UTC().Add(backoff)
}
