// The worker binary runs the outbox dispatcher on its own, for deployments
// that scale the drain loop independently of the API. Multiple instances may
// run against the same database; the conditional claim keeps them safe.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/MCLifeLeader/chat-service/internal/config"
	"github.com/MCLifeLeader/chat-service/internal/projector"
	"github.com/MCLifeLeader/chat-service/internal/repository/postgres"
	"github.com/MCLifeLeader/chat-service/internal/repository/redisdoc"
	"github.com/MCLifeLeader/chat-service/pkg/logger"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
	"github.com/MCLifeLeader/chat-service/pkg/worker"
)

func setupHealthCheck() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	m := metrics.NewMetrics("chat", "worker")

	docStore, err := redisdoc.NewStore(cfg.Redis, &log.Logger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to document store")
	}
	defer docStore.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	proj := projector.New(docStore, appLogger, cfg.Outbox.DeadLetterUnknownEvents)

	dispatcher := worker.NewDispatcher(
		outboxRepo,
		proj,
		worker.DispatcherConfig{
			BatchSize:        cfg.Outbox.BatchSize,
			PollInterval:     cfg.Outbox.ProcessingInterval(),
			MaxRetryAttempts: cfg.Outbox.MaxRetryAttempts,
			MaxConcurrency:   cfg.Outbox.MaxConcurrency,
			BaseRetryDelay:   cfg.Outbox.BaseRetryDelay(),
		},
		appLogger,
		m,
	)

	setupHealthCheck()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	dispatcher.Start(ctx)
}
