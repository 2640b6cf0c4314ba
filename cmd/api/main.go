package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/MCLifeLeader/chat-service/internal/config"
	"github.com/MCLifeLeader/chat-service/internal/handler"
	messageHandler "github.com/MCLifeLeader/chat-service/internal/handler/message"
	outboxHandler "github.com/MCLifeLeader/chat-service/internal/handler/outbox"
	sessionHandler "github.com/MCLifeLeader/chat-service/internal/handler/session"
	"github.com/MCLifeLeader/chat-service/internal/middleware"
	"github.com/MCLifeLeader/chat-service/internal/projector"
	"github.com/MCLifeLeader/chat-service/internal/repository/postgres"
	"github.com/MCLifeLeader/chat-service/internal/repository/redisdoc"
	"github.com/MCLifeLeader/chat-service/internal/router"
	chatService "github.com/MCLifeLeader/chat-service/internal/service/chat"
	"github.com/MCLifeLeader/chat-service/pkg/logger"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
	"github.com/MCLifeLeader/chat-service/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
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

	m := metrics.NewMetrics("chat", "api")

	docStore, err := redisdoc.NewStore(cfg.Redis, &log.Logger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to document store")
	}
	defer docStore.Close()

	baseRepo := postgres.NewBaseRepository(db)
	sessionRepo := postgres.NewSessionRepository(baseRepo)
	messageRepo := postgres.NewMessageRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	chatSvc := chatService.NewService(sessionRepo, messageRepo, outboxRepo, m)

	healthH := handler.NewHealthHandler(db)
	sessionH := sessionHandler.NewHandler(chatSvc, docStore)
	messageH := messageHandler.NewHandler(chatSvc, docStore)
	outboxH := outboxHandler.NewHandler(outboxRepo, m)

	r := router.NewRouter(
		router.RouterConfig{
			RateLimit:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:  cfg.RateLimit.Burst,
			CORSConfig: middleware.DefaultCORSConfig(),
		},
		healthH,
		sessionH,
		messageH,
		outboxH,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})

	if cfg.Outbox.Enabled {
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

		go func() {
			defer close(dispatcherDone)
			dispatcher.Start(dispatcherCtx)
		}()
	} else {
		close(dispatcherDone)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Bounded grace period for the in-flight outbox batch.
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("dispatcher did not finish within the grace period")
	}

	log.Info().Msg("server stopped")
}
