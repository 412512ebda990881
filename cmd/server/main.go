package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumarush/lumarush-backend/internal/auth"
	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/handler"
	"github.com/lumarush/lumarush-backend/internal/kafka"
	"github.com/lumarush/lumarush-backend/internal/platform"
	"github.com/lumarush/lumarush-backend/internal/postgres"
	"github.com/lumarush/lumarush-backend/internal/ranked"
	"github.com/lumarush/lumarush-backend/internal/service"
	"github.com/lumarush/lumarush-backend/internal/worker"
	"github.com/lumarush/lumarush-backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using environment and defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ranked store
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rankedStore, err := ranked.NewStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rankedStore.Close()

	// Durable store
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := rankedStore.EnsureLeaderboard(ctx, cfg.Platform.LeaderboardID); err != nil {
		logger.Error("failed to ensure leaderboard", "error", err)
		os.Exit(1)
	}

	// Platform clients
	verifier := platform.NewVerifier(&cfg.Platform, logger)
	publisher := platform.NewPublisher(&cfg.Platform, logger)

	// Websocket hub
	hub := ws.NewHub(logger)
	go hub.Run()

	// Services
	leaderboardService := service.NewLeaderboardService(&cfg.Platform, rankedStore, repo, publisher, logger)
	leaderboardService.SetBroadcaster(hub)

	sessions := auth.NewSessions(&cfg.Session)
	authenticator := auth.NewAuthenticator(verifier, publisher, sessions, logger)

	// Sync worker: restore from the durable copy, then mirror periodically.
	syncWorker := worker.NewSyncWorker(cfg.Platform.LeaderboardID, rankedStore, repo, &cfg.Sync, logger)
	if err := syncWorker.RestoreFromDurable(ctx); err != nil {
		logger.Warn("failed to restore leaderboard from database", "error", err)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Kafka ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	httpHandler := handler.NewHandler(leaderboardService, authenticator, sessions, hub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"leaderboard_id", cfg.Platform.LeaderboardID,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	// Final mirror so the durable copy is current at shutdown.
	if err := syncWorker.SyncToDurable(shutdownCtx); err != nil {
		logger.Warn("final sync failed", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
