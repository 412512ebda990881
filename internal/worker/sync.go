// Package worker mirrors the Redis leaderboard into PostgreSQL on an
// interval and restores Redis from the durable copy at startup.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

// RankedSource is the live record set being mirrored.
type RankedSource interface {
	AllRecords(ctx context.Context, leaderboardID string) ([]domain.LeaderboardRecord, error)
	LoadRecords(ctx context.Context, leaderboardID string, records []domain.LeaderboardRecord) error
}

// DurableStore is the mirror's destination.
type DurableStore interface {
	UpsertRecords(ctx context.Context, records []domain.LeaderboardRecord) error
	AllRecords(ctx context.Context, leaderboardID string) ([]domain.LeaderboardRecord, error)
}

// SyncWorker periodically copies the ranked store's records into the
// durable store.
type SyncWorker struct {
	leaderboardID string
	ranked        RankedSource
	durable       DurableStore
	config        *config.SyncConfig
	logger        *slog.Logger
	stopCh        chan struct{}
	doneCh        chan struct{}
	mu            sync.Mutex
	running       bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	leaderboardID string,
	ranked RankedSource,
	durable DurableStore,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		leaderboardID: leaderboardID,
		ranked:        ranked,
		durable:       durable,
		config:        cfg,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.SyncToDurable(ctx); err != nil {
				w.logger.Error("sync cycle failed", "error", err)
			}
		}
	}
}

// SyncToDurable copies the full record set from Redis into PostgreSQL.
func (w *SyncWorker) SyncToDurable(ctx context.Context) error {
	start := time.Now()

	records, err := w.ranked.AllRecords(ctx, w.leaderboardID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		w.logger.Debug("no records to sync", "leaderboard_id", w.leaderboardID)
		return nil
	}

	batchSize := w.config.BatchSize
	for offset := 0; offset < len(records); offset += batchSize {
		end := offset + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := w.durable.UpsertRecords(ctx, records[offset:end]); err != nil {
			return err
		}
	}

	w.logger.Info("sync cycle completed",
		"leaderboard_id", w.leaderboardID,
		"record_count", len(records),
		"duration", time.Since(start),
	)
	return nil
}

// RestoreFromDurable loads the durable record copy back into Redis, used for
// recovery at startup.
func (w *SyncWorker) RestoreFromDurable(ctx context.Context) error {
	records, err := w.durable.AllRecords(ctx, w.leaderboardID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		w.logger.Debug("no durable records to restore", "leaderboard_id", w.leaderboardID)
		return nil
	}

	if err := w.ranked.LoadRecords(ctx, w.leaderboardID, records); err != nil {
		return err
	}

	w.logger.Info("restored leaderboard from durable store",
		"leaderboard_id", w.leaderboardID,
		"record_count", len(records),
	)
	return nil
}
