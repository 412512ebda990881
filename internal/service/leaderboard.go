// Package service implements the score submission pipeline and the read-only
// query surface over the ranked and durable stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

// RankedStore is the ordered-score store a leaderboard lives in.
type RankedStore interface {
	WriteRecord(ctx context.Context, leaderboardID, userID, username string, score, subscore int64, metadata map[string]interface{}) (*domain.LeaderboardRecord, error)
	ListRecords(ctx context.Context, leaderboardID string, ownerIDs []string, limit int, cursor string) (*domain.RecordPage, error)
}

// StatsStore is the durable per-player store behind the stats mirror.
type StatsStore interface {
	WritePlayerStats(ctx context.Context, userID string, stats domain.PlayerStats) error
	GetPlayerStats(ctx context.Context, userID string) (*domain.PlayerStats, error)
	RecordScoreEvent(ctx context.Context, event domain.ScoreEvent) error
}

// EventPublisher delivers best-effort analytics events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, identity domain.Identity, payload map[string]interface{})
}

// Broadcaster fans a resulting record out to live subscribers.
type Broadcaster interface {
	BroadcastRecord(leaderboardID string, record *domain.LeaderboardRecord)
}

// LeaderboardService provides the score pipeline and query surface
type LeaderboardService struct {
	leaderboardID string
	ranked        RankedStore
	stats         StatsStore
	publisher     EventPublisher
	broadcaster   Broadcaster
	logger        *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	cfg *config.PlatformConfig,
	ranked RankedStore,
	stats StatsStore,
	publisher EventPublisher,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		leaderboardID: cfg.LeaderboardID,
		ranked:        ranked,
		stats:         stats,
		publisher:     publisher,
		logger:        logger,
	}
}

// SetBroadcaster attaches a live-update broadcaster.
func (s *LeaderboardService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// LeaderboardID returns the configured leaderboard identifier.
func (s *LeaderboardService) LeaderboardID() string {
	return s.leaderboardID
}

// Submit validates a raw score submission, writes it to the ranked store
// under best aggregation, mirrors the resulting record into the player's
// stats, and fires a score_submitted event. A store failure aborts the
// remaining steps; a publish failure never fails the submission.
func (s *LeaderboardService) Submit(ctx context.Context, identity domain.Identity, raw []byte) (*domain.SubmissionResult, error) {
	if identity.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	submission, err := domain.ParseScoreSubmission(raw)
	if err != nil {
		return nil, err
	}

	record, err := s.ranked.WriteRecord(ctx,
		s.leaderboardID,
		identity.UserID,
		identity.Username,
		submission.Score,
		submission.Subscore,
		submission.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("writing leaderboard record: %w", err)
	}

	err = s.stats.WritePlayerStats(ctx, identity.UserID, domain.PlayerStats{
		BestScore:     record.Score,
		BestSubscore:  record.Subscore,
		Rank:          record.Rank,
		LeaderboardID: record.LeaderboardID,
		UpdatedAt:     record.UpdateTime,
	})
	if err != nil {
		return nil, fmt.Errorf("writing player stats: %w", err)
	}

	if err := s.stats.RecordScoreEvent(ctx, domain.ScoreEvent{
		LeaderboardID: s.leaderboardID,
		UserID:        identity.UserID,
		Score:         submission.Score,
		Subscore:      submission.Subscore,
		EventType:     "submit",
		Metadata:      submission.Metadata,
		Timestamp:     time.Now(),
	}); err != nil {
		s.logger.Warn("failed to record score event", "user_id", identity.UserID, "error", err)
	}

	s.publisher.Publish(ctx, "score_submitted", identity, map[string]interface{}{
		"leaderboardId": s.leaderboardID,
		"score":         record.Score,
		"subscore":      record.Subscore,
		"rank":          record.Rank,
		"metadata":      record.Metadata,
	})

	if s.broadcaster != nil {
		s.broadcaster.BroadcastRecord(s.leaderboardID, record)
	}

	return &domain.SubmissionResult{
		LeaderboardID: s.leaderboardID,
		Record:        record,
	}, nil
}

// GetMyHighScore returns the caller's own leaderboard record and stats
// mirror. The ranked store may answer an owner-filtered listing in either of
// two shapes; the owner records list is preferred.
func (s *LeaderboardService) GetMyHighScore(ctx context.Context, identity domain.Identity) (*domain.HighScoreResult, error) {
	if identity.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	page, err := s.ranked.ListRecords(ctx, s.leaderboardID, []string{identity.UserID}, 1, "")
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			page = &domain.RecordPage{}
		} else {
			return nil, fmt.Errorf("listing owner records: %w", err)
		}
	}

	var highScore *domain.LeaderboardRecord
	switch {
	case len(page.OwnerRecords) > 0:
		highScore = &page.OwnerRecords[0]
	case len(page.Records) > 0:
		highScore = &page.Records[0]
	}

	stats, err := s.stats.GetPlayerStats(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting player stats: %w", err)
	}

	return &domain.HighScoreResult{
		LeaderboardID: s.leaderboardID,
		HighScore:     highScore,
		PlayerStats:   stats,
	}, nil
}

// ListLeaderboard returns one page of the leaderboard. No authentication is
// required; the raw payload may be empty.
func (s *LeaderboardService) ListLeaderboard(ctx context.Context, raw []byte) (*domain.LeaderboardListing, error) {
	query, err := domain.ParseListQuery(raw)
	if err != nil {
		return nil, err
	}

	page, err := s.ranked.ListRecords(ctx, s.leaderboardID, nil, query.Limit, query.Cursor)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard records: %w", err)
	}

	records := page.Records
	if records == nil {
		records = []domain.LeaderboardRecord{}
	}

	return &domain.LeaderboardListing{
		LeaderboardID: s.leaderboardID,
		Records:       records,
		NextCursor:    page.NextCursor,
		PrevCursor:    page.PrevCursor,
		RankCount:     page.RankCount,
	}, nil
}
