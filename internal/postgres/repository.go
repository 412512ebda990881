package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
)

// Repository provides PostgreSQL-based durable storage: the per-player stats
// mirror, a durable copy of leaderboard records, and the score audit trail.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS player_stats (
			user_id VARCHAR(64) PRIMARY KEY,
			leaderboard_id VARCHAR(64) NOT NULL,
			best_score BIGINT NOT NULL,
			best_subscore BIGINT NOT NULL DEFAULT 0,
			rank BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_records (
			leaderboard_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			username VARCHAR(128) NOT NULL DEFAULT '',
			score BIGINT NOT NULL,
			subscore BIGINT NOT NULL DEFAULT 0,
			metadata JSONB,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (leaderboard_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS score_events (
			id BIGSERIAL PRIMARY KEY,
			leaderboard_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			score BIGINT NOT NULL,
			subscore BIGINT NOT NULL DEFAULT 0,
			event_type VARCHAR(20) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_records_score ON leaderboard_records(leaderboard_id, score DESC, subscore DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_user ON score_events(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// WritePlayerStats overwrites a player's stats mirror. The mirror always
// reflects the most recent submission's resulting record; it is never merged
// against the prior value.
func (r *Repository) WritePlayerStats(ctx context.Context, userID string, stats domain.PlayerStats) error {
	query := `
		INSERT INTO player_stats (user_id, leaderboard_id, best_score, best_subscore, rank, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id)
		DO UPDATE SET leaderboard_id = $2, best_score = $3, best_subscore = $4, rank = $5, updated_at = $6
	`
	_, err := r.pool.Exec(ctx, query,
		userID,
		stats.LeaderboardID,
		stats.BestScore,
		stats.BestSubscore,
		stats.Rank,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("writing player stats: %w", err)
	}
	return nil
}

// GetPlayerStats returns a player's stats mirror, or nil when none is stored.
func (r *Repository) GetPlayerStats(ctx context.Context, userID string) (*domain.PlayerStats, error) {
	query := `
		SELECT leaderboard_id, best_score, best_subscore, rank, updated_at
		FROM player_stats
		WHERE user_id = $1
	`
	var stats domain.PlayerStats
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.LeaderboardID,
		&stats.BestScore,
		&stats.BestSubscore,
		&stats.Rank,
		&stats.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting player stats: %w", err)
	}
	return &stats, nil
}

// RecordScoreEvent records a score event for auditing
func (r *Repository) RecordScoreEvent(ctx context.Context, event domain.ScoreEvent) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO score_events (leaderboard_id, user_id, score, subscore, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		event.LeaderboardID,
		event.UserID,
		event.Score,
		event.Subscore,
		event.EventType,
		metadataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording score event: %w", err)
	}
	return nil
}

// UpsertRecords writes a batch of leaderboard records into the durable copy.
func (r *Repository) UpsertRecords(ctx context.Context, records []domain.LeaderboardRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO leaderboard_records (leaderboard_id, user_id, username, score, subscore, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (leaderboard_id, user_id)
		DO UPDATE SET username = $3, score = $4, subscore = $5, metadata = $6, updated_at = $7
	`
	now := time.Now()

	for _, record := range records {
		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		batch.Queue(query,
			record.LeaderboardID,
			record.UserID,
			record.Username,
			record.Score,
			record.Subscore,
			metadataJSON,
			now,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting records: %w", err)
		}
	}
	return nil
}

// AllRecords returns the durable copy of a leaderboard, best first. Used to
// restore Redis at startup.
func (r *Repository) AllRecords(ctx context.Context, leaderboardID string) ([]domain.LeaderboardRecord, error) {
	query := `
		SELECT user_id, username, score, subscore, metadata, updated_at
		FROM leaderboard_records
		WHERE leaderboard_id = $1
		ORDER BY score DESC, subscore DESC
	`
	rows, err := r.pool.Query(ctx, query, leaderboardID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []domain.LeaderboardRecord
	for rows.Next() {
		var record domain.LeaderboardRecord
		var metadataJSON []byte
		err := rows.Scan(
			&record.UserID,
			&record.Username,
			&record.Score,
			&record.Subscore,
			&metadataJSON,
			&record.UpdateTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		record.LeaderboardID = leaderboardID
		record.Metadata = map[string]interface{}{}
		if len(metadataJSON) > 0 {
			json.Unmarshal(metadataJSON, &record.Metadata)
		}
		records = append(records, record)
	}
	return records, nil
}
