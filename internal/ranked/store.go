// Package ranked implements the ordered-score store on Redis. Each
// leaderboard is a sorted set ordered by a composite (score, subscore) value
// with a hash per owner holding the full record.
package ranked

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

// subscoreBits is how many low bits of the composite sort value the subscore
// occupies. Scores up to 2^33 stay exact in the float64 sorted-set score.
const subscoreBits = 20

const subscoreMask = int64(1)<<subscoreBits - 1

// bestWriteScript atomically replaces an owner's entry only when the new
// composite value ranks at least as well as the stored one. Returns 1 when
// the entry was written, 0 when the stored record was kept.
var bestWriteScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2],
  'score', ARGV[3],
  'subscore', ARGV[4],
  'username', ARGV[5],
  'metadata', ARGV[6],
  'update_time', ARGV[7])
return 1
`)

// Store provides Redis-based ranked leaderboard operations
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore creates a new ranked store backed by Redis
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ranksKey(leaderboardID string) string {
	return fmt.Sprintf("leaderboard:%s:ranks", leaderboardID)
}

func (s *Store) recordKey(leaderboardID, userID string) string {
	return fmt.Sprintf("leaderboard:%s:record:%s", leaderboardID, userID)
}

func (s *Store) metaKey(leaderboardID string) string {
	return fmt.Sprintf("leaderboard:%s:meta", leaderboardID)
}

// scoreMax bounds the score so the shifted value stays within int64. The
// validation layer rejects larger scores (domain.MaxScore); the clamp keeps
// the ordering monotonic for records that arrive through bulk loads.
const scoreMax = int64(1)<<43 - 1

// compositeScore folds the subscore into the low bits of the sort value so
// the sorted set orders by score first, subscore second. Out-of-range inputs
// are clamped to the encodable maximum.
func compositeScore(score, subscore int64) float64 {
	if score > scoreMax {
		score = scoreMax
	}
	if subscore > subscoreMask {
		subscore = subscoreMask
	}
	return float64(score<<subscoreBits | subscore)
}

// EnsureLeaderboard idempotently creates leaderboard metadata at startup.
func (s *Store) EnsureLeaderboard(ctx context.Context, leaderboardID string) error {
	created, err := s.client.HSetNX(ctx, s.metaKey(leaderboardID), "created_at", time.Now().Unix()).Result()
	if err != nil {
		return fmt.Errorf("ensuring leaderboard: %w", err)
	}
	if created {
		if err := s.client.HSet(ctx, s.metaKey(leaderboardID),
			"game", "LumaRush",
			"platform", "terapixel",
			"sort_order", "descending",
			"operator", "best",
		).Err(); err != nil {
			return fmt.Errorf("writing leaderboard meta: %w", err)
		}
		s.logger.Info("created leaderboard", "leaderboard_id", leaderboardID)
		return nil
	}
	s.logger.Info("leaderboard already exists", "leaderboard_id", leaderboardID)
	return nil
}

// WriteRecord submits an owner's score under best aggregation and returns the
// resulting authoritative record. When the stored record ranks better than
// the submission, the stored record is returned unchanged.
func (s *Store) WriteRecord(ctx context.Context, leaderboardID, userID, username string, score, subscore int64, metadata map[string]interface{}) (*domain.LeaderboardRecord, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	keys := []string{s.ranksKey(leaderboardID), s.recordKey(leaderboardID, userID)}
	argv := []interface{}{
		userID,
		compositeScore(score, subscore),
		score,
		subscore,
		username,
		string(metadataJSON),
		time.Now().Unix(),
	}
	if err := bestWriteScript.Run(ctx, s.client, keys, argv...).Err(); err != nil {
		return nil, fmt.Errorf("writing record: %w", err)
	}

	return s.GetRecord(ctx, leaderboardID, userID)
}

// GetRecord returns one owner's record with its current rank.
func (s *Store) GetRecord(ctx context.Context, leaderboardID, userID string) (*domain.LeaderboardRecord, error) {
	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, s.recordKey(leaderboardID, userID))
	rankCmd := pipe.ZRevRank(ctx, s.ranksKey(leaderboardID), userID)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("reading rank: %w", err)
	}

	return recordFromHash(leaderboardID, userID, rank+1, fields), nil
}

// ListRecords returns a page of records. With ownerIDs set, the page's
// OwnerRecords carries those owners' records and no general listing is done.
func (s *Store) ListRecords(ctx context.Context, leaderboardID string, ownerIDs []string, limit int, cursor string) (*domain.RecordPage, error) {
	rankCount, err := s.client.ZCard(ctx, s.ranksKey(leaderboardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("counting ranks: %w", err)
	}

	page := &domain.RecordPage{RankCount: rankCount}

	if len(ownerIDs) > 0 {
		for _, ownerID := range ownerIDs {
			record, err := s.GetRecord(ctx, leaderboardID, ownerID)
			if err != nil {
				if err == domain.ErrRecordNotFound {
					continue
				}
				return nil, err
			}
			page.OwnerRecords = append(page.OwnerRecords, *record)
		}
		return page, nil
	}

	offset, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	userIDs, err := s.client.ZRevRange(ctx, s.ranksKey(leaderboardID), offset, offset+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing ranks: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(leaderboardID, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	for i, userID := range userIDs {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		record := recordFromHash(leaderboardID, userID, offset+int64(i)+1, fields)
		page.Records = append(page.Records, *record)
	}

	if offset+int64(len(userIDs)) < rankCount {
		page.NextCursor = encodeCursor(offset + int64(limit))
	}
	if offset > 0 {
		prev := offset - int64(limit)
		if prev < 0 {
			prev = 0
		}
		page.PrevCursor = encodeCursor(prev)
	}

	return page, nil
}

// AllRecords returns every record of a leaderboard, best first. Used by the
// sync worker.
func (s *Store) AllRecords(ctx context.Context, leaderboardID string) ([]domain.LeaderboardRecord, error) {
	userIDs, err := s.client.ZRevRange(ctx, s.ranksKey(leaderboardID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing all ranks: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(leaderboardID, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading all records: %w", err)
	}

	records := make([]domain.LeaderboardRecord, 0, len(userIDs))
	for i, userID := range userIDs {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		records = append(records, *recordFromHash(leaderboardID, userID, int64(i)+1, fields))
	}
	return records, nil
}

// LoadRecords bulk-writes records into Redis, used to restore a leaderboard
// from the durable store at startup.
func (s *Store) LoadRecords(ctx context.Context, leaderboardID string, records []domain.LeaderboardRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, record := range records {
		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		pipe.ZAdd(ctx, s.ranksKey(leaderboardID), redis.Z{
			Score:  compositeScore(record.Score, record.Subscore),
			Member: record.UserID,
		})
		pipe.HSet(ctx, s.recordKey(leaderboardID, record.UserID),
			"score", record.Score,
			"subscore", record.Subscore,
			"username", record.Username,
			"metadata", string(metadataJSON),
			"update_time", record.UpdateTime.Unix(),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	return nil
}

// RankCount returns the number of ranked owners in a leaderboard.
func (s *Store) RankCount(ctx context.Context, leaderboardID string) (int64, error) {
	count, err := s.client.ZCard(ctx, s.ranksKey(leaderboardID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting ranks: %w", err)
	}
	return count, nil
}

func recordFromHash(leaderboardID, userID string, rank int64, fields map[string]string) *domain.LeaderboardRecord {
	score, _ := strconv.ParseInt(fields["score"], 10, 64)
	subscore, _ := strconv.ParseInt(fields["subscore"], 10, 64)
	updateUnix, _ := strconv.ParseInt(fields["update_time"], 10, 64)

	metadata := map[string]interface{}{}
	if raw := fields["metadata"]; raw != "" {
		json.Unmarshal([]byte(raw), &metadata)
	}

	return &domain.LeaderboardRecord{
		LeaderboardID: leaderboardID,
		UserID:        userID,
		Username:      fields["username"],
		Score:         score,
		Subscore:      subscore,
		Rank:          rank,
		Metadata:      metadata,
		UpdateTime:    time.Unix(updateUnix, 0).UTC(),
	}
}

func encodeCursor(offset int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(offset, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, domain.ErrInvalidCursor
	}
	offset, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || offset < 0 {
		return 0, domain.ErrInvalidCursor
	}
	return offset, nil
}
