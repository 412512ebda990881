package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumarush/lumarush-backend/internal/config"
	"github.com/lumarush/lumarush-backend/internal/domain"
	"github.com/lumarush/lumarush-backend/internal/platform"
	"github.com/stretchr/testify/require"
)

const testLeaderboardID = "lumarush_high_scores"

// fakeRanked keeps one record per user under best aggregation, mimicking the
// store's compare-and-replace for (score, subscore).
type fakeRanked struct {
	records    map[string]*domain.LeaderboardRecord
	writeErr   error
	lastLimit  int
	lastCursor string
	lastOwners []string
}

func newFakeRanked() *fakeRanked {
	return &fakeRanked{records: make(map[string]*domain.LeaderboardRecord)}
}

func (f *fakeRanked) WriteRecord(_ context.Context, leaderboardID, userID, username string, score, subscore int64, metadata map[string]interface{}) (*domain.LeaderboardRecord, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	existing, ok := f.records[userID]
	if !ok || score > existing.Score || (score == existing.Score && subscore > existing.Subscore) {
		f.records[userID] = &domain.LeaderboardRecord{
			LeaderboardID: leaderboardID,
			UserID:        userID,
			Username:      username,
			Score:         score,
			Subscore:      subscore,
			Rank:          1,
			Metadata:      metadata,
			UpdateTime:    time.Now().UTC(),
		}
	}
	out := *f.records[userID]
	return &out, nil
}

func (f *fakeRanked) ListRecords(_ context.Context, _ string, ownerIDs []string, limit int, cursor string) (*domain.RecordPage, error) {
	f.lastLimit = limit
	f.lastCursor = cursor
	f.lastOwners = ownerIDs

	page := &domain.RecordPage{RankCount: int64(len(f.records))}
	if len(ownerIDs) > 0 {
		for _, ownerID := range ownerIDs {
			if record, ok := f.records[ownerID]; ok {
				page.OwnerRecords = append(page.OwnerRecords, *record)
			}
		}
		return page, nil
	}
	for _, record := range f.records {
		if len(page.Records) >= limit {
			break
		}
		page.Records = append(page.Records, *record)
	}
	return page, nil
}

type fakeStats struct {
	stats     map[string]*domain.PlayerStats
	events    []domain.ScoreEvent
	writeErr  error
	eventErr  error
	getErr    error
	writeCnt  int
	eventCnt  int
}

func newFakeStats() *fakeStats {
	return &fakeStats{stats: make(map[string]*domain.PlayerStats)}
}

func (f *fakeStats) WritePlayerStats(_ context.Context, userID string, stats domain.PlayerStats) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writeCnt++
	copied := stats
	f.stats[userID] = &copied
	return nil
}

func (f *fakeStats) GetPlayerStats(_ context.Context, userID string) (*domain.PlayerStats, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.stats[userID], nil
}

func (f *fakeStats) RecordScoreEvent(_ context.Context, event domain.ScoreEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.eventCnt++
	f.events = append(f.events, event)
	return nil
}

type publishedEvent struct {
	eventType string
	identity  domain.Identity
	payload   map[string]interface{}
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, identity domain.Identity, payload map[string]interface{}) {
	f.events = append(f.events, publishedEvent{eventType, identity, payload})
}

func newTestService(t *testing.T) (*LeaderboardService, *fakeRanked, *fakeStats, *fakePublisher) {
	t.Helper()
	ranked := newFakeRanked()
	stats := newFakeStats()
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLeaderboardService(
		&config.PlatformConfig{LeaderboardID: testLeaderboardID},
		ranked, stats, publisher, logger,
	)
	return svc, ranked, stats, publisher
}

func identity() domain.Identity {
	return domain.Identity{UserID: "u1", Username: "pilot"}
}

func TestSubmit_Success(t *testing.T) {
	svc, _, stats, publisher := newTestService(t)

	result, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 100, "subscore": 5, "metadata": {"stage": "nebula"}}`))
	require.NoError(t, err)

	require.Equal(t, testLeaderboardID, result.LeaderboardID)
	require.Equal(t, testLeaderboardID, result.Record.LeaderboardID)
	require.Equal(t, int64(100), result.Record.Score)
	require.Equal(t, int64(5), result.Record.Subscore)

	mirror := stats.stats["u1"]
	require.NotNil(t, mirror)
	require.Equal(t, int64(100), mirror.BestScore)
	require.Equal(t, int64(5), mirror.BestSubscore)
	require.Equal(t, result.Record.Rank, mirror.Rank)
	require.Equal(t, testLeaderboardID, mirror.LeaderboardID)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	require.Equal(t, "score_submitted", event.eventType)
	require.Equal(t, "u1", event.identity.UserID)
	require.Equal(t, testLeaderboardID, event.payload["leaderboardId"])
	require.Equal(t, int64(100), event.payload["score"])
	require.Equal(t, result.Record.Rank, event.payload["rank"])

	require.Len(t, stats.events, 1)
	require.Equal(t, "submit", stats.events[0].EventType)
}

func TestSubmit_Unauthenticated(t *testing.T) {
	svc, ranked, stats, publisher := newTestService(t)

	_, err := svc.Submit(context.Background(), domain.Identity{}, []byte(`{"score": 1}`))
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	require.Empty(t, ranked.records)
	require.Zero(t, stats.writeCnt)
	require.Empty(t, publisher.events)
}

func TestSubmit_InvalidPayloadsMutateNothing(t *testing.T) {
	svc, ranked, stats, publisher := newTestService(t)

	for name, payload := range map[string]string{
		"negative score": `{"score": -10}`,
		"missing score":  `{"subscore": 1}`,
		"non-numeric":    `{"score": "high"}`,
		"array payload":  `[1,2]`,
		"empty payload":  ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), identity(), []byte(payload))
			require.Error(t, err)
			require.True(t, domain.IsCallerError(err))
		})
	}

	require.Empty(t, ranked.records)
	require.Zero(t, stats.writeCnt)
	require.Empty(t, publisher.events)
}

func TestSubmit_ArrayMetadataBecomesEmptyObject(t *testing.T) {
	svc, ranked, _, _ := newTestService(t)

	result, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 10, "metadata": [1,2,3]}`))
	require.NoError(t, err)
	require.NotNil(t, result.Record.Metadata)
	require.Empty(t, result.Record.Metadata)
	require.Empty(t, ranked.records["u1"].Metadata)
}

func TestSubmit_StatsMirrorTracksStoreResult(t *testing.T) {
	svc, _, stats, _ := newTestService(t)
	ctx := context.Background()

	// Monotonic improvement: mirror follows each better record.
	_, err := svc.Submit(ctx, identity(), []byte(`{"score": 100}`))
	require.NoError(t, err)
	require.Equal(t, int64(100), stats.stats["u1"].BestScore)

	_, err = svc.Submit(ctx, identity(), []byte(`{"score": 250}`))
	require.NoError(t, err)
	require.Equal(t, int64(250), stats.stats["u1"].BestScore)

	// Regressive submission: the store keeps the best record, so the mirror
	// overwritten from the store's result still shows the best value.
	result, err := svc.Submit(ctx, identity(), []byte(`{"score": 50}`))
	require.NoError(t, err)
	require.Equal(t, int64(250), result.Record.Score)
	require.Equal(t, int64(250), stats.stats["u1"].BestScore)
	require.Equal(t, 3, stats.writeCnt)
}

func TestSubmit_RankedStoreFailureAbortsPipeline(t *testing.T) {
	svc, ranked, stats, publisher := newTestService(t)
	ranked.writeErr = errors.New("redis down")

	_, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 10}`))
	require.Error(t, err)
	require.Zero(t, stats.writeCnt)
	require.Empty(t, publisher.events)
}

func TestSubmit_StatsFailureAbortsRemainingSteps(t *testing.T) {
	svc, _, stats, publisher := newTestService(t)
	stats.writeErr = errors.New("postgres down")

	_, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 10}`))
	require.Error(t, err)
	require.Empty(t, publisher.events)
}

func TestSubmit_AuditFailureDoesNotFailSubmission(t *testing.T) {
	svc, _, stats, publisher := newTestService(t)
	stats.eventErr = errors.New("audit insert failed")

	result, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 10}`))
	require.NoError(t, err)
	require.Equal(t, int64(10), result.Record.Score)
	require.Len(t, publisher.events, 1)
}

func TestSubmit_PublishFailureDoesNotFailSubmission(t *testing.T) {
	// Real publisher against an endpoint that always answers 500.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ranked := newFakeRanked()
	stats := newFakeStats()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := platform.NewPublisher(&config.PlatformConfig{
		LeaderboardID: testLeaderboardID,
		EventURL:      srv.URL,
		HTTPTimeoutMs: 2000,
	}, logger)
	svc := NewLeaderboardService(&config.PlatformConfig{LeaderboardID: testLeaderboardID}, ranked, stats, publisher, logger)

	result, err := svc.Submit(context.Background(), identity(), []byte(`{"score": 77}`))
	require.NoError(t, err)
	require.Equal(t, int64(77), result.Record.Score)
}

func TestGetMyHighScore_PrefersOwnerRecords(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, identity(), []byte(`{"score": 300}`))
	require.NoError(t, err)

	result, err := svc.GetMyHighScore(ctx, identity())
	require.NoError(t, err)
	require.Equal(t, testLeaderboardID, result.LeaderboardID)
	require.NotNil(t, result.HighScore)
	require.Equal(t, int64(300), result.HighScore.Score)
	require.NotNil(t, result.PlayerStats)
	require.Equal(t, int64(300), result.PlayerStats.BestScore)
}

func TestGetMyHighScore_FallsBackToRecordsList(t *testing.T) {
	svc, _, stats, _ := newTestService(t)
	record := domain.LeaderboardRecord{LeaderboardID: testLeaderboardID, UserID: "u1", Score: 42, Rank: 1}
	svc.ranked = recordsOnlyRanked{record: record}

	result, err := svc.GetMyHighScore(context.Background(), identity())
	require.NoError(t, err)
	require.NotNil(t, result.HighScore)
	require.Equal(t, int64(42), result.HighScore.Score)
	require.Nil(t, result.PlayerStats)
	_ = stats
}

// recordsOnlyRanked answers owner listings in the generic records shape.
type recordsOnlyRanked struct {
	record domain.LeaderboardRecord
}

func (r recordsOnlyRanked) WriteRecord(context.Context, string, string, string, int64, int64, map[string]interface{}) (*domain.LeaderboardRecord, error) {
	return nil, errors.New("not implemented")
}

func (r recordsOnlyRanked) ListRecords(context.Context, string, []string, int, string) (*domain.RecordPage, error) {
	return &domain.RecordPage{Records: []domain.LeaderboardRecord{r.record}, RankCount: 1}, nil
}

func TestGetMyHighScore_NoRecordNoStats(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	result, err := svc.GetMyHighScore(context.Background(), identity())
	require.NoError(t, err)
	require.Nil(t, result.HighScore)
	require.Nil(t, result.PlayerStats)
}

func TestGetMyHighScore_Unauthenticated(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.GetMyHighScore(context.Background(), domain.Identity{})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestListLeaderboard_DefaultAndClampedLimits(t *testing.T) {
	svc, ranked, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListLeaderboard(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultListLimit, ranked.lastLimit)

	_, err = svc.ListLeaderboard(ctx, []byte(`{"limit": 500}`))
	require.NoError(t, err)
	require.Equal(t, domain.MaxListLimit, ranked.lastLimit)
}

func TestListLeaderboard_EmptyPageDefaults(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	listing, err := svc.ListLeaderboard(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, testLeaderboardID, listing.LeaderboardID)
	require.NotNil(t, listing.Records)
	require.Empty(t, listing.Records)
	require.Empty(t, listing.NextCursor)
	require.Empty(t, listing.PrevCursor)
	require.Zero(t, listing.RankCount)
}

func TestListLeaderboard_PassesCursor(t *testing.T) {
	svc, ranked, _, _ := newTestService(t)

	_, err := svc.ListLeaderboard(context.Background(), []byte(`{"cursor": "abc"}`))
	require.NoError(t, err)
	require.Equal(t, "abc", ranked.lastCursor)
}
