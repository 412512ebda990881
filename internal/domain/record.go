package domain

import (
	"encoding/json"
	"time"
)

// Identity is the authenticated caller, supplied by the session layer.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// AuthProvider names the mechanism a login attempt came through.
type AuthProvider string

const (
	AuthProviderCustom AuthProvider = "custom"
	AuthProviderDevice AuthProvider = "device"
)

// LeaderboardRecord is the authoritative ranked-store record for one
// (leaderboard, user) pair.
type LeaderboardRecord struct {
	LeaderboardID string                 `json:"leaderboardId"`
	UserID        string                 `json:"ownerId"`
	Username      string                 `json:"username"`
	Score         int64                  `json:"score"`
	Subscore      int64                  `json:"subscore"`
	Rank          int64                  `json:"rank"`
	Metadata      map[string]interface{} `json:"metadata"`
	UpdateTime    time.Time              `json:"updateTime"`
}

// RecordPage is one page of leaderboard records. OwnerRecords carries the
// requested owners' records when the listing was filtered by owner; general
// listings populate Records.
type RecordPage struct {
	Records      []LeaderboardRecord `json:"records"`
	OwnerRecords []LeaderboardRecord `json:"ownerRecords"`
	NextCursor   string              `json:"nextCursor"`
	PrevCursor   string              `json:"prevCursor"`
	RankCount    int64               `json:"rankCount"`
}

// PlayerStats mirrors the fields of a player's latest leaderboard record for
// cheap per-user lookup. It is overwritten on every successful submission.
type PlayerStats struct {
	BestScore     int64     `json:"bestScore"`
	BestSubscore  int64     `json:"bestSubscore"`
	Rank          int64     `json:"rank"`
	LeaderboardID string    `json:"leaderboardId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SubmissionResult is the response body of a score submission.
type SubmissionResult struct {
	LeaderboardID string             `json:"leaderboardId"`
	Record        *LeaderboardRecord `json:"record"`
}

// HighScoreResult is the response body of a get-my-high-score call.
// PlayerStats serializes as an empty object when no stats are stored yet.
type HighScoreResult struct {
	LeaderboardID string             `json:"leaderboardId"`
	HighScore     *LeaderboardRecord `json:"highScore"`
	PlayerStats   *PlayerStats       `json:"playerStats"`
}

// MarshalJSON renders a missing stats mirror as {} rather than null.
func (r HighScoreResult) MarshalJSON() ([]byte, error) {
	var stats interface{} = r.PlayerStats
	if r.PlayerStats == nil {
		stats = struct{}{}
	}
	return json.Marshal(struct {
		LeaderboardID string             `json:"leaderboardId"`
		HighScore     *LeaderboardRecord `json:"highScore"`
		PlayerStats   interface{}        `json:"playerStats"`
	}{r.LeaderboardID, r.HighScore, stats})
}

// LeaderboardListing is the response body of a list-leaderboard call.
type LeaderboardListing struct {
	LeaderboardID string              `json:"leaderboardId"`
	Records       []LeaderboardRecord `json:"records"`
	NextCursor    string              `json:"nextCursor"`
	PrevCursor    string              `json:"prevCursor"`
	RankCount     int64               `json:"rankCount"`
}

// PlatformEvent is the body sent to the platform's event-ingestion endpoint.
// Constructed and sent, never persisted locally.
type PlatformEvent struct {
	EventType      string                 `json:"eventType"`
	Source         string                 `json:"source"`
	OccurredAtUnix int64                  `json:"occurredAtUnix"`
	UserID         string                 `json:"userId"`
	Username       string                 `json:"username"`
	Payload        map[string]interface{} `json:"payload"`
}

// ScoreEvent is the audit row recorded for every accepted submission.
type ScoreEvent struct {
	LeaderboardID string                 `json:"leaderboard_id"`
	UserID        string                 `json:"user_id"`
	Score         int64                  `json:"score"`
	Subscore      int64                  `json:"subscore"`
	EventType     string                 `json:"event_type"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}
