package ranked

import (
	"testing"
	"time"

	"github.com/lumarush/lumarush-backend/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestCompositeScore_OrdersByScoreThenSubscore(t *testing.T) {
	// Higher score always wins, regardless of subscore.
	require.Greater(t, compositeScore(101, 0), compositeScore(100, subscoreMask))

	// Equal scores: subscore breaks the tie.
	require.Greater(t, compositeScore(100, 2), compositeScore(100, 1))
	require.Equal(t, compositeScore(100, 5), compositeScore(100, 5))

	// Zero is the floor.
	require.Equal(t, float64(0), compositeScore(0, 0))
}

func TestCompositeScore_ClampsOversizedSubscore(t *testing.T) {
	clamped := compositeScore(10, subscoreMask+1000)
	require.Equal(t, compositeScore(10, subscoreMask), clamped)

	// The clamp keeps the subscore from bleeding into the score bits.
	require.Less(t, clamped, compositeScore(11, 0))
}

func TestCompositeScore_LargestAcceptedScoreStaysOrdered(t *testing.T) {
	top := compositeScore(domain.MaxScore, domain.MaxSubscore)
	require.Greater(t, top, float64(0))
	require.Greater(t, top, compositeScore(1, 0))
	require.Greater(t, top, compositeScore(domain.MaxScore-1, domain.MaxSubscore))
}

func TestCompositeScore_ClampsOversizedScore(t *testing.T) {
	// Past the cap, the shift would wrap negative; the clamp pins the sort
	// value at the encodable maximum instead.
	clamped := compositeScore(scoreMax+1, 0)
	require.Greater(t, clamped, float64(0))
	require.Greater(t, clamped, compositeScore(1, 0))
	require.Equal(t, compositeScore(scoreMax, 0), clamped)
}

func TestCompositeScore_ExactInFloat64(t *testing.T) {
	// Values near the top of the intended score range stay exact.
	a := compositeScore(1<<33-1, subscoreMask)
	b := compositeScore(1<<33-1, subscoreMask-1)
	require.Greater(t, a, b)
	require.Equal(t, float64(1), a-b)
}

func TestCursor_Roundtrip(t *testing.T) {
	for _, offset := range []int64{0, 1, 25, 100, 1 << 40} {
		decoded, err := decodeCursor(encodeCursor(offset))
		require.NoError(t, err)
		require.Equal(t, offset, decoded)
	}
}

func TestCursor_EmptyMeansStart(t *testing.T) {
	offset, err := decodeCursor("")
	require.NoError(t, err)
	require.Zero(t, offset)
}

func TestCursor_InvalidInputs(t *testing.T) {
	for _, cursor := range []string{
		"!!!not-base64!!!",
		encodeCursor(-5),
		"bm90LWEtbnVtYmVy", // base64url("not-a-number")
	} {
		_, err := decodeCursor(cursor)
		require.ErrorIs(t, err, domain.ErrInvalidCursor, "cursor %q", cursor)
	}
}

func TestRecordFromHash(t *testing.T) {
	record := recordFromHash("lumarush_high_scores", "u1", 3, map[string]string{
		"score":       "1200",
		"subscore":    "40",
		"username":    "pilot",
		"metadata":    `{"stage":"nebula"}`,
		"update_time": "1700000000",
	})

	require.Equal(t, "lumarush_high_scores", record.LeaderboardID)
	require.Equal(t, "u1", record.UserID)
	require.Equal(t, "pilot", record.Username)
	require.Equal(t, int64(1200), record.Score)
	require.Equal(t, int64(40), record.Subscore)
	require.Equal(t, int64(3), record.Rank)
	require.Equal(t, "nebula", record.Metadata["stage"])
	require.Equal(t, time.Unix(1700000000, 0).UTC(), record.UpdateTime)
}

func TestRecordFromHash_MissingMetadata(t *testing.T) {
	record := recordFromHash("lumarush_high_scores", "u1", 1, map[string]string{
		"score": "10",
	})
	require.NotNil(t, record.Metadata)
	require.Empty(t, record.Metadata)
}
