package streak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	db := testutil.NewTestDB(t, &StreakState{})
	return NewTracker(TrackerParams{DB: db})
}

func TestFirstCreditStartsStreak(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	current, err := tr.RecordEngagement(ctx, nil, "u1", "2026-08-01")
	require.NoError(t, err)
	require.Equal(t, int64(1), current)

	state, err := tr.StreakOf(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Current)
	require.Equal(t, int64(1), state.Longest)
	require.Equal(t, "2026-08-01", state.LastCreditedDay)
}

func TestConsecutiveDaysIncrement(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	for _, day := range []string{"2026-08-01", "2026-08-02", "2026-08-03"} {
		_, err := tr.RecordEngagement(ctx, nil, "u1", day)
		require.NoError(t, err)
	}

	state, err := tr.StreakOf(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), state.Current)
	require.Equal(t, int64(3), state.Longest)
}

func TestSameDayRepeatIsNoOp(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	_, err := tr.RecordEngagement(ctx, nil, "u1", "2026-08-01")
	require.NoError(t, err)
	_, err = tr.RecordEngagement(ctx, nil, "u1", "2026-08-02")
	require.NoError(t, err)

	current, err := tr.RecordEngagement(ctx, nil, "u1", "2026-08-02")
	require.NoError(t, err)
	require.Equal(t, int64(2), current)
}

func TestGapResetsButKeepsLongest(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	_, err := tr.RecordEngagement(ctx, nil, "u1", "2026-08-01")
	require.NoError(t, err)
	_, err = tr.RecordEngagement(ctx, nil, "u1", "2026-08-02")
	require.NoError(t, err)

	// Day 3 is skipped; day 4 starts over.
	current, err := tr.RecordEngagement(ctx, nil, "u1", "2026-08-04")
	require.NoError(t, err)
	require.Equal(t, int64(1), current)

	state, err := tr.StreakOf(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Current)
	require.Equal(t, int64(2), state.Longest)
}

func TestStreakOfUnknownUser(t *testing.T) {
	tr := newTracker(t)

	state, err := tr.StreakOf(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, int64(0), state.Current)
	require.Equal(t, int64(0), state.Longest)
	require.Empty(t, state.LastCreditedDay)
}

func TestRecordEngagementInTransaction(t *testing.T) {
	db := testutil.NewTestDB(t, &StreakState{})
	tr := NewTracker(TrackerParams{DB: db})
	ctx := context.Background()

	tx := db.Begin()
	require.NoError(t, tx.Error)
	_, err := tr.RecordEngagement(ctx, tx, "u1", "2026-08-01")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback().Error)

	state, err := tr.StreakOf(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), state.Current)
}
