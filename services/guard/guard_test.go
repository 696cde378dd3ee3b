package guard

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardengine/pkg/errutil"
	"rewardengine/services/catalog"
	"rewardengine/services/ledger"
	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestGuard(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	cat, err := catalog.New(
		&catalog.ActionConfig{
			Type:          catalog.ActionWatchAd,
			MinDuration:   10 * time.Second,
			DailyCapCount: 2,
			Mode:          catalog.ModeFixed,
			Amount:        5,
		},
		&catalog.ActionConfig{
			Type:           catalog.ActionSpinWheel,
			MinDuration:    5 * time.Second,
			DailyCapAmount: 100,
			Mode:           catalog.ModeWeighted,
			Outcomes: []catalog.Outcome{
				{Amount: 25, Probability: 0.5},
				{Amount: 100, Probability: 0.5},
			},
		},
	)
	require.NoError(t, err)

	db := testutil.NewTestDB(t, &ledger.RewardGrant{}, &ledger.UserLedgerState{}, &ledger.DayCounter{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	led := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	return New(cat, led), led
}

func TestAuthorizeUnknownAction(t *testing.T) {
	svc, _ := newTestGuard(t)

	_, err := svc.Authorize(context.Background(), "u1", "plant_tree", "s1", 5, time.Now())
	require.True(t, errutil.Is(err, errutil.StatusUnknownAction))
}

func TestAuthorizeDuplicateSession(t *testing.T) {
	svc, led := newTestGuard(t)
	ctx := context.Background()
	now := time.Now()

	auth, err := svc.Authorize(ctx, "u1", catalog.ActionWatchAd, "s1", 5, now)
	require.NoError(t, err)
	_, err = led.Commit(ctx, auth, now, nil)
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, "u1", catalog.ActionWatchAd, "s1", 5, now)
	require.True(t, errutil.Is(err, errutil.StatusDuplicateSession))
}

func TestAuthorizeCountCap(t *testing.T) {
	svc, led := newTestGuard(t)
	ctx := context.Background()
	now := time.Now()

	for i, session := range []string{"s1", "s2"} {
		auth, err := svc.Authorize(ctx, "u1", catalog.ActionWatchAd, session, 5, now)
		require.NoErrorf(t, err, "credit %d", i)
		_, err = led.Commit(ctx, auth, now, nil)
		require.NoError(t, err)
	}

	_, err := svc.Authorize(ctx, "u1", catalog.ActionWatchAd, "s3", 5, now)
	require.True(t, errutil.Is(err, errutil.StatusDailyCapExceeded))

	// Another user is unaffected.
	_, err = svc.Authorize(ctx, "u2", catalog.ActionWatchAd, "s4", 5, now)
	require.NoError(t, err)
}

func TestAuthorizeAmountCap(t *testing.T) {
	svc, led := newTestGuard(t)
	ctx := context.Background()
	now := time.Now()

	auth, err := svc.Authorize(ctx, "u1", catalog.ActionSpinWheel, "s1", 95, now)
	require.NoError(t, err)
	_, err = led.Commit(ctx, auth, now, nil)
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, "u1", catalog.ActionSpinWheel, "s2", 10, now)
	require.True(t, errutil.Is(err, errutil.StatusDailyCapExceeded))

	// An amount that still fits under the cap passes.
	_, err = svc.Authorize(ctx, "u1", catalog.ActionSpinWheel, "s3", 5, now)
	require.NoError(t, err)
}

func TestAuthorizationIsSingleUse(t *testing.T) {
	svc, _ := newTestGuard(t)

	auth, err := svc.Authorize(context.Background(), "u1", catalog.ActionWatchAd, "s1", 5, time.Now())
	require.NoError(t, err)

	require.NoError(t, auth.Consume())
	require.Error(t, auth.Consume())
}
