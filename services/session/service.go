package session

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/pkg/lock"
	"rewardengine/pkg/repository"
	"rewardengine/services/catalog"
	"rewardengine/services/guard"
	"rewardengine/services/ledger"
	"rewardengine/services/selector"
	"rewardengine/services/streak"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the session orchestrator: it owns the earning-session state
// machine and drives selector, guard, ledger and streak tracker as one
// logical transaction on claim.
type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	catalog *catalog.Catalog
	guard   *guard.Service
	ledger  *ledger.Service
	streaks *streak.Tracker
	locker  lock.Locker
	tasks   *asynq.Client

	sessions repository.Repository[EarningSession]

	rng selector.RandSource

	// nowFn is swapped in tests to drive gating and expiry deterministically.
	nowFn func() time.Time
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Catalog *catalog.Catalog
	Guard   *guard.Service
	Ledger  *ledger.Service
	Streaks *streak.Tracker
	Locker  lock.Locker
	Tasks   *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		catalog:  p.Catalog,
		guard:    p.Guard,
		ledger:   p.Ledger,
		streaks:  p.Streaks,
		locker:   p.Locker,
		tasks:    p.Tasks,
		sessions: repository.ProvideStore[EarningSession](p.DB),
		rng:      newLockedRand(time.Now().UnixNano()),
		nowFn:    time.Now,
	}
}

// Open creates a pending session for (user, action type). The gating deadline
// is creation + the action's minimum duration; the session expires if it has
// not been satisfied by gating deadline + grace window.
func (s *Service) Open(ctx context.Context, userID string, actionType catalog.ActionType, sessionContext map[string]interface{}) (*EarningSession, error) {
	cfg, ok := s.catalog.Get(actionType)
	if !ok {
		return nil, errutil.UnknownAction("action type not in catalog",
			errutil.WithDetails(errutil.Detail{Field: "action_type", Message: string(actionType)}))
	}

	now := s.nowFn().UTC()

	var contextJSON datatypes.JSON
	if sessionContext != nil {
		b, err := json.Marshal(sessionContext)
		if err != nil {
			return nil, errutil.BadRequest("invalid session context", errutil.WithErr(err))
		}
		contextJSON = b
	}

	sess := &EarningSession{
		ID:             s.node.Generate().String(),
		UserID:         userID,
		ActionType:     string(actionType),
		State:          StatePending,
		GatingDeadline: now.Add(cfg.MinDuration),
		GraceDeadline:  now.Add(cfg.MinDuration + cfg.GraceWindow),
		Context:        contextJSON,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.scheduleExpiry(ctx, sess)

	zap.L().Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.String("action_type", string(actionType)),
		zap.Time("gating_deadline", sess.GatingDeadline),
	)

	return sess, nil
}

// Signal records an external proof of engagement. Fire-and-forget: signals
// for unknown or terminal sessions are dropped and logged, never errors.
func (s *Service) Signal(ctx context.Context, sessionID string, payload map[string]interface{}) error {
	sess, err := s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return err
	}

	zapLog := zap.L().With(zap.String("session_id", sessionID))

	if sess == nil {
		zapLog.Warn("signal for unknown session dropped")
		return nil
	}

	now := s.nowFn().UTC()
	if err := s.advance(ctx, sess, now); err != nil {
		zapLog.Error("failed to persist session transition on signal", zap.Error(err))
		return nil
	}
	if sess.State.Terminal() {
		zapLog.Warn("signal for terminal session dropped", zap.String("state", string(sess.State)))
		return nil
	}

	cfg, ok := s.catalog.Get(catalog.ActionType(sess.ActionType))
	if !ok {
		zapLog.Warn("signal for unknown action dropped", zap.String("action_type", sess.ActionType))
		return nil
	}

	accepted, err := cfg.EvaluateSignal(s.signalAttrs(sess, payload))
	if err != nil || !accepted {
		zapLog.Warn("signal rejected by rule", zap.Error(err), zap.String("action_type", sess.ActionType))
		return nil
	}

	sess.SignalReceived = true
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			sess.SignalPayload = b
		}
	}

	s.promote(sess, now)
	return s.save(ctx, sess, now)
}

// Cancel terminates a pending or satisfied session. Irrevocable: a cancelled
// session can never be credited, even if signals or time arrive later.
// Cancelling an already-terminal session is a no-op.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return err
	}
	if sess == nil {
		return errutil.SessionNotFound("session not found")
	}

	now := s.nowFn().UTC()
	if err := s.advance(ctx, sess, now); err != nil {
		return err
	}
	if sess.State.Terminal() {
		return nil
	}

	sess.State = StateCancelled
	if err := s.save(ctx, sess, now); err != nil {
		return err
	}

	zap.L().Info("session cancelled", zap.String("session_id", sessionID))
	return nil
}

// Poll reports the session's state and the seconds remaining on its gating
// countdown, for UI display only.
func (s *Service) Poll(ctx context.Context, sessionID string) (State, int64, error) {
	sess, err := s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return "", 0, err
	}
	if sess == nil {
		return "", 0, errutil.SessionNotFound("session not found")
	}

	now := s.nowFn().UTC()
	if err := s.advance(ctx, sess, now); err != nil {
		return "", 0, err
	}

	var remaining int64
	if d := sess.GatingDeadline.Sub(now); d > 0 {
		remaining = int64(math.Ceil(d.Seconds()))
	}

	return sess.State, remaining, nil
}

// Claim credits a satisfied session. Idempotent: claiming an already-credited
// session replays the original result. The per-user lock serializes the
// authorize+commit sequence with every other commit for the same user.
func (s *Service) Claim(ctx context.Context, sessionID string) (*ClaimResult, error) {
	sess, err := s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errutil.SessionNotFound("session not found")
	}

	release, err := s.locker.Acquire(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock: a concurrent claim may have resolved it.
	sess, err = s.sessions.FindOne(ctx, &EarningSession{ID: sessionID})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errutil.SessionNotFound("session not found")
	}

	now := s.nowFn().UTC()
	if err := s.advance(ctx, sess, now); err != nil {
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("action_type", sess.ActionType),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	switch sess.State {
	case StateCredited:
		return s.replayResult(ctx, sess)
	case StateCancelled, StateExpired, StateRejected:
		return nil, errutil.SessionTerminal("session is " + string(sess.State))
	case StatePending:
		return nil, errutil.SessionNotSatisfied("gating not complete")
	}

	cfg, ok := s.catalog.Get(catalog.ActionType(sess.ActionType))
	if !ok {
		return nil, errutil.UnknownAction("action type not in catalog")
	}

	amount := selector.Select(cfg, s.rng)

	auth, err := s.guard.Authorize(ctx, sess.UserID, catalog.ActionType(sess.ActionType), sess.ID, amount, now)
	if err != nil {
		if errutil.Is(err, errutil.StatusDuplicateSession) {
			// A grant exists but the session row was not updated, e.g. a crash
			// between commit and save. Recover the original result.
			zapLog.Warn("recovering credited session from existing grant")
			return s.recoverCredited(ctx, sess, now)
		}
		sess.State = StateRejected
		if saveErr := s.save(ctx, sess, now); saveErr != nil {
			zapLog.Error("failed to mark session rejected", zap.Error(saveErr))
		}
		zapLog.Info("claim rejected", zap.Error(err))
		return nil, err
	}

	var streakFn func(tx *gorm.DB) (int64, error)
	if cfg.StreakEligible {
		day := ledger.DayOf(now)
		userID := sess.UserID
		streakFn = func(tx *gorm.DB) (int64, error) {
			return s.streaks.RecordEngagement(ctx, tx, userID, day)
		}
	}

	grant, err := s.ledger.Commit(ctx, auth, now, streakFn)
	if err != nil {
		if errutil.Is(err, errutil.StatusDuplicateSession) {
			return s.recoverCredited(ctx, sess, now)
		}
		// Storage failure: the session stays satisfied so a retried claim can
		// attempt the commit again.
		zapLog.Error("ledger commit failed, session left satisfied", zap.Error(err))
		return nil, err
	}

	sess.State = StateCredited
	sess.GrantID = grant.ID
	sess.GrantedAmount = grant.Amount
	if err := s.save(ctx, sess, now); err != nil {
		// The grant is committed; the next claim recovers via the duplicate path.
		zapLog.Error("failed to mark session credited", zap.Error(err))
	}

	zapLog.Info("session credited",
		zap.String("grant_id", grant.ID),
		zap.Int64("amount", grant.Amount),
	)

	return &ClaimResult{
		GrantedAmount: grant.Amount,
		NewBalance:    grant.BalanceAfter,
		NewStreak:     grant.StreakAfter,
	}, nil
}

// advance applies lazy state transitions owed to elapsed time and persists
// them. Expiry is checked on every touch, not by a hot loop.
func (s *Service) advance(ctx context.Context, sess *EarningSession, now time.Time) error {
	if sess.State.Terminal() {
		return nil
	}

	before := sess.State

	// Satisfaction conditions are time-derivable, so promotion is checked
	// first: a session whose gating and signal completed inside the grace
	// window is satisfied even when first touched after it. A session still
	// short of its conditions expires the instant the grace deadline hits.
	s.promote(sess, now)
	if sess.State == StatePending && !now.Before(sess.GraceDeadline) {
		sess.State = StateExpired
	}

	if sess.State == before {
		return nil
	}

	return s.save(ctx, sess, now)
}

// promote flips pending to satisfied once the deadline has passed and any
// required signal has arrived.
func (s *Service) promote(sess *EarningSession, now time.Time) {
	if sess.State != StatePending {
		return
	}
	if now.Before(sess.GatingDeadline) {
		return
	}

	cfg, ok := s.catalog.Get(catalog.ActionType(sess.ActionType))
	if !ok {
		return
	}
	if cfg.RequiresSignal && !sess.SignalReceived {
		return
	}

	sess.State = StateSatisfied
}

func (s *Service) save(ctx context.Context, sess *EarningSession, now time.Time) error {
	sess.UpdatedAt = now
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *Service) replayResult(ctx context.Context, sess *EarningSession) (*ClaimResult, error) {
	grant, err := s.ledger.GrantBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, errutil.Internal("credited session has no grant")
	}

	return &ClaimResult{
		GrantedAmount: grant.Amount,
		NewBalance:    grant.BalanceAfter,
		NewStreak:     grant.StreakAfter,
	}, nil
}

func (s *Service) recoverCredited(ctx context.Context, sess *EarningSession, now time.Time) (*ClaimResult, error) {
	result, err := s.replayResult(ctx, sess)
	if err != nil {
		return nil, err
	}

	sess.State = StateCredited
	sess.GrantedAmount = result.GrantedAmount
	if err := s.save(ctx, sess, now); err != nil {
		zap.L().Error("failed to mark recovered session credited", zap.Error(err))
	}

	return result, nil
}

func (s *Service) signalAttrs(sess *EarningSession, payload map[string]interface{}) map[string]interface{} {
	sessionContext := map[string]interface{}{}
	if len(sess.Context) > 0 {
		_ = json.Unmarshal(sess.Context, &sessionContext)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return map[string]interface{}{
		"user_id":     sess.UserID,
		"action_type": sess.ActionType,
		"context":     sessionContext,
		"payload":     payload,
	}
}

// lockedRand makes a rand.Rand safe for concurrent claims across users.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}
