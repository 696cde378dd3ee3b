package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/services/catalog"
	"rewardengine/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("guard.service",
	fx.Provide(NewService),
)

// Authorization is a single-use pass from Authorize to ledger.Commit.
type Authorization struct {
	userID     string
	sessionID  string
	actionType string
	amount     int64
	day        string

	consumed atomic.Bool
}

func (a *Authorization) UserID() string     { return a.userID }
func (a *Authorization) SessionID() string  { return a.sessionID }
func (a *Authorization) ActionType() string { return a.actionType }
func (a *Authorization) Amount() int64      { return a.amount }
func (a *Authorization) Day() string        { return a.day }

func (a *Authorization) Consume() error {
	if a.consumed.Swap(true) {
		return errors.New("authorization consumed twice")
	}
	return nil
}

// LedgerReader is the slice of the ledger the guard checks against. Duplicate
// detection reads the grants table itself, so it survives process restarts.
type LedgerReader interface {
	GrantBySession(ctx context.Context, sessionID string) (*ledger.RewardGrant, error)
	DayTotals(ctx context.Context, userID, actionType, day string) (count, amount int64, err error)
}

type Service struct {
	catalog *catalog.Catalog
	ledger  LedgerReader
}

type ServiceParams struct {
	fx.In
	Catalog *catalog.Catalog
	Ledger  *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{catalog: p.Catalog, ledger: p.Ledger}
}

func New(cat *catalog.Catalog, reader LedgerReader) *Service {
	return &Service{catalog: cat, ledger: reader}
}

// Authorize validates a credit request against the catalog, the grants table
// and today's counters. Callers must hold the per-user commit lock so the
// counter read cannot race a concurrent commit for the same user.
func (s *Service) Authorize(ctx context.Context, userID string, actionType catalog.ActionType, sessionID string, amount int64, now time.Time) (*Authorization, error) {
	cfg, ok := s.catalog.Get(actionType)
	if !ok {
		return nil, errutil.UnknownAction("action type not in catalog",
			errutil.WithDetails(errutil.Detail{Field: "action_type", Message: string(actionType)}))
	}

	existing, err := s.ledger.GrantBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.DuplicateSession("session already credited",
			errutil.WithDetails(errutil.Detail{Field: "session_id", Message: sessionID}))
	}

	day := ledger.DayOf(now)
	count, total, err := s.ledger.DayTotals(ctx, userID, string(actionType), day)
	if err != nil {
		return nil, err
	}

	if cfg.DailyCapCount > 0 && count+1 > cfg.DailyCapCount {
		zap.L().Info("daily count cap reached",
			zap.String("user_id", userID),
			zap.String("action_type", string(actionType)),
			zap.Int64("count", count),
		)
		return nil, errutil.DailyCapExceeded("daily credit count reached")
	}

	if cfg.DailyCapAmount > 0 && total+amount > cfg.DailyCapAmount {
		zap.L().Info("daily amount cap reached",
			zap.String("user_id", userID),
			zap.String("action_type", string(actionType)),
			zap.Int64("total", total),
			zap.Int64("amount", amount),
		)
		return nil, errutil.DailyCapExceeded("daily credit amount reached")
	}

	return &Authorization{
		userID:     userID,
		sessionID:  sessionID,
		actionType: string(actionType),
		amount:     amount,
		day:        day,
	}, nil
}
