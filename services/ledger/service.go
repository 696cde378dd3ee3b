package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"rewardengine/pkg/db/option"
	"rewardengine/pkg/db/pagination"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"
	"rewardengine/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Authorization is the single-use token minted by the cap guard. Commit
// consumes it so the check-then-write window stays closed.
type Authorization interface {
	Consume() error
	UserID() string
	SessionID() string
	ActionType() string
	Amount() int64
	Day() string
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	grants   repository.Repository[RewardGrant]
	states   repository.Repository[UserLedgerState]
	counters repository.Repository[DayCounter]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	seq := p.Seq
	if seq == nil {
		seq = sequence.NewLocalGenerator()
	}

	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  seq,

		grants:   repository.ProvideStore[RewardGrant](p.DB),
		states:   repository.ProvideStore[UserLedgerState](p.DB),
		counters: repository.ProvideStore[DayCounter](p.DB),
	}
}

// GrantBySession returns the grant credited for a session, or nil.
func (s *Service) GrantBySession(ctx context.Context, sessionID string) (*RewardGrant, error) {
	return s.grants.FindOne(ctx, &RewardGrant{SessionID: sessionID})
}

// DayTotals returns today's credited count and amount for (user, action).
func (s *Service) DayTotals(ctx context.Context, userID, actionType, day string) (count, amount int64, err error) {
	counter, err := s.counters.FindOne(ctx, &DayCounter{UserID: userID, ActionType: actionType, Day: day})
	if err != nil {
		return 0, 0, err
	}
	if counter == nil {
		return 0, 0, nil
	}
	return counter.Count, counter.Amount, nil
}

// Commit appends the grant and updates the user's balance and day counter in
// one transaction. streakFn, when non-nil, records streak progress inside the
// same transaction and returns the resulting current streak, which is
// persisted on the grant so repeated claims can replay the original result.
// The caller must hold the per-user commit lock.
func (s *Service) Commit(ctx context.Context, auth Authorization, now time.Time, streakFn func(tx *gorm.DB) (int64, error)) (*RewardGrant, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("user_id", auth.UserID()),
		zap.String("session_id", auth.SessionID()),
		zap.String("action_type", auth.ActionType()),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	if err := auth.Consume(); err != nil {
		zapLog.Warn("authorization already consumed", zap.Error(err))
		return nil, errutil.DuplicateSession("authorization already consumed", errutil.WithErr(err))
	}

	code, err := s.seq.NextGrantCode(ctx)
	if err != nil {
		zapLog.Warn("failed to generate grant code, continuing without", zap.Error(err))
		code = ""
	}

	grant := &RewardGrant{
		ID:         s.node.Generate().String(),
		Code:       code,
		UserID:     auth.UserID(),
		SessionID:  auth.SessionID(),
		ActionType: auth.ActionType(),
		Amount:     auth.Amount(),
		CreatedAt:  now.UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.states.WithTrx(tx).FindOne(ctx, &UserLedgerState{UserID: auth.UserID()})
		if err != nil {
			return err
		}

		if state == nil {
			state = &UserLedgerState{UserID: auth.UserID(), CreatedAt: now.UTC()}
		}
		state.Balance += auth.Amount()
		state.LifetimeEarned += auth.Amount()
		state.UpdatedAt = now.UTC()
		if err := tx.Save(state).Error; err != nil {
			return err
		}

		grant.BalanceAfter = state.Balance

		if streakFn != nil {
			current, err := streakFn(tx)
			if err != nil {
				return err
			}
			grant.StreakAfter = current
		}

		if err := s.grants.WithTrx(tx).Create(ctx, grant); err != nil {
			return err
		}

		return s.bumpCounter(ctx, tx, auth, now)
	})
	if err != nil {
		if isUniqueViolation(err) {
			zapLog.Warn("grant already exists for session")
			return nil, errutil.DuplicateSession("grant already exists for session")
		}
		zapLog.Error("ledger commit failed", zap.Error(err))
		return nil, err
	}

	zapLog.Info("grant committed",
		zap.String("grant_id", grant.ID),
		zap.Int64("amount", grant.Amount),
		zap.Int64("balance_after", grant.BalanceAfter),
	)

	return grant, nil
}

func (s *Service) bumpCounter(ctx context.Context, tx *gorm.DB, auth Authorization, now time.Time) error {
	counter, err := s.counters.WithTrx(tx).FindOne(ctx, &DayCounter{
		UserID:     auth.UserID(),
		ActionType: auth.ActionType(),
		Day:        auth.Day(),
	})
	if err != nil {
		return err
	}

	if counter == nil {
		counter = &DayCounter{
			UserID:     auth.UserID(),
			ActionType: auth.ActionType(),
			Day:        auth.Day(),
		}
	}
	counter.Count++
	counter.Amount += auth.Amount()
	counter.UpdatedAt = now.UTC()

	return tx.Save(counter).Error
}

// BalanceOf returns the user's derived ledger state; a user with no grants
// has a zero state, not an error.
func (s *Service) BalanceOf(ctx context.Context, userID string) (*UserLedgerState, error) {
	state, err := s.states.FindOne(ctx, &UserLedgerState{UserID: userID})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &UserLedgerState{UserID: userID}, nil
	}
	return state, nil
}

// History lists a user's grants newest-first as a restartable cursor page.
func (s *Service) History(ctx context.Context, userID string, page pagination.Pagination) ([]*RewardGrant, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}

	opts := []option.QueryOption{
		option.WithScope(func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at DESC, id DESC")
		}),
		option.WithLimit(limit + 1),
	}

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", errutil.WithErr(err))
		}
		before, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", errutil.WithErr(err))
		}
		opts = append(opts, option.WithScope(func(tx *gorm.DB) *gorm.DB {
			return tx.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, cursor.ID)
		}))
	}

	grants, err := s.grants.Find(ctx, &RewardGrant{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	grants, info := pagination.Trim(grants, limit, func(g *RewardGrant) pagination.Cursor {
		return pagination.Cursor{CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339Nano), ID: g.ID}
	})

	return grants, info, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
