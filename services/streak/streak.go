package streak

import (
	"context"
	"time"

	"rewardengine/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("streak.service",
	fx.Provide(NewTracker),
)

const dayLayout = "2006-01-02"

// StreakState tracks consecutive-day engagement per user.
type StreakState struct {
	UserID          string    `gorm:"column:user_id;primaryKey"`
	Current         int64     `gorm:"column:current;not null"`
	Longest         int64     `gorm:"column:longest;not null"`
	LastCreditedDay string    `gorm:"column:last_credited_day"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

type Tracker struct {
	db     *gorm.DB
	states repository.Repository[StreakState]
}

type TrackerParams struct {
	fx.In
	DB *gorm.DB
}

func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{
		db:     p.DB,
		states: repository.ProvideStore[StreakState](p.DB),
	}
}

// RecordEngagement advances the user's streak for the given UTC day. Called
// only after a streak-eligible grant commits, inside the commit transaction
// when tx is non-nil. Returns the resulting current streak.
//
// Same-day repeats are no-ops. A gap of more than one calendar day resets the
// streak to 1: the triggering credit is day one of the new streak.
func (t *Tracker) RecordEngagement(ctx context.Context, tx *gorm.DB, userID, day string) (int64, error) {
	states := t.states
	db := t.db
	if tx != nil {
		states = t.states.WithTrx(tx)
		db = tx
	}

	state, err := states.FindOne(ctx, &StreakState{UserID: userID})
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	if state == nil {
		state = &StreakState{UserID: userID, Current: 1, Longest: 1, LastCreditedDay: day, UpdatedAt: now}
		if err := db.WithContext(ctx).Create(state).Error; err != nil {
			return 0, err
		}
		return state.Current, nil
	}

	switch {
	case day == state.LastCreditedDay:
		return state.Current, nil
	case day == nextDay(state.LastCreditedDay):
		state.Current++
	default:
		state.Current = 1
	}

	if state.Current > state.Longest {
		state.Longest = state.Current
	}
	state.LastCreditedDay = day
	state.UpdatedAt = now

	if err := db.WithContext(ctx).Save(state).Error; err != nil {
		return 0, err
	}

	zap.L().Debug("streak updated",
		zap.String("user_id", userID),
		zap.Int64("current", state.Current),
		zap.Int64("longest", state.Longest),
	)

	return state.Current, nil
}

// StreakOf returns the user's streak state; users with no streak history get
// a zero state.
func (t *Tracker) StreakOf(ctx context.Context, userID string) (*StreakState, error) {
	state, err := t.states.FindOne(ctx, &StreakState{UserID: userID})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &StreakState{UserID: userID}, nil
	}
	return state, nil
}

func nextDay(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(dayLayout)
}
