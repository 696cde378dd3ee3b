package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// RewardGrant is one immutable credited reward. The unique index on
// session_id is what makes crediting idempotent across process restarts.
type RewardGrant struct {
	ID           string         `gorm:"column:id;primaryKey"`
	Code         string         `gorm:"column:code"`
	UserID       string         `gorm:"column:user_id;index;not null"`
	SessionID    string         `gorm:"column:session_id;uniqueIndex;not null"`
	ActionType   string         `gorm:"column:action_type;index;not null"`
	Amount       int64          `gorm:"column:amount;not null"`
	BalanceAfter int64          `gorm:"column:balance_after;not null"`
	StreakAfter  int64          `gorm:"column:streak_after"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
}

// UserLedgerState is the derived per-user view. Mutated only by Commit.
type UserLedgerState struct {
	UserID         string    `gorm:"column:user_id;primaryKey"`
	Balance        int64     `gorm:"column:balance;not null"`
	LifetimeEarned int64     `gorm:"column:lifetime_earned;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// DayCounter accumulates per-user, per-action credits for one UTC day.
type DayCounter struct {
	UserID     string    `gorm:"column:user_id;primaryKey"`
	ActionType string    `gorm:"column:action_type;primaryKey"`
	Day        string    `gorm:"column:day;primaryKey"`
	Count      int64     `gorm:"column:count;not null"`
	Amount     int64     `gorm:"column:amount;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// DayOf renders the UTC calendar day that counters and caps are keyed by.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
