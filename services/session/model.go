package session

import (
	"time"

	"gorm.io/datatypes"
)

type State string

const (
	StatePending   State = "pending"
	StateSatisfied State = "satisfied"
	StateCredited  State = "credited"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
	StateRejected  State = "rejected"
)

// Terminal reports whether the state can never transition again.
func (s State) Terminal() bool {
	switch s {
	case StateCredited, StateExpired, StateCancelled, StateRejected:
		return true
	}
	return false
}

// EarningSession is one attempt to complete an earning action. Deadlines are
// computed engine-side at open; the caller's clock is never trusted.
type EarningSession struct {
	ID             string         `gorm:"column:id;primaryKey"`
	UserID         string         `gorm:"column:user_id;index;not null"`
	ActionType     string         `gorm:"column:action_type;index;not null"`
	State          State          `gorm:"column:state;index;not null"`
	GatingDeadline time.Time      `gorm:"column:gating_deadline;not null"`
	GraceDeadline  time.Time      `gorm:"column:grace_deadline;not null"`
	SignalReceived bool           `gorm:"column:signal_received;not null"`
	SignalPayload  datatypes.JSON `gorm:"column:signal_payload"`
	Context        datatypes.JSON `gorm:"column:context"`
	GrantID        string         `gorm:"column:grant_id"`
	GrantedAmount  int64          `gorm:"column:granted_amount"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (s *EarningSession) TableName() string {
	return "earning_sessions"
}

// ClaimResult is what a successful (or replayed) claim returns.
type ClaimResult struct {
	GrantedAmount int64 `json:"granted_amount"`
	NewBalance    int64 `json:"new_balance"`
	NewStreak     int64 `json:"new_streak"`
}
