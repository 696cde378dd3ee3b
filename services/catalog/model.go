package catalog

import (
	"time"

	"github.com/google/cel-go/cel"
)

type ActionType string

const (
	ActionWatchAd      ActionType = "watch_ad"
	ActionVisitLink    ActionType = "visit_link"
	ActionSpinWheel    ActionType = "spin_wheel"
	ActionDailyLogin   ActionType = "daily_login"
	ActionSearchQuery  ActionType = "search_query"
	ActionReadArticle  ActionType = "read_article"
	ActionReferralJoin ActionType = "referral_join"
)

type RewardMode string

const (
	ModeFixed    RewardMode = "fixed"
	ModeWeighted RewardMode = "weighted"
)

// Outcome is one entry of a weighted reward table.
type Outcome struct {
	Amount      int64   `mapstructure:"amount" json:"amount"`
	Probability float64 `mapstructure:"probability" json:"probability"`
}

// ActionConfig describes one earning-action type. Immutable after Load.
type ActionConfig struct {
	Type           ActionType    `mapstructure:"type"`
	MinDuration    time.Duration `mapstructure:"min_duration"`
	GraceWindow    time.Duration `mapstructure:"grace_window"` // default 2 * MinDuration
	DailyCapCount  int64         `mapstructure:"daily_cap_count"`
	DailyCapAmount int64         `mapstructure:"daily_cap_amount"`
	Mode           RewardMode    `mapstructure:"mode"`
	Amount         int64         `mapstructure:"amount"`
	Outcomes       []Outcome     `mapstructure:"outcomes"`
	StreakEligible bool          `mapstructure:"streak_eligible"`
	RequiresSignal bool          `mapstructure:"requires_signal"`
	SignalRule     string        `mapstructure:"signal_rule"`

	signalProgram cel.Program
}

// EvaluateSignal applies the action's signal rule to a reported payload.
// Actions without a rule accept every payload.
func (c *ActionConfig) EvaluateSignal(attrs map[string]interface{}) (bool, error) {
	if c.signalProgram == nil {
		return true, nil
	}

	return evaluateBool(c.signalProgram, attrs)
}
