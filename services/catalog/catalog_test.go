package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validFixed() *ActionConfig {
	return &ActionConfig{
		Type:          ActionWatchAd,
		MinDuration:   10 * time.Second,
		DailyCapCount: 10,
		Mode:          ModeFixed,
		Amount:        5,
	}
}

func TestNewDefaultsGraceWindow(t *testing.T) {
	cfg := validFixed()

	c, err := New(cfg)
	require.NoError(t, err)

	got, ok := c.Get(ActionWatchAd)
	require.True(t, ok)
	require.Equal(t, 20*time.Second, got.GraceWindow)
}

func TestNewRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ActionConfig)
	}{
		{"missing type", func(c *ActionConfig) { c.Type = "" }},
		{"unknown mode", func(c *ActionConfig) { c.Mode = "raffle" }},
		{"non-positive fixed amount", func(c *ActionConfig) { c.Amount = 0 }},
		{"negative cap", func(c *ActionConfig) { c.DailyCapCount = -1 }},
		{"grace shorter than gating", func(c *ActionConfig) { c.GraceWindow = time.Second }},
		{"bad signal rule", func(c *ActionConfig) { c.SignalRule = "payload..nope" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validFixed()
			tc.mutate(cfg)

			_, err := New(cfg)
			require.Error(t, err)
		})
	}
}

func TestNewRejectsZeroDurationWithoutGrace(t *testing.T) {
	cfg := validFixed()
	cfg.MinDuration = 0

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewRejectsDuplicateActions(t *testing.T) {
	_, err := New(validFixed(), validFixed())
	require.Error(t, err)
}

func TestNewRejectsBadWeightedTables(t *testing.T) {
	cfg := validFixed()
	cfg.Mode = ModeWeighted
	cfg.Amount = 0

	cfg.Outcomes = nil
	_, err := New(cfg)
	require.Error(t, err, "empty table")

	cfg.Outcomes = []Outcome{{Amount: 10, Probability: 0.5}}
	_, err = New(cfg)
	require.Error(t, err, "sum far from 1.0")

	cfg.Outcomes = []Outcome{{Amount: 10, Probability: 0.5}, {Amount: 20, Probability: -0.5}}
	_, err = New(cfg)
	require.Error(t, err, "negative probability")
}

func TestNewNormalizesDriftedTable(t *testing.T) {
	cfg := validFixed()
	cfg.Mode = ModeWeighted
	cfg.Amount = 0
	cfg.Outcomes = []Outcome{
		{Amount: 10, Probability: 0.5},
		{Amount: 20, Probability: 0.5 - 2e-7},
	}

	c, err := New(cfg)
	require.NoError(t, err)

	got, _ := c.Get(ActionWatchAd)
	var sum float64
	for _, o := range got.Outcomes {
		sum += o.Probability
	}
	require.InDelta(t, 1.0, sum, 1e-12)
}

func TestEvaluateSignal(t *testing.T) {
	cfg := validFixed()
	cfg.RequiresSignal = true
	cfg.SignalRule = `payload.completed == true`

	c, err := New(cfg)
	require.NoError(t, err)
	got, _ := c.Get(ActionWatchAd)

	ok, err := got.EvaluateSignal(map[string]interface{}{
		"user_id":     "u1",
		"action_type": "watch_ad",
		"context":     map[string]interface{}{},
		"payload":     map[string]interface{}{"completed": true},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = got.EvaluateSignal(map[string]interface{}{
		"user_id":     "u1",
		"action_type": "watch_ad",
		"context":     map[string]interface{}{},
		"payload":     map[string]interface{}{"completed": false},
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateSignalWithoutRuleAccepts(t *testing.T) {
	c, err := New(validFixed())
	require.NoError(t, err)

	got, _ := c.Get(ActionWatchAd)
	ok, err := got.EvaluateSignal(nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")

	yaml := `
actions:
  - type: spin_wheel
    min_duration: 5s
    daily_cap_count: 3
    mode: weighted
    outcomes:
      - { amount: 25, probability: 0.5 }
      - { amount: 100, probability: 0.5 }
  - type: daily_login
    min_duration: 0s
    grace_window: 24h
    mode: fixed
    amount: 10
    streak_eligible: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	spin, ok := c.Get(ActionSpinWheel)
	require.True(t, ok)
	require.Equal(t, ModeWeighted, spin.Mode)
	require.Len(t, spin.Outcomes, 2)
	require.Equal(t, 5*time.Second, spin.MinDuration)
	require.Equal(t, 10*time.Second, spin.GraceWindow)

	login, ok := c.Get(ActionDailyLogin)
	require.True(t, ok)
	require.True(t, login.StreakEligible)
	require.Equal(t, 24*time.Hour, login.GraceWindow)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
