package selector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"rewardengine/services/catalog"
)

// fixedSource replays a preset sequence of draws.
type fixedSource struct {
	values []float64
	idx    int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.idx%len(f.values)]
	f.idx++
	return v
}

func spinTable() *catalog.ActionConfig {
	return &catalog.ActionConfig{
		Type: catalog.ActionSpinWheel,
		Mode: catalog.ModeWeighted,
		Outcomes: []catalog.Outcome{
			{Amount: 25, Probability: 0.3},
			{Amount: 50, Probability: 0.25},
			{Amount: 20, Probability: 0.2},
			{Amount: 100, Probability: 0.1},
			{Amount: 75, Probability: 0.1},
			{Amount: 150, Probability: 0.05},
		},
	}
}

func TestSelectFixedMode(t *testing.T) {
	cfg := &catalog.ActionConfig{Type: catalog.ActionWatchAd, Mode: catalog.ModeFixed, Amount: 5}

	// The random source must not be consulted in fixed mode.
	amount := Select(cfg, nil)
	require.Equal(t, int64(5), amount)
}

func TestSelectCumulativeWalk(t *testing.T) {
	cfg := spinTable()

	cases := []struct {
		draw float64
		want int64
	}{
		{0.0, 25},
		{0.29, 25},
		{0.3, 50},
		{0.549, 50},
		{0.55, 20},
		{0.75, 100},
		{0.85, 75},
		{0.95, 150},
		{0.999, 150},
	}

	for _, tc := range cases {
		got := Select(cfg, &fixedSource{values: []float64{tc.draw}})
		require.Equalf(t, tc.want, got, "draw %v", tc.draw)
	}
}

func TestSelectFallbackOnDrift(t *testing.T) {
	cfg := &catalog.ActionConfig{
		Mode: catalog.ModeWeighted,
		Outcomes: []catalog.Outcome{
			{Amount: 10, Probability: 0.5},
			{Amount: 20, Probability: 0.5},
		},
	}

	// A draw above the accumulated mass falls through to the last entry.
	got := Select(cfg, &fixedSource{values: []float64{0.9999999999999999}})
	require.Equal(t, int64(20), got)
}

func TestSelectDistribution(t *testing.T) {
	cfg := &catalog.ActionConfig{
		Mode: catalog.ModeWeighted,
		Outcomes: []catalog.Outcome{
			{Amount: 25, Probability: 0.5},
			{Amount: 50, Probability: 0.3},
			{Amount: 100, Probability: 0.2},
		},
	}

	const trials = 100000
	rng := rand.New(rand.NewSource(42))

	counts := map[int64]int{}
	for i := 0; i < trials; i++ {
		counts[Select(cfg, rng)]++
	}

	for _, o := range cfg.Outcomes {
		observed := float64(counts[o.Amount]) / trials
		require.InDeltaf(t, o.Probability, observed, 0.01, "amount %d", o.Amount)
	}
}
