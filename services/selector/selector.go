package selector

import (
	"rewardengine/services/catalog"
)

// RandSource supplies uniform draws in [0, 1). Injectable so tests can pin
// the sequence. math/rand's *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// Select returns the reward amount for one completed action. Fixed-mode
// configs return their amount directly; weighted configs perform a single
// cumulative-probability draw over the (already normalized) outcome table.
// Pure function of its inputs.
func Select(cfg *catalog.ActionConfig, rng RandSource) int64 {
	if cfg.Mode == catalog.ModeFixed {
		return cfg.Amount
	}

	r := rng.Float64()

	var cumulative float64
	for _, o := range cfg.Outcomes {
		cumulative += o.Probability
		if r < cumulative {
			return o.Amount
		}
	}

	// Float drift can leave r above the accumulated total; the last entry is
	// the fallback by table order.
	return cfg.Outcomes[len(cfg.Outcomes)-1].Amount
}
