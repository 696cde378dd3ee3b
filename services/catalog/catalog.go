package catalog

import (
	"fmt"
	"math"

	"rewardengine/pkg/celengine"
	"rewardengine/pkg/config"

	"github.com/google/cel-go/cel"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// probabilityEpsilon bounds acceptable float drift in a weighted table's sum.
const probabilityEpsilon = 1e-6

var Module = fx.Module("catalog",
	fx.Provide(ProvideCatalog),
)

// Catalog is the immutable set of earning-action configs, loaded once at
// engine start. An invalid catalog is a startup failure, not a runtime one.
type Catalog struct {
	actions map[ActionType]*ActionConfig
}

func ProvideCatalog(cfg *config.Config) (*Catalog, error) {
	c, err := Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Catalog] Loaded reward actions", zap.Int("count", len(c.actions)), zap.String("path", cfg.Catalog.Path))
	return c, nil
}

func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var configs []*ActionConfig
	if err := v.UnmarshalKey("actions", &configs); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	return New(configs...)
}

// New validates and indexes the given configs.
func New(configs ...*ActionConfig) (*Catalog, error) {
	env, err := celengine.Env()
	if err != nil {
		return nil, fmt.Errorf("build signal-rule env: %w", err)
	}

	actions := make(map[ActionType]*ActionConfig, len(configs))
	for _, ac := range configs {
		if err := validate(ac, env); err != nil {
			return nil, fmt.Errorf("action %q: %w", ac.Type, err)
		}
		if _, dup := actions[ac.Type]; dup {
			return nil, fmt.Errorf("action %q: declared twice", ac.Type)
		}
		actions[ac.Type] = ac
	}

	if len(actions) == 0 {
		return nil, fmt.Errorf("catalog declares no actions")
	}

	return &Catalog{actions: actions}, nil
}

func (c *Catalog) Get(t ActionType) (*ActionConfig, bool) {
	ac, ok := c.actions[t]
	return ac, ok
}

func (c *Catalog) Actions() []*ActionConfig {
	out := make([]*ActionConfig, 0, len(c.actions))
	for _, ac := range c.actions {
		out = append(out, ac)
	}
	return out
}

func validate(ac *ActionConfig, env *cel.Env) error {
	if ac.Type == "" {
		return fmt.Errorf("missing type")
	}

	if ac.MinDuration < 0 {
		return fmt.Errorf("min_duration must not be negative")
	}

	if ac.GraceWindow == 0 {
		ac.GraceWindow = 2 * ac.MinDuration
	}
	if ac.GraceWindow == 0 {
		return fmt.Errorf("zero-duration actions must set grace_window")
	}
	if ac.GraceWindow < ac.MinDuration {
		return fmt.Errorf("grace_window %s shorter than min_duration %s", ac.GraceWindow, ac.MinDuration)
	}

	if ac.DailyCapCount < 0 || ac.DailyCapAmount < 0 {
		return fmt.Errorf("daily caps must not be negative")
	}

	switch ac.Mode {
	case ModeFixed:
		if ac.Amount <= 0 {
			return fmt.Errorf("fixed mode requires a positive amount")
		}
	case ModeWeighted:
		if len(ac.Outcomes) == 0 {
			return fmt.Errorf("weighted mode requires a non-empty outcome table")
		}
		var sum float64
		for i, o := range ac.Outcomes {
			if o.Amount <= 0 {
				return fmt.Errorf("outcome %d: amount must be positive", i)
			}
			if o.Probability <= 0 {
				return fmt.Errorf("outcome %d: probability must be positive", i)
			}
			sum += o.Probability
		}
		if math.Abs(sum-1.0) > probabilityEpsilon {
			return fmt.Errorf("outcome probabilities sum to %v, want 1.0", sum)
		}
		// Normalize away residual drift so the selector can trust the table.
		for i := range ac.Outcomes {
			ac.Outcomes[i].Probability /= sum
		}
	default:
		return fmt.Errorf("unknown reward mode %q", ac.Mode)
	}

	if ac.SignalRule != "" {
		prg, err := celengine.Compile(env, ac.SignalRule)
		if err != nil {
			return fmt.Errorf("signal_rule: %w", err)
		}
		ac.signalProgram = prg
	}

	return nil
}

func evaluateBool(prg cel.Program, attrs map[string]interface{}) (bool, error) {
	return celengine.EvaluateBool(prg, attrs)
}
