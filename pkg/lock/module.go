package lock

import (
	"rewardengine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(ProvideLocker),
)

type Params struct {
	fx.In

	Cfg   *config.Config
	Redis *redis.Client `optional:"true"`
}

func ProvideLocker(p Params) Locker {
	if p.Cfg.Lock.Backend == "redis" && p.Redis != nil {
		zap.L().Info("[Lock] Using redis commit locks", zap.Duration("lease_ttl", p.Cfg.Lock.LeaseTTL))
		return NewRedis(p.Redis, p.Cfg.Lock.LeaseTTL)
	}

	zap.L().Info("[Lock] Using in-process commit locks")
	return NewKeyed()
}
