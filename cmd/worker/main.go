package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewardengine/pkg/config"
	"rewardengine/pkg/db"
	"rewardengine/pkg/gen"
	"rewardengine/pkg/lock"
	"rewardengine/pkg/logger"
	"rewardengine/pkg/redis"
	"rewardengine/pkg/sequence"
	"rewardengine/pkg/task"
	"rewardengine/services/catalog"
	"rewardengine/services/guard"
	"rewardengine/services/ledger"
	"rewardengine/services/session"
	"rewardengine/services/streak"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		gen.Module,
		lock.Module,
		catalog.Module,
		ledger.Module,
		guard.Module,
		streak.Module,
		session.Module,
		session.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
