package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardengine/internal/httpapi"
	"rewardengine/pkg/config"
	"rewardengine/pkg/db"
	"rewardengine/pkg/gen"
	"rewardengine/pkg/lock"
	"rewardengine/pkg/logger"
	"rewardengine/pkg/redis"
	"rewardengine/pkg/sequence"
	"rewardengine/pkg/server"
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
		sequence.Module,
		gen.Module,
		lock.Module,
		catalog.Module,
		ledger.Module,
		guard.Module,
		streak.Module,
		session.Module,
		httpapi.Module,
		server.Module,
		fx.Invoke(migrate),
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

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&session.EarningSession{},
		&ledger.RewardGrant{},
		&ledger.UserLedgerState{},
		&ledger.DayCounter{},
		&streak.StreakState{},
	)
}
