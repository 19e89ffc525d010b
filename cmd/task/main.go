package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/gen"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/expiry"
	"smallbiznis-rewards/services/notification"
)

// The worker runs the daily expiry schedule and the asynq handlers for
// sweeps and notifications.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		task.Client,
		task.Server,
		fx.Provide(actiontoken.NewDBLedger),
		expiry.Module,
		expiry.Worker,
		expiry.Schedule,
		notification.Worker,
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
