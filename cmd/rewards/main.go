package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/accesscontrol"
	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/gen"
	"smallbiznis-rewards/pkg/health"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/redis"
	"smallbiznis-rewards/pkg/sequence"
	"smallbiznis-rewards/pkg/server"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/actiontoken"
	"smallbiznis-rewards/services/bootstrap"
	"smallbiznis-rewards/services/challenge"
	"smallbiznis-rewards/services/expiry"
	"smallbiznis-rewards/services/loyalty"
	"smallbiznis-rewards/services/notification"
	"smallbiznis-rewards/services/point"
	"smallbiznis-rewards/services/reward"
	"smallbiznis-rewards/services/stamp"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		bootstrap.Module,
		accesscontrol.Module,
		health.Module,
		httpapi.Module,
		actiontoken.Module,
		stamp.Module,
		reward.Module,
		point.Module,
		challenge.Module,
		expiry.Module,
		notification.Module,
		loyalty.Module,
		loyalty.Gateway,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
