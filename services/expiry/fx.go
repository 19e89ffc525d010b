package expiry

import (
	"smallbiznis-rewards/services/actiontoken"

	"go.uber.org/fx"
)

var Module = fx.Module("expiry.service",
	fx.Provide(
		NewSweeper,
		func(l *actiontoken.DBLedger) TokenPurger { return l },
	),
)

// Worker registers the sweep handler on the asynq mux.
var Worker = fx.Module("expiry.worker",
	fx.Invoke(registerHandlers),
)

// Schedule runs the daily enqueue loop.
var Schedule = fx.Module("expiry.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(startScheduler),
)
