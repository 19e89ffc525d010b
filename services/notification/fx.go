package notification

import "go.uber.org/fx"

var Module = fx.Module("notification.dispatcher",
	fx.Provide(NewDispatcher),
)

var Worker = fx.Module("notification.worker",
	fx.Invoke(registerHandlers),
)
