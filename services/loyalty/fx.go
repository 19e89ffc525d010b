package loyalty

import "go.uber.org/fx"

var Module = fx.Module("loyalty.engine",
	fx.Provide(NewEngine),
)

var Gateway = fx.Module("loyalty.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
