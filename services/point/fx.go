package point

import "go.uber.org/fx"

var Module = fx.Module("point.service",
	fx.Provide(NewConverter),
)
