package stamp

import "go.uber.org/fx"

var Module = fx.Module("stamp.service",
	fx.Provide(
		NewProgramResolver,
		NewLedger,
	),
)
