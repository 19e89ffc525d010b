package actiontoken

import "go.uber.org/fx"

var Module = fx.Module("actiontoken.service",
	fx.Provide(
		NewDBLedger,
		NewLedger,
		NewGuard,
	),
)
