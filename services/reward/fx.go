package reward

import (
	"smallbiznis-rewards/services/stamp"

	"go.uber.org/fx"
)

var Module = fx.Module("reward.service",
	fx.Provide(
		NewIssuer,
		func(i *Issuer) stamp.CompletionHandler { return i },
	),
)
