package statistics

import "go.uber.org/fx"

// Module exposes the merchant statistics service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
