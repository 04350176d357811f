package subscription

import "go.uber.org/fx"

// Module provides the subscription lifecycle service, including trial
// conversion and the payment verification cache.
var Module = fx.Options(
	fx.Provide(NewService),
)
