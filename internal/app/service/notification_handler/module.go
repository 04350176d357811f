package notification_handler

import "go.uber.org/fx"

// Module exposes the chain notification handler via Fx.
var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
