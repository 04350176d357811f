package changelog

import (
	"go.uber.org/fx"
)

// Module exposes the change log writer and drains it on shutdown.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.StopHook(s.Wait))
	}),
)
