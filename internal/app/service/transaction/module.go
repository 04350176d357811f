package transaction

import "go.uber.org/fx"

// Module provides the TransactionManager that submits and confirms
// Casper deploys.
var Module = fx.Options(
	fx.Provide(NewService),
)
