package main

// @title           CasperFlow API
// @version         1.0
// @description     Subscription billing on Casper: plans, metered usage, invoices, payment consents and stake-to-pay.
// @termsOfService  http://example.com/terms/

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app"
)

func main() {
	os.Exit(run())
}

// run starts the billing node and blocks until fx reports a shutdown
// signal. The renewal scheduler and chain watchers stop with the app.
func run() int {
	// the fx logger is not up until the graph builds
	bootLog := zap.NewExample().Sugar()

	a := fx.New(app.Module, fx.StartTimeout(app.DefaultStartTimeout), fx.StopTimeout(app.DefaultStopTimeout))
	if err := a.Err(); err != nil {
		bootLog.Errorw("casperflow: invalid dependency graph", "err", err)
		return 1
	}

	startCtx, cancel := context.WithTimeout(context.Background(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		bootLog.Errorw("casperflow: start failed", "err", err)
		return 1
	}

	sig := <-a.Wait()

	stopCtx, stop := context.WithTimeout(context.Background(), a.StopTimeout())
	defer stop()
	if err := a.Stop(stopCtx); err != nil {
		bootLog.Errorw("casperflow: stop failed", "signal", sig.Signal, "err", err)
		return 1
	}
	return sig.ExitCode
}
