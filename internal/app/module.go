package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/casperflow/internal/app/api/server"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/app/service/notification_handler"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/renewal"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/statistics"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/app/service/transaction"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/platform/cache"
	"github.com/fatflowers/casperflow/internal/platform/casper"
	"github.com/fatflowers/casperflow/internal/platform/db"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/logger"
	"github.com/fatflowers/casperflow/pkg/metrics"
	"github.com/fatflowers/casperflow/pkg/tool"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	fx.Provide(tool.SystemClock),
	db.Module,
	cache.Module,
	events.Module,
	casper.Module,
	changelog.Module,
	plan.Module,
	usage.Module,
	consent.Module,
	stake.Module,
	transaction.Module,
	billing.Module,
	subscription.Module,
	statistics.Module,
	renewal.Module,
	notification_handler.Module,
	server.Module,
)
