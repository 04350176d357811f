package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/docs"
	"github.com/fatflowers/casperflow/internal/app/api/handlers"
	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	nh "github.com/fatflowers/casperflow/internal/app/service/notification_handler"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/renewal"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/statistics"
	subsvc "github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/platform/casper"
	cfgpkg "github.com/fatflowers/casperflow/pkg/config"
	metrics "github.com/fatflowers/casperflow/pkg/metrics"
)

// Services groups everything the routes call into.
type Services struct {
	fx.In

	Plans         *plan.Service
	Usage         *usage.Service
	Subscriptions *subsvc.Service
	Billing       *billing.Service
	Consents      *consent.Service
	Stakes        *stake.Service
	Statistics    *statistics.Service
	Renewal       *renewal.Scheduler
	Chain         casper.Client
	Notifications *nh.NotificationHandler
}

func newEngine() (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r, nil
}

// RegisterRoutes mounts the public, swagger and /api/v1 routes on r.
func RegisterRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, svc Services) {
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub, cfg)
	handlers.RegisterPublicRoutes(pub, svc.Subscriptions, svc.Plans, svc.Chain, cfg, log)
	handlers.RegisterWebhookRoutes(pub, svc.Notifications)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected group using auth middleware
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AuthMiddleware(cfg, log), mw.AccessLogMiddleware())
	handlers.RegisterPlanRoutes(apiV1, svc.Plans, svc.Usage, log)
	handlers.RegisterSubscriptionRoutes(apiV1, svc.Subscriptions, svc.Billing, svc.Usage, log)
	handlers.RegisterUsageRoutes(apiV1, svc.Usage, log)
	handlers.RegisterInvoiceRoutes(apiV1, svc.Billing, log)
	handlers.RegisterConsentRoutes(apiV1, svc.Consents, log)
	handlers.RegisterStakeRoutes(apiV1, svc.Stakes, log)
	handlers.RegisterMerchantRoutes(apiV1, svc.Statistics, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), svc.Renewal, cfg, log)
}

func registerRoutes(lc fx.Lifecycle, r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, svc Services) {
	// Prometheus metrics
	if cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			Subsystem: metrics.Subsystem,
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)
		lc.Append(fx.StopHook(p.Close))

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	RegisterRoutes(r, log, cfg, svc)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
