package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/renewal"
	"github.com/fatflowers/casperflow/internal/app/service/statistics"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
)

// RenewalRunResponse lists what one sweep touched.
type RenewalRunResponse struct {
	Processed     int                    `json:"processed"`
	Subscriptions []*models.Subscription `json:"subscriptions"`
}

// @Summary      Merchant statistics
// @Description  Revenue, subscriber counts, MRR, conversion and churn for the calling merchant.
// @Tags         Merchant
// @Produce      json
// @Param        at  query  string  false  "RFC3339 evaluation time, default now"
// @Success      200  {object}  handlers.RespMerchantStats
// @Router       /api/v1/merchant/stats [get]
func ApiMerchantStats(stats *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var at time.Time
		if v := c.Query("at"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				badRequest(c, "invalid at")
				return
			}
			at = t
		}
		res, err := stats.GetMerchantStats(c.Request.Context(), mw.Caller(c), at)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Run renewal sweep (Admin)
// @Description  Runs one expiry and renewal sweep immediately. The sweep is idempotent.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespRenewalRun
// @Router       /api/v1/admin/renewals/run [post]
func ApiRunRenewals(sched *renewal.Scheduler, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.IsAdmin(mw.Caller(c)) {
			fail(c, log, errs.ErrUnauthorized)
			return
		}
		subs, err := sched.RunOnce(c.Request.Context())
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, &RenewalRunResponse{Processed: len(subs), Subscriptions: subs})
	}
}

func RegisterMerchantRoutes(r gin.IRouter, stats *statistics.Service, log *zap.SugaredLogger) {
	r.GET("/merchant/stats", ApiMerchantStats(stats, log))
}

func RegisterAdminRoutes(r gin.IRouter, sched *renewal.Scheduler, cfg *config.Config, log *zap.SugaredLogger) {
	r.POST("/renewals/run", ApiRunRenewals(sched, cfg, log))
}
