package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	subsvc "github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/types"
)

type StartTrialRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type AutoRenewRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UsageListResponse is the usage recorded for one subscription in [From, To).
type UsageListResponse struct {
	SubscriptionID string                `json:"subscription_id"`
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
	Units          int64                 `json:"units"`
	Records        []*models.UsageRecord `json:"records"`
}

// @Summary      Subscribe
// @Description  Starts a paid subscription for the caller. The first period is billed in arrears.
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Param        request body subscription.SubscribeRequest true "Plan to subscribe to"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions [post]
func ApiSubscribe(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subsvc.SubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		sub, err := subs.Subscribe(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      Start trial
// @Description  Starts the plan's free trial; allowed once per plan and subscriber.
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Param        request body handlers.StartTrialRequest true "Plan to trial"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/trial [post]
func ApiStartTrial(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartTrialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		sub, err := subs.StartTrial(c.Request.Context(), mw.Caller(c), req.PlanID)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      List subscriptions
// @Description  Lists the caller's subscriptions, or with role=merchant the subscriptions to the caller's plans.
// @Tags         Subscriptions
// @Produce      json
// @Param        role     query  string  false  "subscriber (default) or merchant"
// @Param        plan_id  query  string  false  "Plan filter"
// @Param        status   query  string  false  "active, cancelled or expired"
// @Success      200  {object}  handlers.RespSubscriptions
// @Router       /api/v1/subscriptions [get]
func ApiListSubscriptions(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := store.SubscriptionQuery{PlanID: c.Query("plan_id"), Status: types.SubscriptionStatus(c.Query("status"))}
		switch c.DefaultQuery("role", billing.RoleSubscriber) {
		case billing.RoleSubscriber:
			q.Subscriber = mw.Caller(c)
		case billing.RoleMerchant:
			q.Merchant = mw.Caller(c)
		default:
			badRequest(c, "role must be subscriber or merchant")
			return
		}
		res, err := subs.ListSubscriptions(c.Request.Context(), q)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Get subscription
// @Tags         Subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id} [get]
func ApiGetSubscription(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := subs.GetSubscription(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      Cancel subscription
// @Description  Cancels immediately and issues the final invoice for the elapsed part of the period.
// @Tags         Subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/cancel [post]
func ApiCancelSubscription(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := subs.Cancel(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      Toggle auto-renew
// @Tags         Subscriptions
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "Subscription ID"
// @Param        request  body  handlers.AutoRenewRequest  true  "Desired state"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/auto-renew [post]
func ApiSetAutoRenew(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AutoRenewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		sub, err := subs.SetAutoRenew(c.Request.Context(), c.Param("id"), mw.Caller(c), *req.Enabled)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      Convert trial
// @Description  Ends the trial now and starts a full-price period.
// @Tags         Subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/convert [post]
func ApiConvertTrial(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := subs.ConvertTrial(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, sub)
	}
}

// @Summary      Close billing period
// @Description  Issues the invoice of an elapsed period. Only the plan's merchant may call it.
// @Tags         Subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespInvoice
// @Router       /api/v1/subscriptions/{id}/close-period [post]
func ApiClosePeriod(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := bill.ClosePeriod(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, inv)
	}
}

// @Summary      Subscription usage
// @Description  Lists usage records in [from, to). Both bounds default to the open period.
// @Tags         Usage
// @Produce      json
// @Param        id    path   string  true   "Subscription ID"
// @Param        from  query  string  false  "RFC3339 start"
// @Param        to    query  string  false  "RFC3339 end"
// @Success      200  {object}  handlers.RespUsageList
// @Router       /api/v1/subscriptions/{id}/usage [get]
func ApiListUsage(subs *subsvc.Service, meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sub, err := subs.GetSubscription(ctx, c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		from, to := sub.PeriodStart, sub.ExpiresAt
		if v := c.Query("from"); v != "" {
			if from, err = time.Parse(time.RFC3339, v); err != nil {
				badRequest(c, "invalid from")
				return
			}
		}
		if v := c.Query("to"); v != "" {
			if to, err = time.Parse(time.RFC3339, v); err != nil {
				badRequest(c, "invalid to")
				return
			}
		}
		units, err := meter.GetPeriodUsage(ctx, sub.ID, from, to)
		if err != nil {
			fail(c, log, err)
			return
		}
		records, err := meter.ListUsage(ctx, sub.ID, from, to)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, &UsageListResponse{SubscriptionID: sub.ID, From: from, To: to, Units: units, Records: records})
	}
}

// @Summary      Current period usage
// @Tags         Usage
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  handlers.RespUsageSummary
// @Router       /api/v1/subscriptions/{id}/usage/current [get]
func ApiCurrentUsage(subs *subsvc.Service, meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := subs.GetSubscription(ctx, c.Param("id"), mw.Caller(c)); err != nil {
			fail(c, log, err)
			return
		}
		summary, err := meter.GetCurrentUsage(ctx, c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, summary)
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, subs *subsvc.Service, bill *billing.Service, meter *usage.Service, log *zap.SugaredLogger) {
	r.POST("/subscriptions", ApiSubscribe(subs, log))
	r.POST("/subscriptions/trial", ApiStartTrial(subs, log))
	r.GET("/subscriptions", ApiListSubscriptions(subs, log))
	r.GET("/subscriptions/:id", ApiGetSubscription(subs, log))
	r.POST("/subscriptions/:id/cancel", ApiCancelSubscription(subs, log))
	r.POST("/subscriptions/:id/auto-renew", ApiSetAutoRenew(subs, log))
	r.POST("/subscriptions/:id/convert", ApiConvertTrial(subs, log))
	r.POST("/subscriptions/:id/close-period", ApiClosePeriod(bill, log))
	r.GET("/subscriptions/:id/usage", ApiListUsage(subs, meter, log))
	r.GET("/subscriptions/:id/usage/current", ApiCurrentUsage(subs, meter, log))
}
