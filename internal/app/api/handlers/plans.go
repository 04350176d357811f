package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/store"
)

type RecorderRequest struct {
	Recorder string `json:"recorder" binding:"required,casper_key"`
}

// @Summary      Create plan
// @Description  Registers a plan owned by the calling merchant.
// @Tags         Plans
// @Accept       json
// @Produce      json
// @Param        request body plan.CreatePlanRequest true "Plan definition"
// @Success      200  {object}  handlers.RespPlan
// @Router       /api/v1/plans [post]
func ApiCreatePlan(plans *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req plan.CreatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := plans.CreatePlan(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, p)
	}
}

// @Summary      List my plans
// @Tags         Plans
// @Produce      json
// @Param        active_only  query  bool  false  "Only active plans"
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/plans [get]
func ApiListMerchantPlans(plans *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := store.PlanQuery{Merchant: mw.Caller(c), ActiveOnly: c.Query("active_only") == "true"}
		res, err := plans.ListPlans(c.Request.Context(), q)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Update plan
// @Description  Changes plan fields; omitted fields are left unchanged. Existing subscriptions keep their snapshot.
// @Tags         Plans
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "Plan ID"
// @Param        request  body  plan.UpdatePlanRequest  true  "Fields to change"
// @Success      200  {object}  handlers.RespPlan
// @Router       /api/v1/plans/{id} [patch]
func ApiUpdatePlan(plans *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req plan.UpdatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := plans.UpdatePlan(c.Request.Context(), c.Param("id"), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, p)
	}
}

// @Summary      Deactivate plan
// @Tags         Plans
// @Produce      json
// @Param        id  path  string  true  "Plan ID"
// @Success      200  {object}  handlers.RespPlan
// @Router       /api/v1/plans/{id}/deactivate [post]
func ApiDeactivatePlan(plans *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := plans.DeactivatePlan(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, p)
	}
}

// @Summary      Authorize usage recorder
// @Tags         Plans
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "Plan ID"
// @Param        request  body  handlers.RecorderRequest  true  "Recorder public key"
// @Success      200  {object}  handlers.RespRecorder
// @Router       /api/v1/plans/{id}/recorders [post]
func ApiAuthorizeRecorder(meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RecorderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rec, err := meter.AuthorizeRecorder(c.Request.Context(), c.Param("id"), mw.Caller(c), req.Recorder)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, rec)
	}
}

// @Summary      Revoke usage recorder
// @Tags         Plans
// @Produce      json
// @Param        id        path  string  true  "Plan ID"
// @Param        recorder  path  string  true  "Recorder public key"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/plans/{id}/recorders/{recorder} [delete]
func ApiRevokeRecorder(meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := meter.RevokeRecorder(c.Request.Context(), c.Param("id"), mw.Caller(c), c.Param("recorder")); err != nil {
			fail(c, log, err)
			return
		}
		succeed[any](c, nil)
	}
}

// @Summary      List usage recorders
// @Tags         Plans
// @Produce      json
// @Param        id  path  string  true  "Plan ID"
// @Success      200  {object}  handlers.RespRecorders
// @Router       /api/v1/plans/{id}/recorders [get]
func ApiListRecorders(meter *usage.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := meter.ListRecorders(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

func RegisterPlanRoutes(r gin.IRouter, plans *plan.Service, meter *usage.Service, log *zap.SugaredLogger) {
	r.POST("/plans", ApiCreatePlan(plans, log))
	r.GET("/plans", ApiListMerchantPlans(plans, log))
	r.PATCH("/plans/:id", ApiUpdatePlan(plans, log))
	r.POST("/plans/:id/deactivate", ApiDeactivatePlan(plans, log))
	r.POST("/plans/:id/recorders", ApiAuthorizeRecorder(meter, log))
	r.GET("/plans/:id/recorders", ApiListRecorders(meter, log))
	r.DELETE("/plans/:id/recorders/:recorder", ApiRevokeRecorder(meter, log))
}
