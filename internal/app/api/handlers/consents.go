package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/types"
)

type ChargeRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// @Summary      Grant payment consent
// @Description  Lets the plan's merchant charge the caller up to max_per_period per charge and total_max overall.
// @Tags         Consents
// @Accept       json
// @Produce      json
// @Param        request body consent.CreateConsentRequest true "Consent limits"
// @Success      200  {object}  handlers.RespConsent
// @Router       /api/v1/consents [post]
func ApiCreateConsent(consents *consent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req consent.CreateConsentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := consents.CreateConsent(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      List consents
// @Description  Lists consents the caller granted, or with role=merchant the consents granted to the caller.
// @Tags         Consents
// @Produce      json
// @Param        role     query  string  false  "subscriber (default) or merchant"
// @Param        plan_id  query  string  false  "Plan filter"
// @Param        status   query  string  false  "active, revoked or exhausted"
// @Success      200  {object}  handlers.RespConsents
// @Router       /api/v1/consents [get]
func ApiListConsents(consents *consent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := store.ConsentQuery{PlanID: c.Query("plan_id"), Status: types.ConsentStatus(c.Query("status"))}
		switch c.DefaultQuery("role", billing.RoleSubscriber) {
		case billing.RoleSubscriber:
			q.Subscriber = mw.Caller(c)
		case billing.RoleMerchant:
			q.Merchant = mw.Caller(c)
		default:
			badRequest(c, "role must be subscriber or merchant")
			return
		}
		res, err := consents.ListConsents(c.Request.Context(), q)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Get consent
// @Tags         Consents
// @Produce      json
// @Param        id  path  string  true  "Consent ID"
// @Success      200  {object}  handlers.RespConsent
// @Router       /api/v1/consents/{id} [get]
func ApiGetConsent(consents *consent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := consents.GetConsent(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Charge consent
// @Description  Debits the allowance. Only the consent's merchant may charge.
// @Tags         Consents
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "Consent ID"
// @Param        request  body  handlers.ChargeRequest  true  "Amount in motes"
// @Success      200  {object}  handlers.RespConsent
// @Router       /api/v1/consents/{id}/charge [post]
func ApiChargeConsent(consents *consent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChargeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := consents.Charge(c.Request.Context(), c.Param("id"), mw.Caller(c), req.Amount)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Revoke consent
// @Tags         Consents
// @Produce      json
// @Param        id  path  string  true  "Consent ID"
// @Success      200  {object}  handlers.RespConsent
// @Router       /api/v1/consents/{id}/revoke [post]
func ApiRevokeConsent(consents *consent.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := consents.Revoke(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

func RegisterConsentRoutes(r gin.IRouter, consents *consent.Service, log *zap.SugaredLogger) {
	r.POST("/consents", ApiCreateConsent(consents, log))
	r.GET("/consents", ApiListConsents(consents, log))
	r.GET("/consents/:id", ApiGetConsent(consents, log))
	r.POST("/consents/:id/charge", ApiChargeConsent(consents, log))
	r.POST("/consents/:id/revoke", ApiRevokeConsent(consents, log))
}
