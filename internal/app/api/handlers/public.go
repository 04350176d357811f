package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/plan"
	subsvc "github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/casper"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/types"
)

// The public endpoints are consumed by third-party services and the web
// frontend, so they answer with plain JSON instead of the envelope.

// PlanSummary is the public view of an active plan.
type PlanSummary struct {
	ID            string              `json:"id"`
	Merchant      string              `json:"merchant"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Price         int64               `json:"price"`
	PriceCSPR     string              `json:"priceCSPR"`
	Period        types.BillingPeriod `json:"period"`
	PeriodSeconds int64               `json:"periodSeconds"`
	UsagePrice    int64               `json:"usagePrice"`
	TrialDays     int                 `json:"trialDays"`
	Active        bool                `json:"active"`
}

type PlansResponse struct {
	Success      bool           `json:"success"`
	Network      string         `json:"network"`
	ContractHash string         `json:"contractHash,omitempty"`
	Plans        []*PlanSummary `json:"plans"`
	TotalPlans   int            `json:"totalPlans"`
}

type PlanResponse struct {
	Success bool         `json:"success"`
	Plan    *PlanSummary `json:"plan,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type BalanceResponse struct {
	Data struct {
		Balance string `json:"balance"`
	} `json:"data"`
}

func toPlanSummary(p *models.Plan) *PlanSummary {
	seconds := p.PeriodSeconds
	if d, err := p.PeriodDuration(); err == nil {
		seconds = int64(d.Seconds())
	}
	return &PlanSummary{
		ID:            p.ID,
		Merchant:      p.Merchant,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.BasePrice,
		PriceCSPR:     types.Motes(p.BasePrice).CSPR(),
		Period:        p.Period,
		PeriodSeconds: seconds,
		UsagePrice:    p.UsagePrice,
		TrialDays:     p.TrialDays,
		Active:        p.Active,
	}
}

// @Summary      Verify API key
// @Description  Checks whether a subscription credential is currently usable.
// @Tags         Public
// @Produce      json
// @Param        apiKey  query     string  true  "Subscription API key"
// @Success      200     {object}  subscription.Verification
// @Failure      400     {object}  subscription.Verification
// @Router       /verify [get]
func ApiVerify(subs *subsvc.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.Query("apiKey")
		if apiKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Missing apiKey parameter"})
			return
		}
		res, err := subs.Verify(c.Request.Context(), apiKey)
		if err != nil {
			logctx.FromGin(c, log).Errorw("verification failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Verification failed"})
			return
		}
		if res.Error == subsvc.VerifyInvalidFormat {
			c.JSON(http.StatusBadRequest, res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      List plans
// @Description  Lists active plans, optionally for one merchant.
// @Tags         Public
// @Produce      json
// @Param        merchant  query     string  false  "Merchant public key"
// @Success      200       {object}  handlers.PlansResponse
// @Router       /plans [get]
func ApiPublicPlans(plans *plan.Service, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := plans.ListPlans(c.Request.Context(), store.PlanQuery{Merchant: c.Query("merchant"), ActiveOnly: true})
		if err != nil {
			logctx.FromGin(c, log).Errorw("failed to list plans", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plans"})
			return
		}
		items := lo.Map(res, func(p *models.Plan, _ int) *PlanSummary { return toPlanSummary(p) })
		c.JSON(http.StatusOK, &PlansResponse{
			Success:      true,
			Network:      cfg.Casper.Network,
			ContractHash: cfg.Casper.ContractHash,
			Plans:        items,
			TotalPlans:   len(items),
		})
	}
}

// @Summary      Get plan
// @Tags         Public
// @Produce      json
// @Param        planId  path      string  true  "Plan ID"
// @Success      200     {object}  handlers.PlanResponse
// @Failure      404     {object}  handlers.PlanResponse
// @Router       /plans/{planId} [get]
func ApiPublicPlan(plans *plan.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := plans.GetPlan(c.Request.Context(), c.Param("planId"))
		if errs.KindOf(err) == errs.KindNotFound {
			c.JSON(http.StatusNotFound, &PlanResponse{Error: "Plan not found"})
			return
		}
		if err != nil {
			logctx.FromGin(c, log).Errorw("failed to get plan", "err", err)
			c.JSON(http.StatusInternalServerError, &PlanResponse{Error: "Failed to fetch plan"})
			return
		}
		c.JSON(http.StatusOK, &PlanResponse{Success: true, Plan: toPlanSummary(p)})
	}
}

// @Summary      Account balance
// @Description  Returns the liquid balance in motes. Unknown accounts and lookup failures report "0".
// @Tags         Public
// @Produce      json
// @Param        publicKey  query     string  true   "Account public key"
// @Param        network    query     string  false  "casper or casper-test"
// @Success      200        {object}  handlers.BalanceResponse
// @Router       /balance [get]
func ApiBalance(chain casper.Client, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicKey := c.Query("publicKey")
		if publicKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing publicKey"})
			return
		}
		network := c.DefaultQuery("network", cfg.Casper.Network)
		var out BalanceResponse
		balance, err := chain.Balance(c.Request.Context(), publicKey, network)
		if err != nil {
			logctx.FromGin(c, log).Warnw("balance lookup failed", "public_key", publicKey, "network", network, "err", err)
			balance = "0"
		}
		out.Data.Balance = balance
		c.JSON(http.StatusOK, &out)
	}
}

func RegisterPublicRoutes(r gin.IRouter, subs *subsvc.Service, plans *plan.Service, chain casper.Client, cfg *config.Config, log *zap.SugaredLogger) {
	r.GET("/verify", ApiVerify(subs, log))
	r.GET("/plans", ApiPublicPlans(plans, cfg, log))
	r.GET("/plans/:planId", ApiPublicPlan(plans, log))
	r.GET("/balance", ApiBalance(chain, cfg, log))
}
