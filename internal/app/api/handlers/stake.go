package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
)

type AmountRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type StakeSettingsRequest struct {
	AutoPay            bool     `json:"auto_pay"`
	AutoRenew          bool     `json:"auto_renew"`
	PlanIDs            []string `json:"plan_ids"`
	DelegatedValidator string   `json:"delegated_validator" binding:"omitempty,casper_key"`
}

type StakePayInvoiceRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

// @Summary      Get stake position
// @Tags         Stake
// @Produce      json
// @Success      200  {object}  handlers.RespStakePosition
// @Router       /api/v1/stake [get]
func ApiGetStake(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		pos, err := stakes.GetPosition(c.Request.Context(), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, pos)
	}
}

// @Summary      Staking configuration
// @Description  Returns the APY, minimum stake and pool totals.
// @Tags         Stake
// @Produce      json
// @Success      200  {object}  handlers.RespStakeConfig
// @Router       /api/v1/stake/config [get]
func ApiStakeConfig(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := stakes.GetConfig(c.Request.Context())
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, cfg)
	}
}

// @Summary      Stake
// @Description  Opens a position or tops up the caller's existing one.
// @Tags         Stake
// @Accept       json
// @Produce      json
// @Param        request body handlers.AmountRequest true "Amount in motes"
// @Success      200  {object}  handlers.RespStakePosition
// @Router       /api/v1/stake [post]
func ApiStake(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		pos, err := stakes.Stake(c.Request.Context(), mw.Caller(c), req.Amount)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, pos)
	}
}

// @Summary      Claim rewards
// @Tags         Stake
// @Produce      json
// @Success      200  {object}  handlers.RespStakeClaim
// @Router       /api/v1/stake/claim [post]
func ApiClaimRewards(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := stakes.ClaimRewards(c.Request.Context(), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Withdraw
// @Description  Withdraws from pending rewards first, then principal. A position drained to zero is closed.
// @Tags         Stake
// @Accept       json
// @Produce      json
// @Param        request body handlers.AmountRequest true "Amount in motes"
// @Success      200  {object}  handlers.RespStakeWithdraw
// @Router       /api/v1/stake/withdraw [post]
func ApiWithdraw(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := stakes.Withdraw(c.Request.Context(), mw.Caller(c), req.Amount)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Stake settings
// @Description  Replaces the auto-pay preferences of the caller's position.
// @Tags         Stake
// @Accept       json
// @Produce      json
// @Param        request body handlers.StakeSettingsRequest true "Settings"
// @Success      200  {object}  handlers.RespStakePosition
// @Router       /api/v1/stake/settings [post]
func ApiStakeSettings(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StakeSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		pos, err := stakes.SetSettings(c.Request.Context(), mw.Caller(c), stake.SettingsRequest{
			AutoPay:            req.AutoPay,
			AutoRenew:          req.AutoRenew,
			PlanIDs:            req.PlanIDs,
			DelegatedValidator: req.DelegatedValidator,
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, pos)
	}
}

// @Summary      Pay invoice from rewards
// @Description  Settles a pending invoice with accrued staking rewards. Amount must equal the invoice total.
// @Tags         Stake
// @Accept       json
// @Produce      json
// @Param        request body handlers.StakePayInvoiceRequest true "Invoice and amount"
// @Success      200  {object}  handlers.RespStakeInvoicePayment
// @Router       /api/v1/stake/pay-invoice [post]
func ApiStakePayInvoice(stakes *stake.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StakePayInvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := stakes.PayInvoiceFromRewards(c.Request.Context(), mw.Caller(c), req.InvoiceID, req.Amount)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

func RegisterStakeRoutes(r gin.IRouter, stakes *stake.Service, log *zap.SugaredLogger) {
	r.GET("/stake", ApiGetStake(stakes, log))
	r.GET("/stake/config", ApiStakeConfig(stakes, log))
	r.POST("/stake", ApiStake(stakes, log))
	r.POST("/stake/claim", ApiClaimRewards(stakes, log))
	r.POST("/stake/withdraw", ApiWithdraw(stakes, log))
	r.POST("/stake/settings", ApiStakeSettings(stakes, log))
	r.POST("/stake/pay-invoice", ApiStakePayInvoice(stakes, log))
}
