package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/casperflow/internal/app/api/middleware"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/pkg/types"
)

type PayInvoiceRequest struct {
	Method types.PaymentMethod `json:"method" binding:"required,oneof=wallet stake consent"`
}

// @Summary      List invoices
// @Description  Lists the caller's invoices newest first. Query filters are exact matches.
// @Tags         Invoices
// @Produce      json
// @Param        role             query  string  false  "subscriber (default) or merchant"
// @Param        status           query  string  false  "pending, paid, failed or cancelled"
// @Param        subscription_id  query  string  false  "Subscription filter"
// @Param        from             query  int     false  "Offset"
// @Param        size             query  int     false  "Page size"
// @Param        sort_by          query  string  false  "Invoice column, default period_start"
// @Param        sort_order       query  string  false  "asc or desc"
// @Success      200  {object}  handlers.RespInvoices
// @Router       /api/v1/invoices [get]
func ApiListInvoices(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &billing.SearchInvoicesRequest{
			Role:      c.Query("role"),
			SortBy:    c.DefaultQuery("sort_by", "period_start"),
			SortOrder: c.DefaultQuery("sort_order", "desc"),
		}
		if v := c.Query("from"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				badRequest(c, "invalid from")
				return
			}
			req.From = n
		}
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				badRequest(c, "invalid size")
				return
			}
			req.Size = n
		}
		for _, field := range []string{"status", "subscription_id", "plan_id", "payment_method"} {
			if v := c.Query(field); v != "" {
				req.Filters = append(req.Filters, &types.CommonFilter{Field: field, Operator: types.CommonFilterOperatorEq, Values: []any{v}})
			}
		}
		res, err := bill.ListInvoices(c.Request.Context(), mw.Caller(c), req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Search invoices
// @Description  Filters with the common filter DSL (eq, not_eq, lt, lte, gt, gte, range, in) on invoice columns.
// @Tags         Invoices
// @Accept       json
// @Produce      json
// @Param        request body billing.SearchInvoicesRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespInvoices
// @Router       /api/v1/invoices/search [post]
func ApiSearchInvoices(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billing.SearchInvoicesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := bill.ListInvoices(c.Request.Context(), mw.Caller(c), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Get invoice
// @Tags         Invoices
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  handlers.RespInvoice
// @Router       /api/v1/invoices/{id} [get]
func ApiGetInvoice(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := bill.GetInvoice(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, inv)
	}
}

// @Summary      Pay invoice
// @Description  Settles a pending invoice from the wallet, staking rewards or a payment consent. Wallet payments wait for chain confirmation; a confirmation timeout leaves the invoice pending for reconciliation.
// @Tags         Invoices
// @Accept       json
// @Produce      json
// @Param        id       path  string                      true  "Invoice ID"
// @Param        request  body  handlers.PayInvoiceRequest  true  "Payment method"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/invoices/{id}/pay [post]
func ApiPayInvoice(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayInvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := bill.PayInvoice(c.Request.Context(), c.Param("id"), mw.Caller(c), req.Method)
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Reconcile invoice
// @Description  Re-checks the chain transaction of a pending wallet payment without resubmitting it.
// @Tags         Invoices
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/invoices/{id}/reconcile [post]
func ApiReconcileInvoice(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := bill.ReconcileInvoice(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, res)
	}
}

// @Summary      Void invoice
// @Description  Cancels a pending invoice of a subscription that is no longer active. Merchant only.
// @Tags         Invoices
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  handlers.RespInvoice
// @Router       /api/v1/invoices/{id}/void [post]
func ApiVoidInvoice(bill *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := bill.VoidInvoice(c.Request.Context(), c.Param("id"), mw.Caller(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		succeed(c, inv)
	}
}

func RegisterInvoiceRoutes(r gin.IRouter, bill *billing.Service, log *zap.SugaredLogger) {
	r.GET("/invoices", ApiListInvoices(bill, log))
	r.POST("/invoices/search", ApiSearchInvoices(bill, log))
	r.GET("/invoices/:id", ApiGetInvoice(bill, log))
	r.POST("/invoices/:id/pay", ApiPayInvoice(bill, log))
	r.POST("/invoices/:id/reconcile", ApiReconcileInvoice(bill, log))
	r.POST("/invoices/:id/void", ApiVoidInvoice(bill, log))
}
