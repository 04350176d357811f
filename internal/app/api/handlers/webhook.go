package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nh "github.com/fatflowers/casperflow/internal/app/service/notification_handler"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/response"
)

// @Summary      Casper deploy webhook
// @Description  Receives deploy_processed events from the node event relay and reconciles the invoice the deploy pays. The body is signed with X-Webhook-Signature when a webhook secret is configured. Non-2xx answers ask the relay to retry.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Signature  header  string  false  "hex HMAC-SHA256 of the body"
// @Param        payload  body  notification_handler.DeployNotification  true  "deploy notification"
// @Success      200  {object}  handlers.RespPayment
// @Failure      400  {object}  handlers.RespError
// @Failure      401  {object}  handlers.RespError
// @Failure      500  {object}  handlers.RespError
// @Router       /webhooks/casper [post]
func ApiCasperWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, h.Logger)
		log.Infow("webhook_casper_received")

		res, err := h.HandleNotification(c, nh.SourceCasper)
		if err == nil {
			log.Infow("webhook_casper_handled")
			c.JSON(http.StatusOK, response.OKT(res))
			return
		}

		status := http.StatusOK
		data := ErrorData{Error: err.Error()}
		switch errs.KindOf(err) {
		case errs.KindUnauthorized:
			status = http.StatusUnauthorized
		case errs.KindInvalidArgument:
			status = http.StatusBadRequest
		case errs.KindInternal, errs.KindExternalFailure, errs.KindConfirmationTimeout:
			// the relay retries on 5xx
			status = http.StatusInternalServerError
			if errs.KindOf(err) == errs.KindInternal {
				data.Error = "internal error"
			}
		}
		if e, ok := errs.As(err); ok {
			data.Reason = e.Code
		}
		if status == http.StatusOK {
			// not payable by this deploy, a retry would not change that
			log.Infow("webhook_casper_ignored", "error", err.Error())
		} else {
			log.Warnw("webhook_casper_handle_error", "status", status, "error", err.Error())
		}
		c.JSON(status, response.ErrorT(CodeOf(err), data))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *nh.NotificationHandler) {
	r.POST("/webhooks/casper", ApiCasperWebhook(h))
}
