package notification_handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

// NotificationHandler turns pushed transaction notifications into invoice
// reconciliation. Every notification is audited twice in the change log:
// once on receipt and once with its result.
type NotificationHandler struct {
	cfg     *config.Config
	changes *changelog.Service
	bill    *billing.Service
	now     tool.Clock
	Logger  *zap.SugaredLogger
}

func NewNotificationHandler(cfg *config.Config, changes *changelog.Service, bill *billing.Service, log *zap.SugaredLogger, now tool.Clock) *NotificationHandler {
	return &NotificationHandler{cfg: cfg, changes: changes, bill: bill, now: now, Logger: log}
}

func (h *NotificationHandler) HandleNotification(c *gin.Context, source string) (res *billing.PaymentResult, resErr error) {
	ctx := c.Request.Context()
	log := logctx.FromCtx(ctx, h.Logger)

	var parser NotificationParser
	switch source {
	case SourceCasper:
		p, err := GetCasperNotificationParser(h.cfg, c, h.now())
		if err != nil {
			return nil, err
		}
		parser = p
	default:
		return nil, errs.Invalidf("unsupported notification source: %s", source)
	}

	hash := parser.GetTransactionHash(ctx)
	h.changes.Record(ctx, models.EntityChainNotification, hash, types.ChangeReasonNotificationReceived, nil, parser.GetData(ctx))

	defer func() {
		result := map[string]any{
			"source":            parser.GetSource(ctx),
			"notification_time": parser.GetNotificationTime(ctx),
			"claimed_status":    parser.GetOutcome(ctx).Status,
		}
		reason := types.ChangeReasonNotificationHandled
		if resErr != nil {
			result["error"] = resErr.Error()
			reason = types.ChangeReasonNotificationFailed
		} else {
			result["payment"] = res
		}
		h.changes.Record(ctx, models.EntityChainNotification, hash, reason, parser.GetData(ctx), result)
	}()

	res, resErr = h.bill.ReconcileTransaction(ctx, hash)
	switch {
	case errors.Is(resErr, errs.ErrChainFailure):
		// the invoice is marked failed, which is the outcome we were told about
		log.Infow("notified transaction failed on chain", "hash", hash, "err", resErr)
		return nil, nil
	case resErr != nil:
		log.Warnw("failed to reconcile notified transaction", "hash", hash, "err", resErr)
		return nil, resErr
	}
	if res.Invoice != nil {
		log.Infow("notified transaction reconciled", "hash", hash, "invoice_id", res.Invoice.ID, "status", res.Invoice.Status)
	}
	return res, nil
}
