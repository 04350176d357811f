package notification_handler_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/internal/app/service/notification_handler"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/servicetest"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	merchant = "01merchant"
	bob      = "01bob"
	secret   = "relay-secret"
)

type fixture struct {
	*servicetest.Env
	handler *notification_handler.NotificationHandler
	invoice *models.Invoice
	hash    string
}

// newFixture leaves bob's first invoice pending behind a wallet payment
// whose confirmation timed out.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := servicetest.NewEnv(t, func(c *config.Config) { c.Casper.WebhookSecret = secret })
	ctx := context.Background()

	p, err := env.Plans.CreatePlan(ctx, merchant, plan.CreatePlanRequest{Name: "Pro", BasePrice: 10_000, Period: types.PeriodMonthly})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, bob, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	env.Clock.Advance(30 * 24 * time.Hour)
	inv, err := env.Billing.ClosePeriod(ctx, sub.ID, merchant)
	require.NoError(t, err)

	env.Chain.PendingPolls = 1 << 20
	_, err = env.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrConfirmationTimeout)
	inv, err = env.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	require.NotEmpty(t, inv.PaymentTx)

	h := notification_handler.NewNotificationHandler(env.Config, env.Changes, env.Billing, env.Log, env.Clock.Now)
	return &fixture{Env: env, handler: h, invoice: inv, hash: inv.PaymentTx}
}

func notify(hash, errMsg string) []byte {
	if errMsg == "" {
		return []byte(fmt.Sprintf(`{"event":"deploy_processed","data":{"deploy_hash":%q,"block_hash":"blk"}}`, hash))
	}
	return []byte(fmt.Sprintf(`{"event":"deploy_processed","data":{"deploy_hash":%q,"error_message":%q}}`, hash, errMsg))
}

func post(body []byte, signature string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/casper", bytes.NewReader(body))
	c.Request.Header.Set(notification_handler.SignatureHeader, signature)
	return c
}

func send(body []byte) *gin.Context {
	return post(body, notification_handler.Sign([]byte(secret), body))
}

func TestHandleNotification_SettlesPaidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.Chain.Settle(f.hash, types.TxStatusSucceeded, "")

	c := send(notify(f.hash, ""))
	res, err := f.handler.HandleNotification(c, notification_handler.SourceCasper)
	require.NoError(t, err)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)

	got, err := f.Billing.GetInvoice(ctx, f.invoice.ID, merchant)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, got.Status)

	f.Changes.Wait()
	logs, err := f.Changes.List(ctx, models.EntityChainNotification, f.hash)
	require.NoError(t, err)
	reasons := make([]types.ChangeReason, 0, len(logs))
	for _, l := range logs {
		reasons = append(reasons, l.Reason)
	}
	assert.ElementsMatch(t, []types.ChangeReason{types.ChangeReasonNotificationReceived, types.ChangeReasonNotificationHandled}, reasons)
}

func TestHandleNotification_PayloadOutcomeIsNotTrusted(t *testing.T) {
	f := newFixture(t)

	// the relay claims success but the node still reports pending
	c := send(notify(f.hash, ""))
	res, err := f.handler.HandleNotification(c, notification_handler.SourceCasper)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPending, res.Invoice.Status)
}

func TestHandleNotification_FailedTransaction(t *testing.T) {
	f := newFixture(t)
	f.Chain.Settle(f.hash, types.TxStatusFailed, "Out of gas")

	c := send(notify(f.hash, "Out of gas"))
	res, err := f.handler.HandleNotification(c, notification_handler.SourceCasper)
	require.NoError(t, err)
	assert.Nil(t, res)

	got, err := f.Billing.GetInvoice(context.Background(), f.invoice.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusFailed, got.Status)
}

func TestHandleNotification_UnknownTransaction(t *testing.T) {
	f := newFixture(t)

	c := send(notify("deadbeef", ""))
	_, err := f.handler.HandleNotification(c, notification_handler.SourceCasper)
	require.ErrorIs(t, err, errs.ErrTransactionNotFound)

	f.Changes.Wait()
	logs, err := f.Changes.List(context.Background(), models.EntityChainNotification, "deadbeef")
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestHandleNotification_Rejects(t *testing.T) {
	f := newFixture(t)
	body := notify(f.hash, "")

	_, err := f.handler.HandleNotification(post(body, "bad"), notification_handler.SourceCasper)
	require.ErrorIs(t, err, notification_handler.ErrBadSignature)

	c := send(body)
	_, err = f.handler.HandleNotification(c, "apple")
	require.Error(t, err)
}
