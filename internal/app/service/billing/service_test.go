package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/servicetest"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	merchant = "01merchant"
	bob      = "01bob"
	meter    = "01meter"

	day   = 24 * time.Hour
	price = int64(10_000)
)

type fixture struct {
	*servicetest.Env
	plan *models.Plan
	sub  *models.Subscription
}

// newFixture subscribes bob to a monthly metered plan.
func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	env := servicetest.NewEnv(t, opts...)
	ctx := context.Background()
	p, err := env.Plans.CreatePlan(ctx, merchant, plan.CreatePlanRequest{
		Name:       "Pro",
		BasePrice:  price,
		Period:     types.PeriodMonthly,
		UsagePrice: 1,
	})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, bob, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	return &fixture{Env: env, plan: p, sub: sub}
}

// closed moves past the first period and issues its invoice.
func (f *fixture) closed(t *testing.T) *models.Invoice {
	t.Helper()
	f.Clock.Advance(30 * day)
	inv, err := f.Billing.ClosePeriod(context.Background(), f.sub.ID, merchant)
	require.NoError(t, err)
	return inv
}

func TestClosePeriod_BillsBaseAndUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Usage.AuthorizeRecorder(ctx, f.plan.ID, merchant, meter)
	require.NoError(t, err)
	for _, units := range []int64{150, 230} {
		_, err := f.Usage.RecordUsage(ctx, meter, usage.RecordRequest{SubscriptionID: f.sub.ID, Metric: "api_calls", Units: units})
		require.NoError(t, err)
	}
	got, err := f.Usage.GetPeriodUsage(ctx, f.sub.ID, f.sub.PeriodStart, f.sub.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, int64(380), got)

	inv := f.closed(t)
	assert.Equal(t, types.InvoiceStatusPending, inv.Status)
	assert.Equal(t, price, inv.BaseAmount)
	assert.Equal(t, int64(380), inv.UsageUnits)
	assert.Equal(t, int64(380), inv.UsageAmount)
	assert.Equal(t, price+380, inv.TotalAmount)
	assert.Equal(t, f.sub.PeriodStart, inv.PeriodStart)
	assert.Equal(t, f.sub.ExpiresAt, inv.PeriodEnd)
	assert.Contains(t, f.Events.Types(), events.InvoiceCreated)

	// one invoice per period
	_, err = f.Billing.ClosePeriod(ctx, f.sub.ID, bob)
	require.ErrorIs(t, err, errs.ErrInvoiceAlreadyIssued)
}

func TestClosePeriod_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.Billing.ClosePeriod(ctx, f.sub.ID, bob)
	require.ErrorIs(t, err, errs.ErrPeriodOpen)

	_, err = f.Billing.ClosePeriod(ctx, f.sub.ID, "01stranger")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = f.Billing.ClosePeriod(ctx, "missing", bob)
	require.ErrorIs(t, err, errs.ErrSubscriptionNotFound)
}

func TestClosePeriod_PlanEditDoesNotReachInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raised := int64(80_000)
	_, err := f.Plans.UpdatePlan(ctx, f.plan.ID, merchant, plan.UpdatePlanRequest{BasePrice: &raised})
	require.NoError(t, err)

	inv := f.closed(t)
	assert.Equal(t, price, inv.BaseAmount)
}

func TestPayInvoice_Wallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)

	_, err := f.Billing.PayInvoice(ctx, inv.ID, merchant, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	res, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, types.PaymentMethodWallet, res.Invoice.PaymentMethod)
	assert.Equal(t, res.Transaction.Hash, res.Invoice.PaymentTx)
	assert.Equal(t, int64(100), res.Invoice.ProtocolFee)
	assert.Equal(t, price-100, res.Invoice.MerchantAmount())
	require.NotNil(t, res.Invoice.PaidAt)

	require.Len(t, f.Chain.Transfers, 1)
	assert.Equal(t, bob, f.Chain.Transfers[0].From)
	assert.Equal(t, merchant, f.Chain.Transfers[0].To)
	assert.Equal(t, price, f.Chain.Transfers[0].Amount)
	assert.Contains(t, f.Events.Types(), events.InvoicePaid)

	_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrInvoiceNotPayable)
	assert.Equal(t, 1, f.Chain.Submissions())
}

func TestPayInvoice_WalletThroughContract(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Casper.ContractHash = "hash-billing" })
	ctx := context.Background()
	inv := f.closed(t)

	res, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	require.Len(t, f.Chain.Calls, 1)
	call := f.Chain.Calls[0]
	assert.Equal(t, "hash-billing", call.ContractHash)
	assert.Equal(t, billing.PayInvoiceEntryPoint, call.EntryPoint)
	assert.Equal(t, inv.ID, call.Args["invoice_id"])
	assert.Empty(t, f.Chain.Transfers)
}

func TestPayInvoice_WalletFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)
	f.Chain.Outcome = types.TxStatusFailed
	f.Chain.ErrorMessage = "insufficient funds"

	_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrChainFailure)

	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusFailed, got.Status)
	assert.Contains(t, f.Events.Types(), events.InvoiceFailed)
}

func TestPayInvoice_WalletSubmitErrorReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)
	f.Chain.SubmitErr = assert.AnError

	_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrChainFailure)

	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPending, got.Status)
	assert.Empty(t, got.PaymentTx)

	f.Chain.SubmitErr = nil
	res, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
}

func TestPayInvoice_WalletTimeoutThenReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)
	f.Chain.PendingPolls = 1 << 20

	_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrConfirmationTimeout)

	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPending, got.Status)
	require.NotEmpty(t, got.PaymentTx)
	hash := got.PaymentTx

	// no resubmission while the first payment may still land
	_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrPaymentInFlight)
	_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodConsent)
	require.ErrorIs(t, err, errs.ErrPaymentInFlight)
	assert.Equal(t, 1, f.Chain.Submissions())

	res, err := f.Billing.ReconcileInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPending, res.Invoice.Status)

	f.Chain.Settle(hash, types.TxStatusSucceeded, "")
	res, err = f.Billing.ReconcileInvoice(ctx, inv.ID, merchant)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, hash, res.Invoice.PaymentTx)
	assert.Equal(t, 1, f.Chain.Submissions())

	// settled invoices reconcile to themselves
	res, err = f.Billing.ReconcileInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
}

func TestReconcileInvoice_NothingToReconcile(t *testing.T) {
	f := newFixture(t)
	inv := f.closed(t)

	_, err := f.Billing.ReconcileInvoice(context.Background(), inv.ID, bob)
	require.ErrorIs(t, err, errs.ErrInvoiceNotPayable)
	_, err = f.Billing.ReconcileInvoice(context.Background(), inv.ID, "01stranger")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestPayInvoice_Consent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)

	small, err := f.Consents.CreateConsent(ctx, bob, consent.CreateConsentRequest{PlanID: f.plan.ID, MaxPerPeriod: 100, TotalMax: 1_000})
	require.NoError(t, err)
	c, err := f.Consents.CreateConsent(ctx, bob, consent.CreateConsentRequest{PlanID: f.plan.ID, MaxPerPeriod: 20_000, TotalMax: 100_000})
	require.NoError(t, err)
	res, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodConsent)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, types.PaymentMethodConsent, res.Invoice.PaymentMethod)
	assert.Equal(t, c.ID, res.Invoice.PaymentTx)

	got, err := f.Consents.GetConsent(ctx, c.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), got.Remaining)
	untouched, err := f.Consents.GetConsent(ctx, small.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), untouched.Remaining)
	assert.Zero(t, f.Chain.Submissions())
}

func TestPayInvoice_ConsentDeclinedMarksFailed(t *testing.T) {
	tests := []struct {
		name    string
		consent *consent.CreateConsentRequest
		revoke  bool
		wantErr error
	}{
		{name: "no consent", wantErr: errs.ErrConsentNotFound},
		{name: "allowance too small", consent: &consent.CreateConsentRequest{MaxPerPeriod: 100, TotalMax: 1_000}, wantErr: errs.ErrInsufficientAllowance},
		{name: "revoked", consent: &consent.CreateConsentRequest{MaxPerPeriod: 20_000, TotalMax: 100_000}, revoke: true, wantErr: errs.ErrConsentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			inv := f.closed(t)
			if tt.consent != nil {
				req := *tt.consent
				req.PlanID = f.plan.ID
				c, err := f.Consents.CreateConsent(ctx, bob, req)
				require.NoError(t, err)
				if tt.revoke {
					_, err = f.Consents.Revoke(ctx, c.ID, bob)
					require.NoError(t, err)
				}
			}

			_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodConsent)
			require.ErrorIs(t, err, tt.wantErr)

			got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
			require.NoError(t, err)
			assert.Equal(t, types.InvoiceStatusFailed, got.Status)
			assert.Equal(t, types.PaymentMethodConsent, got.PaymentMethod)
			assert.Nil(t, got.PaidAt)
			assert.Contains(t, f.Events.Types(), events.InvoiceFailed)

			_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodConsent)
			require.ErrorIs(t, err, errs.ErrInvoiceNotPayable)
		})
	}
}

func TestPayInvoice_Stake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.Stakes.Stake(ctx, bob, 1_000*types.MotesPerCSPR)
	require.NoError(t, err)
	inv := f.closed(t)

	res, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodStake)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, types.PaymentMethodStake, res.Invoice.PaymentMethod)

	pos, err := f.Stakes.GetPosition(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, price, pos.TotalSubscriptionsPaid)
}

func TestPayInvoice_StakeWithoutRewardsMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)
	_, err := f.Stakes.Stake(ctx, bob, 1_000)
	require.NoError(t, err)

	_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodStake)
	require.ErrorIs(t, err, errs.ErrInsufficientRewards)

	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusFailed, got.Status)
	assert.Equal(t, types.PaymentMethodStake, got.PaymentMethod)
	assert.Contains(t, f.Events.Types(), events.InvoiceFailed)

	// the position is untouched by the declined payment
	pos, err := f.Stakes.GetPosition(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, pos.TotalSubscriptionsPaid)
	assert.Equal(t, int64(1_000), pos.Principal)
}

func TestPayInvoice_StakeWithoutPositionMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)

	_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodStake)
	require.ErrorIs(t, err, errs.ErrPositionNotFound)

	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusFailed, got.Status)
}

func TestPayInvoice_UnknownMethod(t *testing.T) {
	f := newFixture(t)
	inv := f.closed(t)
	_, err := f.Billing.PayInvoice(context.Background(), inv.ID, bob, "card")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)

	_, err := f.Billing.VoidInvoice(ctx, inv.ID, bob)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// the subscription lapsed but has not been swept yet
	_, err = f.Billing.VoidInvoice(ctx, inv.ID, merchant)
	require.ErrorIs(t, err, errs.ErrSubscriptionActive)

	_, err = f.Subscriptions.ExpireDue(ctx, f.Clock.Now())
	require.NoError(t, err)

	got, err := f.Billing.VoidInvoice(ctx, inv.ID, merchant)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusCancelled, got.Status)

	_, err = f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrInvoiceNotPayable)
}

func TestListInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)

	res, err := f.Billing.ListInvoices(ctx, bob, &billing.SearchInvoicesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, inv.ID, res.Items[0].ID)

	res, err = f.Billing.ListInvoices(ctx, merchant, &billing.SearchInvoicesRequest{Role: billing.RoleMerchant})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)

	// merchants see nothing on the subscriber side
	res, err = f.Billing.ListInvoices(ctx, merchant, &billing.SearchInvoicesRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	res, err = f.Billing.ListInvoices(ctx, bob, &billing.SearchInvoicesRequest{
		Filters: []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"paid"}}},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	tests := []struct {
		name string
		req  *billing.SearchInvoicesRequest
	}{
		{name: "unknown filter field", req: &billing.SearchInvoicesRequest{
			Filters: []*types.CommonFilter{{Field: "password", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		}},
		{name: "unknown nested field", req: &billing.SearchInvoicesRequest{
			Filters: []*types.CommonFilter{{Filters: []types.CommonFilter{{Field: "drop table", Operator: types.CommonFilterOperatorEq, Values: []any{1}}}}},
		}},
		{name: "unknown sort column", req: &billing.SearchInvoicesRequest{SortBy: "secret"}},
		{name: "unknown role", req: &billing.SearchInvoicesRequest{Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Billing.ListInvoices(ctx, bob, tt.req)
			require.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}

func TestReconcileTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.closed(t)
	f.Chain.PendingPolls = 1 << 20

	_, err := f.Billing.PayInvoice(ctx, inv.ID, bob, types.PaymentMethodWallet)
	require.ErrorIs(t, err, errs.ErrConfirmationTimeout)
	got, err := f.Billing.GetInvoice(ctx, inv.ID, bob)
	require.NoError(t, err)
	hash := got.PaymentTx

	_, err = f.Billing.ReconcileTransaction(ctx, "unknown")
	require.ErrorIs(t, err, errs.ErrTransactionNotFound)

	res, err := f.Billing.ReconcileTransaction(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPending, res.Invoice.Status)

	f.Chain.Settle(hash, types.TxStatusSucceeded, "")
	res, err = f.Billing.ReconcileTransaction(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, 1, f.Chain.Submissions())
}
