package subscription_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/servicetest"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	merchant = "01merchant"
	alice    = "01alice"
	bob      = "01bob"

	day = 24 * time.Hour
)

func newPlan(t *testing.T, env *servicetest.Env, basePrice int64, trialDays int) *models.Plan {
	t.Helper()
	p, err := env.Plans.CreatePlan(context.Background(), merchant, plan.CreatePlanRequest{
		Name:      "Pro",
		BasePrice: basePrice,
		Period:    types.PeriodMonthly,
		TrialDays: trialDays,
	})
	require.NoError(t, err)
	return p
}

func invoicesOf(t *testing.T, env *servicetest.Env, subscriptionID string) []*models.Invoice {
	t.Helper()
	list, _, err := env.Store.Invoices().List(context.Background(), store.InvoiceQuery{
		Filters: types.Filters{{Field: "subscription_id", Operator: types.CommonFilterOperatorEq, Values: []any{subscriptionID}}},
		SortBy:  "period_start",
	})
	require.NoError(t, err)
	return list
}

func TestSubscribe_SnapshotsPlan(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)

	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(50), sub.Price)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, servicetest.Start, sub.SubscribedAt)
	assert.Equal(t, servicetest.Start.Add(30*day), sub.ExpiresAt)
	assert.False(t, sub.AutoRenew)
	assert.True(t, strings.HasPrefix(sub.APIKey, "cf_sk_"))
	assert.Len(t, sub.APIKey, len("cf_sk_")+32)

	got, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SubscriberCount)
	assert.Equal(t, int64(50), got.TotalRevenue)

	raised := int64(80)
	_, err = env.Plans.UpdatePlan(ctx, p.ID, merchant, plan.UpdatePlanRequest{BasePrice: &raised})
	require.NoError(t, err)
	again, err := env.Subscriptions.GetSubscription(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(50), again.Price)

	assert.Equal(t, []string{events.SubscriptionCreated, events.PaymentDue}, env.Events.Types())
}

func TestSubscribe_TwiceFails(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)

	first, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	_, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.ErrorIs(t, err, errs.ErrAlreadySubscribed)

	got, err := env.Subscriptions.GetSubscription(ctx, first.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	p2, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p2.SubscriberCount)

	// other subscribers are unaffected
	_, err = env.Subscriptions.Subscribe(ctx, bob, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
}

func TestSubscribe_InactivePlan(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	_, err := env.Plans.DeactivatePlan(ctx, p.ID, merchant)
	require.NoError(t, err)

	_, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.ErrorIs(t, err, errs.ErrPlanNotFound)
	_, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: "missing"})
	require.ErrorIs(t, err, errs.ErrPlanNotFound)
	_, err = env.Subscriptions.Subscribe(ctx, "", subscription.SubscribeRequest{PlanID: p.ID})
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestSubscribe_AfterLapseStartsFresh(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	first, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	env.Clock.Advance(31 * day)
	second, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := env.Subscriptions.GetSubscription(ctx, first.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusExpired, old.Status)
	require.Len(t, invoicesOf(t, env, first.ID), 1)
}

func TestStartTrial(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 7)

	sub, err := env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.True(t, sub.IsTrial)
	assert.True(t, sub.StartedAsTrial)
	assert.Equal(t, servicetest.Start.Add(7*day), sub.ExpiresAt)

	got, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SubscriberCount)
	assert.Zero(t, got.TotalRevenue)

	_, err = env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.ErrorIs(t, err, errs.ErrAlreadyTrialing)
	_, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.ErrorIs(t, err, errs.ErrAlreadySubscribed)

	// one trial per plan, ever
	_, err = env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.NoError(t, err)
	_, err = env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.ErrorIs(t, err, errs.ErrAlreadyTrialing)

	noTrial := newPlan(t, env, 50, 0)
	_, err = env.Subscriptions.StartTrial(ctx, alice, noTrial.ID)
	require.ErrorIs(t, err, errs.ErrTrialUnavailable)
}

func TestStartTrial_WhileSubscribed(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 7)
	_, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	_, err = env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.ErrorIs(t, err, errs.ErrAlreadySubscribed)
}

func TestConvertTrial(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 7)
	sub, err := env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.NoError(t, err)

	now := env.Clock.Advance(3 * day)
	conv, err := env.Subscriptions.ConvertTrial(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.False(t, conv.IsTrial)
	assert.True(t, conv.StartedAsTrial)
	assert.Equal(t, now, conv.PeriodStart)
	assert.Equal(t, now.Add(30*day), conv.ExpiresAt)

	// the trial window is billed at zero and settles on the spot
	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Zero(t, invs[0].TotalAmount)
	assert.Equal(t, types.InvoiceStatusPaid, invs[0].Status)
	assert.Equal(t, now, invs[0].PeriodEnd)

	got, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.TotalRevenue)
	assert.Contains(t, env.Events.Types(), events.TrialConverted)

	_, err = env.Subscriptions.ConvertTrial(ctx, sub.ID, alice)
	require.ErrorIs(t, err, errs.ErrNotTrial)
	_, err = env.Subscriptions.ConvertTrial(ctx, sub.ID, bob)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestConvertTrial_AfterTrialEnded(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 7)
	sub, err := env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.NoError(t, err)

	env.Clock.Advance(8 * day)
	_, err = env.Subscriptions.ConvertTrial(ctx, sub.ID, alice)
	require.ErrorIs(t, err, errs.ErrNotActive)
}

func TestCancel_InvoicesUsedPeriod(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)

	_, err = env.Subscriptions.Cancel(ctx, sub.ID, bob)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	now := env.Clock.Advance(10 * day)
	got, err := env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, now, *got.CancelledAt)
	assert.False(t, got.AutoRenew)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, int64(50), invs[0].BaseAmount)
	assert.Equal(t, now, invs[0].PeriodEnd)
	assert.Equal(t, types.InvoiceStatusPending, invs[0].Status)

	_, err = env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.ErrorIs(t, err, errs.ErrNotActive)
	_, err = env.Subscriptions.SetAutoRenew(ctx, sub.ID, alice, true)
	require.ErrorIs(t, err, errs.ErrNotActive)

	// the pair is free again
	_, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
}

func TestCancel_DuePeriodSettlesFirst(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	_, err := env.Consents.CreateConsent(ctx, alice, consent.CreateConsentRequest{PlanID: p.ID, MaxPerPeriod: 50, TotalMax: 500})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)

	// the period ended but no sweep has run yet
	now := env.Clock.Advance(35 * day)
	got, err := env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, got.Status)
	assert.Equal(t, sub.ExpiresAt, got.PeriodStart)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 2)
	assert.Equal(t, types.InvoiceStatusPaid, invs[0].Status)
	assert.Equal(t, sub.ExpiresAt, invs[0].PeriodEnd)
	assert.Equal(t, sub.ExpiresAt, invs[1].PeriodStart)
	assert.Equal(t, now, invs[1].PeriodEnd)
	assert.Contains(t, env.Events.Types(), events.SubscriptionRenewed)
}

func TestCancel_LapsedSubscriptionExpires(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(false)})
	require.NoError(t, err)

	env.Clock.Advance(31 * day)
	_, err = env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.ErrorIs(t, err, errs.ErrNotActive)
	_, err = env.Subscriptions.SetAutoRenew(ctx, sub.ID, alice, true)
	require.ErrorIs(t, err, errs.ErrNotActive)

	// the settlement is kept even though the call was refused
	got, err := env.Store.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusExpired, got.Status)
	assert.Nil(t, got.CancelledAt)
	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, sub.ExpiresAt, invs[0].PeriodEnd)
}

func TestSetAutoRenew(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	got, err := env.Subscriptions.SetAutoRenew(ctx, sub.ID, alice, true)
	require.NoError(t, err)
	assert.True(t, got.AutoRenew)
	got, err = env.Subscriptions.SetAutoRenew(ctx, sub.ID, alice, false)
	require.NoError(t, err)
	assert.False(t, got.AutoRenew)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)
}

func TestSubscribe_AutoRenewFollowsStakeSettings(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	other := newPlan(t, env, 50, 0)
	_, err := env.Stakes.Stake(ctx, alice, 1_000)
	require.NoError(t, err)
	_, err = env.Stakes.SetSettings(ctx, alice, stake.SettingsRequest{AutoRenew: true, PlanIDs: []string{p.ID}})
	require.NoError(t, err)

	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	assert.True(t, sub.AutoRenew)

	sub, err = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: other.ID})
	require.NoError(t, err)
	assert.False(t, sub.AutoRenew)
}

func TestVerify(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	res, err := env.Subscriptions.Verify(ctx, "sk_live_123")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, subscription.VerifyInvalidFormat, res.Error)

	res, err = env.Subscriptions.Verify(ctx, "cf_sk_"+strings.Repeat("a", 32))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, subscription.VerifyNotFound, res.Error)

	res, err = env.Subscriptions.Verify(ctx, sub.APIKey)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, sub.ID, res.SubscriptionID)
	assert.Equal(t, "Pro", res.PlanName)
	assert.Equal(t, "casper-test", res.Network)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, sub.ExpiresAt.UTC().Format(time.RFC3339), res.ExpiresAtHuman)
	assert.Equal(t, 1, env.Cache.Len())

	// validity is judged at read time even from the cache
	env.Clock.Advance(30 * day)
	res, err = env.Subscriptions.Verify(ctx, sub.APIKey)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, subscription.VerifyExpired, res.Error)
}

func TestVerify_CancelInvalidatesCache(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	res, err := env.Subscriptions.Verify(ctx, sub.APIKey)
	require.NoError(t, err)
	require.True(t, res.Valid)

	_, err = env.Subscriptions.Cancel(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Zero(t, env.Cache.Len())

	res, err = env.Subscriptions.Verify(ctx, sub.APIKey)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, subscription.VerifyCancelled, res.Error)
	assert.Equal(t, "Pro", res.PlanName)
}

func TestExpireDue_ExpiresWithoutAutoRenew(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)

	// nothing is due yet
	out, err := env.Subscriptions.ExpireDue(ctx, env.Clock.Now())
	require.NoError(t, err)
	assert.Empty(t, out)

	now := env.Clock.Advance(30 * day)
	out, err = env.Subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.SubscriptionStatusExpired, out[0].Status)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, types.InvoiceStatusPending, invs[0].Status)
	assert.Contains(t, env.Events.Types(), events.SubscriptionExpired)

	// idempotent
	out, err = env.Subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, invoicesOf(t, env, sub.ID), 1)
}

func TestExpireDue_RenewsFromConsent(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	c, err := env.Consents.CreateConsent(ctx, alice, consent.CreateConsentRequest{PlanID: p.ID, MaxPerPeriod: 50, TotalMax: 500})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)

	now := env.Clock.Advance(30 * day)
	out, err := env.Subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	renewed := out[0]
	assert.Equal(t, types.SubscriptionStatusActive, renewed.Status)
	assert.Equal(t, sub.ExpiresAt, renewed.PeriodStart)
	assert.Equal(t, sub.ExpiresAt.Add(30*day), renewed.ExpiresAt)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, types.InvoiceStatusPaid, invs[0].Status)
	assert.Equal(t, types.PaymentMethodConsent, invs[0].PaymentMethod)

	got, err := env.Consents.GetConsent(ctx, c.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(450), got.Remaining)

	pl, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pl.TotalRevenue)
	assert.Contains(t, env.Events.Types(), events.SubscriptionRenewed)

	res, err := env.Subscriptions.Verify(ctx, sub.APIKey)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestExpireDue_CatchesUpLapsedPeriods(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	_, err := env.Consents.CreateConsent(ctx, alice, consent.CreateConsentRequest{PlanID: p.ID, MaxPerPeriod: 50, TotalMax: 500})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)

	now := env.Clock.Advance(90 * day)
	out, err := env.Subscriptions.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, servicetest.Start.Add(120*day), out[0].ExpiresAt)
	assert.Len(t, invoicesOf(t, env, sub.ID), 3)
}

func TestExpireDue_RenewsFromStakeRewards(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 10_000, 0)
	_, err := env.Stakes.Stake(ctx, alice, 1_000*types.MotesPerCSPR)
	require.NoError(t, err)
	_, err = env.Stakes.SetSettings(ctx, alice, stake.SettingsRequest{AutoPay: true, AutoRenew: true, PlanIDs: []string{p.ID}})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
	require.NoError(t, err)
	require.True(t, sub.AutoRenew)

	out, err := env.Subscriptions.ExpireDue(ctx, env.Clock.Advance(30*day))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsActive())

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, types.PaymentMethodStake, invs[0].PaymentMethod)
	pos, err := env.Stakes.GetPosition(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), pos.TotalSubscriptionsPaid)
}

func TestExpireDue_UnpaidRenewalFails(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)

	out, err := env.Subscriptions.ExpireDue(ctx, env.Clock.Advance(30*day))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.SubscriptionStatusExpired, out[0].Status)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, types.InvoiceStatusFailed, invs[0].Status)
	assert.Contains(t, env.Events.Types(), events.InvoiceFailed)
}

func TestExpireDue_TrialRenewsAtFullPrice(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 7)
	_, err := env.Consents.CreateConsent(ctx, alice, consent.CreateConsentRequest{PlanID: p.ID, MaxPerPeriod: 50, TotalMax: 500})
	require.NoError(t, err)
	sub, err := env.Subscriptions.StartTrial(ctx, alice, p.ID)
	require.NoError(t, err)
	_, err = env.Subscriptions.SetAutoRenew(ctx, sub.ID, alice, true)
	require.NoError(t, err)

	out, err := env.Subscriptions.ExpireDue(ctx, env.Clock.Advance(7*day))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].IsTrial)
	assert.Equal(t, sub.ExpiresAt.Add(30*day), out[0].ExpiresAt)

	// the trial invoice is free; the paid period is billed when it closes
	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Zero(t, invs[0].TotalAmount)
}

func TestExpireDue_ConcurrentRunsSettleOnce(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)
	c, err := env.Consents.CreateConsent(ctx, alice, consent.CreateConsentRequest{PlanID: p.ID, MaxPerPeriod: 50, TotalMax: 500})
	require.NoError(t, err)
	sub, err := env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID, AutoRenew: lo.ToPtr(true)})
	require.NoError(t, err)
	now := env.Clock.Advance(30 * day)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Subscriptions.ExpireDue(ctx, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.Store.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)
	assert.Equal(t, sub.ExpiresAt.Add(30*day), got.ExpiresAt)

	invs := invoicesOf(t, env, sub.ID)
	require.Len(t, invs, 1)
	assert.Equal(t, types.InvoiceStatusPaid, invs[0].Status)

	charged, err := env.Consents.GetConsent(ctx, c.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(450), charged.Remaining)
	assert.Equal(t, 1, lo.Count(env.Events.Types(), events.SubscriptionRenewed))

	pl, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pl.TotalRevenue)
}

func TestSubscribe_ConcurrentKeepsOneActive(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	p := newPlan(t, env, 50, 0)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = env.Subscriptions.Subscribe(ctx, alice, subscription.SubscribeRequest{PlanID: p.ID})
		}()
	}
	wg.Wait()

	ok := lo.CountBy(results, func(err error) bool { return err == nil })
	assert.Equal(t, 1, ok)
	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, errs.ErrAlreadySubscribed)
		}
	}
	pl, err := env.Plans.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pl.SubscriberCount)
}
