package statistics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/servicetest"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const merchant = "01merchant"

func TestGetMerchantStats(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()

	monthly, err := env.Plans.CreatePlan(ctx, merchant, plan.CreatePlanRequest{Name: "Monthly", BasePrice: 10_000, Period: types.PeriodMonthly, TrialDays: 7})
	require.NoError(t, err)
	weekly, err := env.Plans.CreatePlan(ctx, merchant, plan.CreatePlanRequest{Name: "Weekly", BasePrice: 7_000, Period: types.PeriodWeekly})
	require.NoError(t, err)

	_, err = env.Subscriptions.Subscribe(ctx, "01alice", subscription.SubscribeRequest{PlanID: monthly.ID})
	require.NoError(t, err)
	_, err = env.Subscriptions.StartTrial(ctx, "01bob", monthly.ID)
	require.NoError(t, err)
	dave, err := env.Subscriptions.StartTrial(ctx, "01dave", monthly.ID)
	require.NoError(t, err)
	carol, err := env.Subscriptions.Subscribe(ctx, "01carol", subscription.SubscribeRequest{PlanID: weekly.ID})
	require.NoError(t, err)
	_, err = env.Subscriptions.Subscribe(ctx, "01erin", subscription.SubscribeRequest{PlanID: weekly.ID})
	require.NoError(t, err)

	now := env.Clock.Advance(24 * time.Hour)
	_, err = env.Subscriptions.ConvertTrial(ctx, dave.ID, "01dave")
	require.NoError(t, err)
	_, err = env.Subscriptions.Cancel(ctx, carol.ID, "01carol")
	require.NoError(t, err)
	invs, err := env.Billing.ListInvoices(ctx, "01carol", &billing.SearchInvoicesRequest{})
	require.NoError(t, err)
	require.Len(t, invs.Items, 1)
	_, err = env.Billing.PayInvoice(ctx, invs.Items[0].ID, "01carol", types.PaymentMethodWallet)
	require.NoError(t, err)

	stats, err := env.Statistics.GetMerchantStats(ctx, merchant, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, now, stats.GeneratedAt)
	assert.Equal(t, 5, stats.TotalSubscribers)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 1, stats.Trial)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Zero(t, stats.Expired)
	assert.Equal(t, 50.0, stats.ConversionRate)
	assert.Equal(t, 20.0, stats.ChurnRate)
	// two monthly at 10000 plus one weekly at 7000 scaled to 30 days
	assert.Equal(t, int64(50_000), stats.MRR)

	assert.Equal(t, int64(6_930), stats.TotalRevenue)
	assert.Equal(t, int64(70), stats.ProtocolFees)
	assert.Equal(t, "0.00000693", stats.TotalRevenueCSPR)

	require.Len(t, stats.RevenueHistory, 30)
	assert.Equal(t, "2024-12-04", stats.RevenueHistory[0].Date)
	last := stats.RevenueHistory[29]
	assert.Equal(t, "2025-01-02", last.Date)
	assert.Equal(t, int64(6_930), last.Amount)

	require.Len(t, stats.Plans, 2)
	assert.Equal(t, weekly.ID, stats.Plans[0].PlanID)
	assert.Equal(t, "Weekly", stats.Plans[0].PlanName)
	assert.Equal(t, 2, stats.Plans[0].Subscribers)
	assert.Equal(t, 1, stats.Plans[0].Active)
	assert.Equal(t, int64(6_930), stats.Plans[0].Revenue)
	assert.Equal(t, monthly.ID, stats.Plans[1].PlanID)
	assert.Equal(t, 3, stats.Plans[1].Subscribers)
	assert.Zero(t, stats.Plans[1].Revenue)
}

func TestGetMerchantStats_Empty(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()

	stats, err := env.Statistics.GetMerchantStats(ctx, "01nobody", servicetest.Start)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSubscribers)
	assert.Zero(t, stats.ConversionRate)
	assert.Zero(t, stats.ChurnRate)
	assert.Empty(t, stats.Plans)
	require.Len(t, stats.RevenueHistory, 30)
	assert.Equal(t, "2025-01-01", stats.RevenueHistory[29].Date)

	_, err = env.Statistics.GetMerchantStats(ctx, "", servicetest.Start)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}
