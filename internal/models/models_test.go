package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const cspr = types.MotesPerCSPR

func TestStakePosition_PendingRewards(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := &StakePosition{Principal: 1000 * cspr, StakedAt: t0, LastRewardClaim: t0}

	tests := []struct {
		name    string
		elapsed time.Duration
		carried int64
		want    int64
	}{
		{name: "no time elapsed", elapsed: 0, want: 0},
		{name: "clock skew backwards", elapsed: -time.Hour, want: 0},
		// 1000 CSPR * 8% * 30/365 = 6.575342465 CSPR
		{name: "thirty days", elapsed: 30 * 24 * time.Hour, want: 6_575_342_465},
		{name: "one year", elapsed: 365 * 24 * time.Hour, want: 80 * cspr},
		{name: "carried rewards are kept", elapsed: 0, carried: 42, want: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *pos
			p.CarriedRewards = tt.carried
			assert.Equal(t, tt.want, p.PendingRewards(800, t0.Add(tt.elapsed)))
		})
	}
}

func TestStakePosition_PendingRewardsLargePrincipal(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// one billion CSPR held for ten years at the 20% cap must not overflow
	pos := &StakePosition{Principal: 1_000_000_000 * cspr, LastRewardClaim: t0}
	got := pos.PendingRewards(2000, t0.Add(10*365*24*time.Hour))
	assert.Equal(t, int64(2*1_000_000_000*cspr), got)
}

func TestNewInvoice_AmountsFromSnapshot(t *testing.T) {
	now := time.Now()
	sub := &Subscription{ID: "s1", PlanID: "p1", Subscriber: "alice", Merchant: "bob", Price: 50, UsagePrice: 1}

	inv, err := NewInvoice("i1", sub, 380, now.Add(-time.Hour), now, now)
	require.NoError(t, err)
	assert.Equal(t, int64(50), inv.BaseAmount)
	assert.Equal(t, int64(380), inv.UsageAmount)
	assert.Equal(t, inv.BaseAmount+inv.UsageAmount, inv.TotalAmount)
	assert.Equal(t, types.InvoiceStatusPending, inv.Status)

	sub.IsTrial = true
	trial, err := NewInvoice("i2", sub, 3, now.Add(-time.Hour), now, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), trial.BaseAmount)
	assert.Equal(t, int64(3), trial.TotalAmount)
}

func TestNewInvoice_RejectsOverflow(t *testing.T) {
	now := time.Now()
	sub := &Subscription{ID: "s1", Price: 50, UsagePrice: 10}

	_, err := NewInvoice("i1", sub, 1<<62, now.Add(-time.Hour), now, now)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)

	sub.UsagePrice = 1
	_, err = NewInvoice("i2", sub, math.MaxInt64-10, now.Add(-time.Hour), now, now)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
}

func TestInvoice_MarkPaid(t *testing.T) {
	now := time.Now()
	inv := &Invoice{TotalAmount: 10_000, Status: types.InvoiceStatusPending}
	inv.MarkPaid(types.PaymentMethodConsent, "c1", 100, now)
	assert.Equal(t, types.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(100), inv.ProtocolFee)
	assert.Equal(t, int64(9_900), inv.MerchantAmount())
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, "c1", inv.PaymentTx)
}

func TestPaymentConsent_Covers(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	c := &PaymentConsent{MaxPerPeriod: 100, TotalMax: 1200, Remaining: 150, Status: types.ConsentStatusActive}

	assert.True(t, c.Covers(100, now))
	assert.False(t, c.Covers(101, now), "above per-period cap")

	c.Remaining = 50
	assert.False(t, c.Covers(60, now), "above remaining")

	c.Remaining = 150
	c.ExpiresAt = &past
	assert.False(t, c.Covers(10, now), "expired")

	c.ExpiresAt = nil
	c.Status = types.ConsentStatusRevoked
	assert.False(t, c.Covers(10, now), "revoked")
}

func TestEntities_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	paid := now.Add(time.Hour)
	entities := []any{
		&Plan{ID: "p", Merchant: "m", Name: "Pro", BasePrice: 50, Period: types.PeriodMonthly, TrialDays: 7, Active: true, CreatedAt: now},
		&Subscription{ID: "s", PlanID: "p", Price: 50, Period: types.PeriodMonthly, Status: types.SubscriptionStatusActive, ExpiresAt: now, APIKey: "cf_sk_x"},
		&Invoice{ID: "i", TotalAmount: 5, Status: types.InvoiceStatusPaid, PaidAt: &paid},
		&PaymentConsent{ID: "c", MaxPerPeriod: 1, TotalMax: 2, Remaining: 2, Status: types.ConsentStatusActive},
		&StakePosition{Subscriber: "a", Principal: 7, AuthorizedPlans: []string{"p"}, LastRewardClaim: now},
	}
	for _, e := range entities {
		raw, err := json.Marshal(e)
		require.NoError(t, err)
		out := newOfSameType(e)
		require.NoError(t, json.Unmarshal(raw, out))
		assert.Equal(t, e, out)
	}
}

func newOfSameType(v any) any {
	switch v.(type) {
	case *Plan:
		return &Plan{}
	case *Subscription:
		return &Subscription{}
	case *Invoice:
		return &Invoice{}
	case *PaymentConsent:
		return &PaymentConsent{}
	case *StakePosition:
		return &StakePosition{}
	}
	return nil
}
