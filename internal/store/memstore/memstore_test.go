package memstore

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newSub(id, plan, subscriber string) *models.Subscription {
	return &models.Subscription{
		ID: id, PlanID: plan, Subscriber: subscriber, Merchant: "m",
		Price: 100, Period: types.PeriodMonthly,
		SubscribedAt: t0, PeriodStart: t0, ExpiresAt: t0.Add(30 * 24 * time.Hour),
		Status: types.SubscriptionStatusActive, APIKey: "cf_sk_" + id,
	}
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Plans().Create(ctx, &models.Plan{ID: "p1", Merchant: "m", BasePrice: 10}))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx store.Store) error {
		require.NoError(t, tx.Plans().IncrementStats(ctx, "p1", 1, 10))
		require.NoError(t, tx.Subscriptions().Create(ctx, newSub("s1", "p1", "alice")))
		require.NoError(t, tx.ChangeLogs().Create(ctx, &models.ChangeLog{ID: "l1", EntityType: models.EntityPlan, EntityID: "p1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Plans().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, p.SubscriberCount)
	assert.Zero(t, p.TotalRevenue)

	_, err = s.Subscriptions().Get(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	logs, err := s.ChangeLogs().List(ctx, models.EntityPlan, "p1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.Panics(t, func() {
		_ = s.Transaction(ctx, func(tx store.Store) error {
			_ = tx.Plans().Create(ctx, &models.Plan{ID: "p1"})
			panic("boom")
		})
	})
	_, err := s.Plans().Get(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the mutex was released
	require.NoError(t, s.Plans().Create(ctx, &models.Plan{ID: "p2"}))
}

func TestSubscriptions_OneActivePerPair(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Subscriptions().Create(ctx, newSub("s1", "p1", "alice")))
	assert.ErrorIs(t, s.Subscriptions().Create(ctx, newSub("s2", "p1", "alice")), store.ErrDuplicate)
	require.NoError(t, s.Subscriptions().Create(ctx, newSub("s3", "p1", "bob")))

	prev, err := s.Subscriptions().Get(ctx, "s1")
	require.NoError(t, err)
	next := prev.Clone()
	next.Status = types.SubscriptionStatusCancelled
	require.NoError(t, s.Subscriptions().CompareAndSwap(ctx, prev, next))

	// a stale snapshot loses
	assert.ErrorIs(t, s.Subscriptions().CompareAndSwap(ctx, prev, next), store.ErrConflict)

	require.NoError(t, s.Subscriptions().Create(ctx, newSub("s4", "p1", "alice")))
}

func TestSubscriptions_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Subscriptions().Create(ctx, newSub("s1", "p1", "alice")))
	got, err := s.Subscriptions().Get(ctx, "s1")
	require.NoError(t, err)
	got.Status = types.SubscriptionStatusExpired

	again, err := s.Subscriptions().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, again.Status)
}

func TestSubscriptions_ListDue(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newSub("a", "p1", "alice")
	a.ExpiresAt = t0.Add(2 * time.Hour)
	b := newSub("b", "p1", "bob")
	b.ExpiresAt = t0.Add(time.Hour)
	c := newSub("c", "p1", "carol")
	c.ExpiresAt = t0.Add(5 * time.Hour)
	for _, sub := range []*models.Subscription{a, b, c} {
		require.NoError(t, s.Subscriptions().Create(ctx, sub))
	}

	due, err := s.Subscriptions().ListDue(ctx, t0.Add(2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].ID)
	assert.Equal(t, "a", due[1].ID)

	due, err = s.Subscriptions().ListDue(ctx, t0.Add(10*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestUsage_SumWindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Usage().Append(ctx,
		&models.UsageRecord{ID: "1", SubscriptionID: "s1", Units: 5, RecordedAt: t0},
		&models.UsageRecord{ID: "2", SubscriptionID: "s1", Units: 7, RecordedAt: t0.Add(time.Hour)},
		&models.UsageRecord{ID: "3", SubscriptionID: "s1", Units: 11, RecordedAt: t0.Add(2 * time.Hour)},
	))
	sum, err := s.Usage().Sum(ctx, "s1", t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum)
}

func TestUsage_SumOverflowFails(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Usage().Append(ctx,
		&models.UsageRecord{ID: "1", SubscriptionID: "s1", Units: math.MaxInt64, RecordedAt: t0},
		&models.UsageRecord{ID: "2", SubscriptionID: "s1", Units: 1, RecordedAt: t0.Add(time.Minute)},
	))
	_, err := s.Usage().Sum(ctx, "s1", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
}

func TestInvoices_UniquePeriodAndStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := &models.Invoice{ID: "i1", SubscriptionID: "s1", PeriodStart: t0, Status: types.InvoiceStatusPending}
	require.NoError(t, s.Invoices().Create(ctx, inv))
	assert.ErrorIs(t, s.Invoices().Create(ctx, &models.Invoice{ID: "i2", SubscriptionID: "s1", PeriodStart: t0}), store.ErrDuplicate)

	paid := inv.Clone()
	paid.Status = types.InvoiceStatusPaid
	require.NoError(t, s.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, paid))
	assert.ErrorIs(t, s.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, paid), store.ErrConflict)
}

func TestInvoices_SwapPaymentTxOnlyFromExpected(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Invoices().Create(ctx, &models.Invoice{ID: "i1", SubscriptionID: "s1", PeriodStart: t0, Status: types.InvoiceStatusPending}))

	later := t0.Add(time.Minute)
	require.NoError(t, s.Invoices().SwapPaymentTx(ctx, "i1", "", "claim", later))
	assert.ErrorIs(t, s.Invoices().SwapPaymentTx(ctx, "i1", "", "other", later), store.ErrConflict)
	require.NoError(t, s.Invoices().SwapPaymentTx(ctx, "i1", "claim", "deploy-1", later))

	got, err := s.Invoices().Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "deploy-1", got.PaymentTx)
	assert.Equal(t, later, got.UpdatedAt)

	paid := got.Clone()
	paid.Status = types.InvoiceStatusPaid
	require.NoError(t, s.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, paid))
	assert.ErrorIs(t, s.Invoices().SwapPaymentTx(ctx, "i1", "deploy-1", "", later), store.ErrConflict)
	assert.ErrorIs(t, s.Invoices().SwapPaymentTx(ctx, "nope", "", "x", later), store.ErrNotFound)
}

func TestInvoices_ListFiltersSortsAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, total := range []int64{300, 100, 200, 50} {
		require.NoError(t, s.Invoices().Create(ctx, &models.Invoice{
			ID: string(rune('a' + i)), SubscriptionID: string(rune('a' + i)), Merchant: "m",
			TotalAmount: total, PeriodStart: t0, Status: types.InvoiceStatusPending,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	items, total, err := s.Invoices().List(ctx, store.InvoiceQuery{
		Merchant: "m",
		Filters: types.Filters{{
			Field: "total_amount", Operator: types.CommonFilterOperatorGte, Values: []any{100},
		}},
		SortBy: "total_amount", SortDesc: true, Size: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.Equal(t, int64(300), items[0].TotalAmount)
	assert.Equal(t, int64(200), items[1].TotalAmount)

	items, _, err = s.Invoices().List(ctx, store.InvoiceQuery{Merchant: "m", From: 3})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "d", items[0].ID)
}

func TestConsents_DebitAndRevoke(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := &models.PaymentConsent{ID: "c1", MaxPerPeriod: 60, TotalMax: 100, Remaining: 100, Status: types.ConsentStatusActive}
	require.NoError(t, s.Consents().Create(ctx, c))

	_, err := s.Consents().Debit(ctx, "c1", 70, t0)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Consents().Debit(ctx, "c1", 60, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.Remaining)

	got, err = s.Consents().Debit(ctx, "c1", 40, t0)
	require.NoError(t, err)
	assert.Equal(t, types.ConsentStatusExhausted, got.Status)

	changed, err := s.Consents().Revoke(ctx, "c1", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.Consents().Revoke(ctx, "c1", t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStakes_VersionGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Stakes().Create(ctx, &models.StakePosition{Subscriber: "alice", Principal: 100}))

	a, err := s.Stakes().Get(ctx, "alice")
	require.NoError(t, err)
	b, err := s.Stakes().Get(ctx, "alice")
	require.NoError(t, err)

	a.Principal = 200
	require.NoError(t, s.Stakes().Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Principal = 300
	assert.ErrorIs(t, s.Stakes().Update(ctx, b), store.ErrConflict)
	assert.ErrorIs(t, s.Stakes().Delete(ctx, "alice", 1), store.ErrConflict)
	require.NoError(t, s.Stakes().Delete(ctx, "alice", 2))

	totals, err := s.Stakes().Totals(ctx)
	require.NoError(t, err)
	assert.Zero(t, totals.Positions)
}

func TestRetry_StopsOnNonConflict(t *testing.T) {
	calls := 0
	err := store.Retry(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return store.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = store.Retry(context.Background(), 2, func() error {
		calls++
		return store.ErrConflict
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 2, calls)
}
