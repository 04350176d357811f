package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store/memstore"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	merchant = "01merchant"
	meter    = "backend-meter"
)

type fixture struct {
	svc *Service
	st  *memstore.Store
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{st: memstore.New(), now: t0.Add(time.Hour)}
	f.svc = NewService(f.st, zap.NewNop().Sugar(), func() time.Time { return f.now })

	ctx := context.Background()
	require.NoError(t, f.st.Plans().Create(ctx, &models.Plan{ID: "p1", Merchant: merchant, Name: "API", UsagePrice: 1, Period: types.PeriodMonthly, Active: true}))
	for _, sub := range []*models.Subscription{
		{ID: "s1", PlanID: "p1", Subscriber: "01alice", Merchant: merchant, UsagePrice: 1, Period: types.PeriodMonthly,
			PeriodStart: t0, ExpiresAt: t0.Add(30 * 24 * time.Hour), Status: types.SubscriptionStatusActive, APIKey: "cf_sk_1"},
		{ID: "s2", PlanID: "p1", Subscriber: "01bob", Merchant: merchant, UsagePrice: 1, Period: types.PeriodMonthly,
			PeriodStart: t0, ExpiresAt: t0.Add(30 * 24 * time.Hour), Status: types.SubscriptionStatusCancelled, APIKey: "cf_sk_2"},
	} {
		require.NoError(t, f.st.Subscriptions().Create(ctx, sub))
	}
	_, err := f.svc.AuthorizeRecorder(ctx, "p1", merchant, meter)
	require.NoError(t, err)
	return f
}

func TestRecordUsage_AggregatesPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordUsage(ctx, meter, RecordRequest{SubscriptionID: "s1", Metric: "api_calls", Units: 150})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.RecordUsage(ctx, meter, RecordRequest{SubscriptionID: "s1", Metric: "api_calls", Units: 230})
	require.NoError(t, err)

	sub, err := f.st.Subscriptions().Get(ctx, "s1")
	require.NoError(t, err)
	units, err := f.svc.GetPeriodUsage(ctx, "s1", sub.PeriodStart, sub.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, int64(380), units)

	cur, err := f.svc.GetCurrentUsage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(380), cur.Units)
	assert.Equal(t, int64(380), cur.UsageAmount)

	// the window end is exclusive
	units, err = f.svc.GetPeriodUsage(ctx, "s1", sub.PeriodStart, f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(150), units)
}

func TestRecordUsage_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		recorder string
		req      RecordRequest
		wantErr  error
	}{
		{name: "negative units", recorder: meter, req: RecordRequest{SubscriptionID: "s1", Metric: "m", Units: -1}, wantErr: errs.ErrInvalidArgument},
		{name: "missing metric", recorder: meter, req: RecordRequest{SubscriptionID: "s1", Units: 1}, wantErr: errs.ErrInvalidArgument},
		{name: "unknown subscription", recorder: meter, req: RecordRequest{SubscriptionID: "nope", Metric: "m", Units: 1}, wantErr: errs.ErrSubscriptionNotFound},
		{name: "subscriber records own usage", recorder: "01alice", req: RecordRequest{SubscriptionID: "s1", Metric: "m", Units: 1}, wantErr: errs.ErrRecorderNotAuthorized},
		{name: "cancelled subscription", recorder: meter, req: RecordRequest{SubscriptionID: "s2", Metric: "m", Units: 1}, wantErr: errs.ErrSubscriptionNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordUsage(ctx, tt.recorder, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.svc.RecordUsage(ctx, meter, RecordRequest{SubscriptionID: "s1", Metric: "m", Units: 0})
	require.NoError(t, err)
}

func TestRecordUsage_ExpiredByTime(t *testing.T) {
	f := newFixture(t)
	f.now = f.now.Add(31 * 24 * time.Hour)
	_, err := f.svc.RecordUsage(context.Background(), meter, RecordRequest{SubscriptionID: "s1", Metric: "m", Units: 1})
	require.ErrorIs(t, err, errs.ErrSubscriptionNotActive)
}

func TestBatchRecordUsage_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BatchRecordUsage(ctx, meter, []RecordRequest{
		{SubscriptionID: "s1", Metric: "m", Units: 10},
		{SubscriptionID: "s2", Metric: "m", Units: 10},
	})
	require.ErrorIs(t, err, errs.ErrSubscriptionNotActive)
	assert.Contains(t, err.Error(), "entry 1")

	_, err = f.svc.BatchRecordUsage(ctx, meter, []RecordRequest{
		{SubscriptionID: "s1", Metric: "m", Units: 10},
		{SubscriptionID: "s1", Metric: "m", Units: -3},
	})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = f.svc.BatchRecordUsage(ctx, meter, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	cur, err := f.svc.GetCurrentUsage(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, cur.Units)

	recs, err := f.svc.BatchRecordUsage(ctx, meter, []RecordRequest{
		{SubscriptionID: "s1", Metric: "m", Units: 10},
		{SubscriptionID: "s1", Metric: "n", Units: 5},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	cur, err = f.svc.GetCurrentUsage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), cur.Units)
}

func TestRecorderManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AuthorizeRecorder(ctx, "p1", "01intruder", "x")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = f.svc.AuthorizeRecorder(ctx, "missing", merchant, "x")
	require.ErrorIs(t, err, errs.ErrPlanNotFound)

	// authorizing twice is harmless
	_, err = f.svc.AuthorizeRecorder(ctx, "p1", merchant, meter)
	require.NoError(t, err)
	list, err := f.svc.ListRecorders(ctx, "p1", merchant)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.RevokeRecorder(ctx, "p1", merchant, meter))
	_, err = f.svc.RecordUsage(ctx, meter, RecordRequest{SubscriptionID: "s1", Metric: "m", Units: 1})
	require.ErrorIs(t, err, errs.ErrRecorderNotAuthorized)
}
