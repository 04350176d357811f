package changelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store/memstore"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/types"
)

func TestRecord_PersistsSnapshots(t *testing.T) {
	st := memstore.New()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := New(st, zap.NewNop().Sugar(), func() time.Time { return at })

	ctx := logctx.WithTraceID(logctx.WithCaller(context.Background(), "01alice"), "trace-9")
	before := &models.PaymentConsent{ID: "c1", Status: types.ConsentStatusActive}
	after := before.Clone()
	after.Status = types.ConsentStatusRevoked

	s.Record(ctx, models.EntityConsent, "c1", types.ChangeReasonRevoke, before, after)
	// later mutation must not leak into the stored snapshot
	after.Status = types.ConsentStatusExhausted
	s.Wait()

	logs, err := s.List(context.Background(), models.EntityConsent, "c1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "01alice", logs[0].Actor)
	assert.Equal(t, types.ChangeReasonRevoke, logs[0].Reason)
	assert.Contains(t, string(logs[0].After), `"status":"revoked"`)
	assert.Contains(t, string(logs[0].Before), `"status":"active"`)
	assert.Equal(t, "trace-9", logs[0].Extra["trace_id"])
	assert.Equal(t, at, logs[0].CreatedAt)
}

func TestRecord_NilBefore(t *testing.T) {
	st := memstore.New()
	s := New(st, zap.NewNop().Sugar(), time.Now)
	s.Record(context.Background(), models.EntityPlan, "p1", types.ChangeReasonCreatePlan, nil, &models.Plan{ID: "p1"})
	s.Wait()

	logs, err := s.List(context.Background(), models.EntityPlan, "p1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "null", string(logs[0].Before))
}
