package changelog

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

// Service writes before/after audit rows in the background. Failures are
// logged and never reach the caller.
type Service struct {
	store store.Store
	log   *zap.SugaredLogger
	now   tool.Clock
	wg    sync.WaitGroup
}

func New(st store.Store, log *zap.SugaredLogger, now tool.Clock) *Service {
	return &Service{store: st, log: log, now: now}
}

func snapshot(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

// Record snapshots before and after immediately and persists them
// asynchronously. Call it after the change has committed.
func (s *Service) Record(ctx context.Context, entityType, entityID string, reason types.ChangeReason, before, after any) {
	entry := &models.ChangeLog{
		ID:         tool.GenerateUUIDV7(),
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      logctx.Caller(ctx),
		Reason:     reason,
		Before:     snapshot(before),
		After:      snapshot(after),
		Extra:      datatypes.JSONMap{},
		CreatedAt:  s.now(),
	}
	if tid := logctx.TraceID(ctx); tid != "" {
		entry.Extra["trace_id"] = tid
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.ChangeLogs().Create(context.WithoutCancel(ctx), entry); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save change log: entity=%s id=%s reason=%s err=%v", entityType, entityID, reason, err)
		}
	}()
}

// Wait blocks until every pending write has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) List(ctx context.Context, entityType, entityID string) ([]*models.ChangeLog, error) {
	return s.store.ChangeLogs().List(ctx, entityType, entityID)
}
