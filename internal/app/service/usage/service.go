package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

// MaxBatchSize bounds BatchRecordUsage.
const MaxBatchSize = 1000

type Service struct {
	store store.Store
	log   *zap.SugaredLogger
	now   tool.Clock
}

func NewService(st store.Store, log *zap.SugaredLogger, now tool.Clock) *Service {
	return &Service{store: st, log: log, now: now}
}

type RecordRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	Metric         string `json:"metric" binding:"required"`
	Units          int64  `json:"units" binding:"gte=0"`
}

// Summary is the usage aggregated over one window.
type Summary struct {
	SubscriptionID string    `json:"subscription_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Units          int64     `json:"units"`
	UsagePrice     int64     `json:"usage_price"`
	UsageAmount    int64     `json:"usage_amount"`
}

func (s *Service) merchantPlan(ctx context.Context, planID, caller string) (*models.Plan, error) {
	p, err := s.store.Plans().Get(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if p.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return p, nil
}

// AuthorizeRecorder lets recorder meter every subscription of planID.
func (s *Service) AuthorizeRecorder(ctx context.Context, planID, merchant, recorder string) (*models.UsageRecorder, error) {
	if strings.TrimSpace(recorder) == "" {
		return nil, errs.Invalidf("recorder is required")
	}
	if _, err := s.merchantPlan(ctx, planID, merchant); err != nil {
		return nil, err
	}
	r := &models.UsageRecorder{
		ID:           tool.GenerateUUIDV7(),
		PlanID:       planID,
		Recorder:     recorder,
		AuthorizedBy: merchant,
		CreatedAt:    s.now(),
	}
	if err := s.store.Recorders().Authorize(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to authorize recorder: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("usage recorder authorized", "plan_id", planID, "recorder", recorder)
	return r, nil
}

func (s *Service) RevokeRecorder(ctx context.Context, planID, merchant, recorder string) error {
	if _, err := s.merchantPlan(ctx, planID, merchant); err != nil {
		return err
	}
	if err := s.store.Recorders().Revoke(ctx, planID, recorder); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to revoke recorder: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("usage recorder revoked", "plan_id", planID, "recorder", recorder)
	return nil
}

func (s *Service) ListRecorders(ctx context.Context, planID, merchant string) ([]*models.UsageRecorder, error) {
	if _, err := s.merchantPlan(ctx, planID, merchant); err != nil {
		return nil, err
	}
	out, err := s.store.Recorders().List(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorders: %w", err)
	}
	return out, nil
}

func validateEntry(req RecordRequest) error {
	if req.SubscriptionID == "" {
		return errs.Invalidf("subscription id is required")
	}
	if strings.TrimSpace(req.Metric) == "" {
		return errs.Invalidf("metric is required")
	}
	if req.Units < 0 {
		return errs.Invalidf("units must be >= 0, got %d", req.Units)
	}
	return nil
}

// prepare checks one entry against tx and builds its record.
func prepare(ctx context.Context, tx store.Store, recorder string, req RecordRequest, now time.Time) (*models.UsageRecord, error) {
	if err := validateEntry(req); err != nil {
		return nil, err
	}
	sub, err := tx.Subscriptions().Get(ctx, req.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	ok, err := tx.Recorders().IsAuthorized(ctx, sub.PlanID, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to check recorder: %w", err)
	}
	if !ok {
		return nil, errs.ErrRecorderNotAuthorized
	}
	if !sub.Valid(now) {
		return nil, errs.ErrSubscriptionNotActive
	}
	return &models.UsageRecord{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Metric:         strings.TrimSpace(req.Metric),
		Units:          req.Units,
		RecordedAt:     now,
		Recorder:       recorder,
	}, nil
}

// RecordUsage appends one metering event.
func (s *Service) RecordUsage(ctx context.Context, recorder string, req RecordRequest) (*models.UsageRecord, error) {
	rec, err := prepare(ctx, s.store, recorder, req, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Usage().Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Debugw("usage recorded", "subscription_id", rec.SubscriptionID, "metric", rec.Metric, "units", rec.Units)
	return rec, nil
}

// BatchRecordUsage appends every entry or none of them.
func (s *Service) BatchRecordUsage(ctx context.Context, recorder string, reqs []RecordRequest) ([]*models.UsageRecord, error) {
	if len(reqs) == 0 {
		return nil, errs.Invalidf("batch is empty")
	}
	if len(reqs) > MaxBatchSize {
		return nil, errs.Invalidf("batch of %d exceeds the maximum of %d", len(reqs), MaxBatchSize)
	}
	for i, req := range reqs {
		if err := validateEntry(req); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	var out []*models.UsageRecord
	now := s.now()
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		out = make([]*models.UsageRecord, 0, len(reqs))
		for i, req := range reqs {
			rec, err := prepare(ctx, tx, recorder, req, now)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, rec)
		}
		return tx.Usage().Append(ctx, out...)
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("usage batch recorded", "entries", len(out), "units", lo.SumBy(out, func(r *models.UsageRecord) int64 { return r.Units }))
	return out, nil
}

// PeriodUnits sums the units of subscriptionID recorded in [from, to) within tx.
func PeriodUnits(ctx context.Context, tx store.Store, subscriptionID string, from, to time.Time) (int64, error) {
	if !to.After(from) {
		return 0, nil
	}
	units, err := tx.Usage().Sum(ctx, subscriptionID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return units, nil
}

func (s *Service) GetPeriodUsage(ctx context.Context, subscriptionID string, from, to time.Time) (int64, error) {
	if to.Before(from) {
		return 0, errs.Invalidf("period end precedes start")
	}
	return PeriodUnits(ctx, s.store, subscriptionID, from, to)
}

// GetCurrentUsage reports the usage of the open billing period.
func (s *Service) GetCurrentUsage(ctx context.Context, subscriptionID string) (*Summary, error) {
	sub, err := s.store.Subscriptions().Get(ctx, subscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	units, err := PeriodUnits(ctx, s.store, sub.ID, sub.PeriodStart, sub.ExpiresAt)
	if err != nil {
		return nil, err
	}
	amount, err := types.MulMotes(units, sub.UsagePrice)
	if err != nil {
		return nil, err
	}
	return &Summary{
		SubscriptionID: sub.ID,
		PeriodStart:    sub.PeriodStart,
		PeriodEnd:      sub.ExpiresAt,
		Units:          units,
		UsagePrice:     sub.UsagePrice,
		UsageAmount:    amount,
	}, nil
}

func (s *Service) ListUsage(ctx context.Context, subscriptionID string, from, to time.Time) ([]*models.UsageRecord, error) {
	out, err := s.store.Usage().List(ctx, subscriptionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return out, nil
}
