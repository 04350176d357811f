package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

type Service struct {
	store   store.Store
	changes *changelog.Service
	log     *zap.SugaredLogger
	now     tool.Clock
}

func NewService(st store.Store, changes *changelog.Service, log *zap.SugaredLogger, now tool.Clock) *Service {
	return &Service{store: st, changes: changes, log: log, now: now}
}

type CreatePlanRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	BasePrice   int64               `json:"base_price" binding:"gte=0"`
	Period      types.BillingPeriod `json:"period" binding:"required"`
	// PeriodSeconds is required when Period is custom.
	PeriodSeconds int64 `json:"period_seconds" binding:"gte=0"`
	UsagePrice    int64 `json:"usage_price" binding:"gte=0"`
	TrialDays     int   `json:"trial_days" binding:"gte=0"`
}

// UpdatePlanRequest carries the fields to change; nil means unchanged.
type UpdatePlanRequest struct {
	Name          *string              `json:"name"`
	Description   *string              `json:"description"`
	BasePrice     *int64               `json:"base_price"`
	Period        *types.BillingPeriod `json:"period"`
	PeriodSeconds *int64               `json:"period_seconds"`
	UsagePrice    *int64               `json:"usage_price"`
	TrialDays     *int                 `json:"trial_days"`
	Active        *bool                `json:"active"`
}

func validate(p *models.Plan) error {
	if strings.TrimSpace(p.Name) == "" {
		return errs.Invalidf("plan name is required")
	}
	if p.BasePrice < 0 {
		return errs.Invalidf("base price must be >= 0, got %d", p.BasePrice)
	}
	if p.UsagePrice < 0 {
		return errs.Invalidf("usage price must be >= 0, got %d", p.UsagePrice)
	}
	if p.TrialDays < 0 {
		return errs.Invalidf("trial days must be >= 0, got %d", p.TrialDays)
	}
	if _, err := p.PeriodDuration(); err != nil {
		return errs.ErrInvalidArgument.Wrap(err)
	}
	return nil
}

// CreatePlan registers a plan owned by merchant.
func (s *Service) CreatePlan(ctx context.Context, merchant string, req CreatePlanRequest) (*models.Plan, error) {
	if merchant == "" {
		return nil, errs.ErrUnauthorized
	}
	now := s.now()
	p := &models.Plan{
		ID:            tool.GenerateUUIDV7(),
		Merchant:      merchant,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		BasePrice:     req.BasePrice,
		Period:        req.Period,
		PeriodSeconds: req.PeriodSeconds,
		UsagePrice:    req.UsagePrice,
		Active:        true,
		TrialDays:     req.TrialDays,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.Period != types.PeriodCustom {
		p.PeriodSeconds = 0
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.store.Plans().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("plan created", "plan_id", p.ID, "merchant", merchant, "base_price", p.BasePrice, "period", p.Period)
	s.changes.Record(ctx, models.EntityPlan, p.ID, types.ChangeReasonCreatePlan, nil, p)
	return p, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	p, err := s.store.Plans().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

func (s *Service) ListPlans(ctx context.Context, q store.PlanQuery) ([]*models.Plan, error) {
	plans, err := s.store.Plans().List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (s *Service) ownedPlan(ctx context.Context, id, caller string) (*models.Plan, error) {
	p, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return p, nil
}

// UpdatePlan edits a plan prospectively. Subscriptions keep their snapshot
// and issued invoices are never touched.
func (s *Service) UpdatePlan(ctx context.Context, id, caller string, req UpdatePlanRequest) (*models.Plan, error) {
	before, err := s.ownedPlan(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	p := *before
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.BasePrice != nil {
		p.BasePrice = *req.BasePrice
	}
	if req.Period != nil {
		p.Period = *req.Period
	}
	if req.PeriodSeconds != nil {
		p.PeriodSeconds = *req.PeriodSeconds
	}
	if req.UsagePrice != nil {
		p.UsagePrice = *req.UsagePrice
	}
	if req.TrialDays != nil {
		p.TrialDays = *req.TrialDays
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.store.Plans().Save(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	s.changes.Record(ctx, models.EntityPlan, p.ID, types.ChangeReasonUpdatePlan, before, &p)
	return &p, nil
}

// DeactivatePlan hides the plan from new subscribers. Existing
// subscriptions are left running.
func (s *Service) DeactivatePlan(ctx context.Context, id, caller string) (*models.Plan, error) {
	before, err := s.ownedPlan(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if !before.Active {
		return before, nil
	}
	p := *before
	p.Active = false
	p.UpdatedAt = s.now()
	if err := s.store.Plans().Save(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to deactivate plan: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("plan deactivated", "plan_id", id)
	s.changes.Record(ctx, models.EntityPlan, p.ID, types.ChangeReasonDeactivate, before, &p)
	return &p, nil
}

// IncrementSubscriberStats adds one subscriber and amount of revenue.
func (s *Service) IncrementSubscriberStats(ctx context.Context, id string, amount int64) error {
	return IncrementSubscriberStatsTx(ctx, s.store, id, amount)
}

// IncrementSubscriberStatsTx is IncrementSubscriberStats inside an open transaction.
func IncrementSubscriberStatsTx(ctx context.Context, tx store.Store, id string, amount int64) error {
	if amount < 0 {
		return errs.Invalidf("revenue increment must be >= 0")
	}
	if err := tx.Plans().IncrementStats(ctx, id, 1, amount); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrPlanNotFound
		}
		return fmt.Errorf("failed to increment plan stats: %w", err)
	}
	return nil
}

// AddRevenueTx books amount of revenue without counting a new subscriber,
// used when a subscription renews or converts.
func AddRevenueTx(ctx context.Context, tx store.Store, id string, amount int64) error {
	if amount < 0 {
		return errs.Invalidf("revenue increment must be >= 0")
	}
	if amount == 0 {
		return nil
	}
	if err := tx.Plans().IncrementStats(ctx, id, 0, amount); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrPlanNotFound
		}
		return fmt.Errorf("failed to add plan revenue: %w", err)
	}
	return nil
}
