package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/metrics"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

const retryAttempts = 5

type Service struct {
	store     store.Store
	changes   *changelog.Service
	publisher events.Publisher
	metrics   *metrics.Business
	log       *zap.SugaredLogger
	now       tool.Clock
}

func NewService(st store.Store, changes *changelog.Service, publisher events.Publisher, m *metrics.Business, log *zap.SugaredLogger, now tool.Clock) *Service {
	return &Service{store: st, changes: changes, publisher: publisher, metrics: m, log: log, now: now}
}

type CreateConsentRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	// Merchant is optional; when set it must own the plan.
	Merchant     string `json:"merchant"`
	MaxPerPeriod int64  `json:"max_per_period" binding:"required,gt=0"`
	TotalMax     int64  `json:"total_max" binding:"required,gt=0"`
	// ValidForDays bounds the consent lifetime; zero never expires.
	ValidForDays int `json:"valid_for_days" binding:"gte=0"`
}

// CreateConsent grants the plan's merchant a bounded allowance.
func (s *Service) CreateConsent(ctx context.Context, subscriber string, req CreateConsentRequest) (*models.PaymentConsent, error) {
	if subscriber == "" {
		return nil, errs.ErrUnauthorized
	}
	if req.MaxPerPeriod <= 0 {
		return nil, errs.Invalidf("max per period must be > 0, got %d", req.MaxPerPeriod)
	}
	if req.TotalMax < req.MaxPerPeriod {
		return nil, errs.Invalidf("total max %d must be >= max per period %d", req.TotalMax, req.MaxPerPeriod)
	}
	if req.ValidForDays < 0 {
		return nil, errs.Invalidf("valid for days must be >= 0")
	}
	p, err := s.store.Plans().Get(ctx, req.PlanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if req.Merchant != "" && req.Merchant != p.Merchant {
		return nil, errs.Invalidf("plan %s is not owned by merchant %s", p.ID, req.Merchant)
	}

	now := s.now()
	c := &models.PaymentConsent{
		ID:           tool.GenerateUUIDV7(),
		Subscriber:   subscriber,
		Merchant:     p.Merchant,
		PlanID:       p.ID,
		MaxPerPeriod: req.MaxPerPeriod,
		TotalMax:     req.TotalMax,
		Remaining:    req.TotalMax,
		Status:       types.ConsentStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ValidForDays > 0 {
		exp := now.Add(time.Duration(req.ValidForDays) * 24 * time.Hour)
		c.ExpiresAt = &exp
	}
	if err := s.store.Consents().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create consent: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("consent created", "consent_id", c.ID, "plan_id", c.PlanID, "max_per_period", c.MaxPerPeriod, "total_max", c.TotalMax)
	s.changes.Record(ctx, models.EntityConsent, c.ID, types.ChangeReasonConsent, nil, c)
	return c, nil
}

// ChargeTx debits consentID inside tx. The stored row is only touched when
// every precondition holds.
func ChargeTx(ctx context.Context, tx store.Store, consentID string, amount int64, now time.Time) (before, after *models.PaymentConsent, err error) {
	if amount <= 0 {
		return nil, nil, errs.Invalidf("charge amount must be > 0, got %d", amount)
	}
	before, err = tx.Consents().Get(ctx, consentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, errs.ErrConsentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get consent: %w", err)
	}
	if err := checkCharge(before, amount, now); err != nil {
		return nil, nil, err
	}
	after, err = tx.Consents().Debit(ctx, consentID, amount, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit consent: %w", err)
	}
	return before, after, nil
}

func checkCharge(c *models.PaymentConsent, amount int64, now time.Time) error {
	switch {
	case c.Status != types.ConsentStatusActive:
		return errs.ErrConsentRevoked.Withf("payment consent is %s", c.Status)
	case c.Expired(now):
		return errs.ErrConsentExpired
	case amount > c.MaxPerPeriod:
		return errs.ErrInsufficientAllowance.Withf("charge exceeds the per-period maximum").WithAmounts(c.MaxPerPeriod, amount)
	case amount > c.Remaining:
		return errs.ErrInsufficientAllowance.WithAmounts(c.Remaining, amount)
	}
	return nil
}

// Charge debits amount on behalf of the consent's merchant.
func (s *Service) Charge(ctx context.Context, consentID, caller string, amount int64) (*models.PaymentConsent, error) {
	var before, after *models.PaymentConsent
	err := store.Retry(ctx, retryAttempts, func() error {
		return s.store.Transaction(ctx, func(tx store.Store) error {
			c, err := tx.Consents().Get(ctx, consentID)
			if errors.Is(err, store.ErrNotFound) {
				return errs.ErrConsentNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to get consent: %w", err)
			}
			if c.Merchant != caller {
				return errs.ErrUnauthorized
			}
			before, after, err = ChargeTx(ctx, tx, consentID, amount, s.now())
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("consent charged", "consent_id", consentID, "amount", amount, "remaining", after.Remaining, "status", after.Status)
	s.metrics.Charged(string(types.PaymentMethodConsent), amount)
	s.changes.Record(ctx, models.EntityConsent, consentID, types.ChangeReasonCharge, before, after)
	return after, nil
}

// Revoke blocks every further charge. Revoking twice is a no-op.
func (s *Service) Revoke(ctx context.Context, consentID, caller string) (*models.PaymentConsent, error) {
	before, err := s.getConsent(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if before.Subscriber != caller {
		return nil, errs.ErrUnauthorized
	}
	changed, err := s.store.Consents().Revoke(ctx, consentID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke consent: %w", err)
	}
	after, err := s.getConsent(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return after, nil
	}
	logctx.FromCtx(ctx, s.log).Infow("consent revoked", "consent_id", consentID, "remaining", after.Remaining)
	s.changes.Record(ctx, models.EntityConsent, consentID, types.ChangeReasonRevoke, before, after)
	events.Emit(ctx, s.publisher, s.log, events.Event{
		Type: events.ConsentRevoked, Key: consentID, At: s.now(), Payload: after,
	})
	return after, nil
}

func (s *Service) getConsent(ctx context.Context, id string) (*models.PaymentConsent, error) {
	c, err := s.store.Consents().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

// GetConsent is visible to the granting subscriber and the merchant.
func (s *Service) GetConsent(ctx context.Context, id, caller string) (*models.PaymentConsent, error) {
	c, err := s.getConsent(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Subscriber != caller && c.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return c, nil
}

func (s *Service) ListConsents(ctx context.Context, q store.ConsentQuery) ([]*models.PaymentConsent, error) {
	out, err := s.store.Consents().List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	return out, nil
}

// FindCoveringTx returns an active consent of subscriber for planID that
// accepts a charge of amount at now. With no usable consent it fails with
// ConsentNotFound; when consents exist but none is large enough it fails
// with InsufficientAllowance carrying the best available allowance.
func FindCoveringTx(ctx context.Context, tx store.Store, subscriber, planID string, amount int64, now time.Time) (*models.PaymentConsent, error) {
	list, err := tx.Consents().List(ctx, store.ConsentQuery{
		Subscriber: subscriber,
		PlanID:     planID,
		Status:     types.ConsentStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	usable := lo.Filter(list, func(c *models.PaymentConsent, _ int) bool { return !c.Expired(now) })
	if len(usable) == 0 {
		return nil, errs.ErrConsentNotFound
	}
	if c, ok := lo.Find(usable, func(c *models.PaymentConsent) bool { return c.Covers(amount, now) }); ok {
		return c, nil
	}
	best := lo.Max(lo.Map(usable, func(c *models.PaymentConsent, _ int) int64 { return min(c.MaxPerPeriod, c.Remaining) }))
	return nil, errs.ErrInsufficientAllowance.WithAmounts(best, amount)
}
