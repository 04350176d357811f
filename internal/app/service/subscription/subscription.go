package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/aftercommit"
	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/cache"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/config"
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
	cache     cache.Cache
	billing   *billing.Service
	stakes    *stake.Service
	log       *zap.SugaredLogger
	now       tool.Clock

	network   string
	cacheTTL  time.Duration
	batchSize int
}

func NewService(
	cfg *config.Config,
	log *zap.SugaredLogger,
	st store.Store,
	changes *changelog.Service,
	publisher events.Publisher,
	m *metrics.Business,
	c cache.Cache,
	bill *billing.Service,
	stakes *stake.Service,
	now tool.Clock,
) *Service {
	ttl := cfg.Redis.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	batch := cfg.Renewal.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Service{
		store:     st,
		changes:   changes,
		publisher: publisher,
		metrics:   m,
		cache:     c,
		billing:   bill,
		stakes:    stakes,
		log:       log,
		now:       now,
		network:   cfg.Casper.Network,
		cacheTTL:  ttl,
		batchSize: batch,
	}
}

type SubscribeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	// AutoRenew defaults to the auto-renew setting of the caller's stake
	// position when it authorizes the plan, and false otherwise.
	AutoRenew *bool `json:"auto_renew"`
}

func getSubscription(ctx context.Context, tx store.Store, id string) (*models.Subscription, error) {
	sub, err := tx.Subscriptions().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func activePlan(ctx context.Context, tx store.Store, id string) (*models.Plan, error) {
	p, err := tx.Plans().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if !p.Active {
		return nil, errs.ErrPlanNotFound.Withf("plan %s is not active", id)
	}
	return p, nil
}

func (s *Service) defaultAutoRenew(ctx context.Context, tx store.Store, subscriber, planID string, req *bool) (bool, error) {
	if req != nil {
		return *req, nil
	}
	pos, err := s.stakes.FindPosition(ctx, tx, subscriber)
	if err != nil {
		return false, err
	}
	return pos != nil && pos.AutoRenew && pos.IsPlanAuthorized(planID), nil
}

// newSubscription snapshots p for subscriber. length is the first period.
func newSubscription(p *models.Plan, subscriber string, length time.Duration, trial, autoRenew bool, now time.Time) (*models.Subscription, error) {
	key, err := tool.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	return &models.Subscription{
		ID:             tool.GenerateUUIDV7(),
		PlanID:         p.ID,
		PlanName:       p.Name,
		Price:          p.BasePrice,
		UsagePrice:     p.UsagePrice,
		Period:         p.Period,
		PeriodSeconds:  p.PeriodSeconds,
		Merchant:       p.Merchant,
		Subscriber:     subscriber,
		IsTrial:        trial,
		StartedAsTrial: trial,
		SubscribedAt:   now,
		PeriodStart:    now,
		ExpiresAt:      now.Add(length),
		AutoRenew:      autoRenew,
		Status:         types.SubscriptionStatusActive,
		APIKey:         key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// currentActive returns the active subscription of subscriber for planID,
// settling it first when its period has already run out.
func (s *Service) currentActive(ctx context.Context, tx store.Store, q *aftercommit.Queue, planID, subscriber string, now time.Time) (*models.Subscription, error) {
	cur, err := tx.Subscriptions().FindActive(ctx, planID, subscriber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active subscription: %w", err)
	}
	if cur.ExpiresAt.After(now) {
		return cur, nil
	}
	next, err := s.settleDueTx(ctx, tx, q, cur, now)
	if err != nil {
		return nil, err
	}
	if next.IsActive() {
		return next, nil
	}
	return nil, nil
}

func (s *Service) create(ctx context.Context, tx store.Store, sub *models.Subscription) error {
	if err := tx.Subscriptions().Create(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return errs.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *Service) paymentDue(ctx context.Context, sub *models.Subscription) {
	if sub.Price == 0 {
		return
	}
	events.Emit(ctx, s.publisher, s.log, events.Event{
		Type: events.PaymentDue,
		Key:  sub.ID,
		At:   sub.UpdatedAt,
		Payload: map[string]any{
			"subscription_id": sub.ID,
			"plan_id":         sub.PlanID,
			"subscriber":      sub.Subscriber,
			"merchant":        sub.Merchant,
			"amount":          sub.Price,
			"period_start":    sub.PeriodStart,
			"due_at":          sub.ExpiresAt,
		},
	})
}

// Subscribe starts a paid subscription to planID. The first period is
// billed in arrears when it closes.
func (s *Service) Subscribe(ctx context.Context, subscriber string, req SubscribeRequest) (*models.Subscription, error) {
	if subscriber == "" {
		return nil, errs.ErrUnauthorized
	}
	var sub *models.Subscription
	q := &aftercommit.Queue{}
	err := store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			p, err := activePlan(ctx, tx, req.PlanID)
			if err != nil {
				return err
			}
			cur, err := s.currentActive(ctx, tx, q, p.ID, subscriber, now)
			if err != nil {
				return err
			}
			if cur != nil {
				return errs.ErrAlreadySubscribed.Withf("subscription %s is active until %s", cur.ID, cur.ExpiresAt.UTC().Format(time.RFC3339))
			}
			length, err := p.PeriodDuration()
			if err != nil {
				return errs.ErrInvalidArgument.Wrap(err)
			}
			autoRenew, err := s.defaultAutoRenew(ctx, tx, subscriber, p.ID, req.AutoRenew)
			if err != nil {
				return err
			}
			sub, err = newSubscription(p, subscriber, length, false, autoRenew, now)
			if err != nil {
				return err
			}
			if err := s.create(ctx, tx, sub); err != nil {
				return err
			}
			return plan.IncrementSubscriberStatsTx(ctx, tx, p.ID, p.BasePrice)
		})
	})
	if err != nil {
		return nil, err
	}
	q.Run()
	logctx.FromCtx(ctx, s.log).Infow("subscribed", "subscription_id", sub.ID, "plan_id", sub.PlanID, "price", sub.Price, "expires_at", sub.ExpiresAt)
	s.changes.Record(ctx, models.EntitySubscription, sub.ID, types.ChangeReasonSubscribe, nil, sub)
	s.metrics.SubscriptionEvent("subscribe")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.SubscriptionCreated, Key: sub.ID, At: sub.CreatedAt, Payload: sub})
	s.paymentDue(ctx, sub)
	return sub, nil
}

// StartTrial starts a free trial of planID. Each subscriber gets at most one
// trial per plan.
func (s *Service) StartTrial(ctx context.Context, subscriber, planID string) (*models.Subscription, error) {
	if subscriber == "" {
		return nil, errs.ErrUnauthorized
	}
	var sub *models.Subscription
	q := &aftercommit.Queue{}
	err := store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			p, err := activePlan(ctx, tx, planID)
			if err != nil {
				return err
			}
			if !p.HasTrial() {
				return errs.ErrTrialUnavailable
			}
			cur, err := s.currentActive(ctx, tx, q, p.ID, subscriber, now)
			if err != nil {
				return err
			}
			if cur != nil {
				if cur.IsTrial {
					return errs.ErrAlreadyTrialing
				}
				return errs.ErrAlreadySubscribed
			}
			used, err := tx.Subscriptions().HasTrial(ctx, p.ID, subscriber)
			if err != nil {
				return fmt.Errorf("failed to check trial history: %w", err)
			}
			if used {
				return errs.ErrAlreadyTrialing
			}
			autoRenew, err := s.defaultAutoRenew(ctx, tx, subscriber, p.ID, nil)
			if err != nil {
				return err
			}
			sub, err = newSubscription(p, subscriber, time.Duration(p.TrialDays)*24*time.Hour, true, autoRenew, now)
			if err != nil {
				return err
			}
			if err := s.create(ctx, tx, sub); err != nil {
				return err
			}
			return plan.IncrementSubscriberStatsTx(ctx, tx, p.ID, 0)
		})
	})
	if err != nil {
		return nil, err
	}
	q.Run()
	logctx.FromCtx(ctx, s.log).Infow("trial started", "subscription_id", sub.ID, "plan_id", sub.PlanID, "expires_at", sub.ExpiresAt)
	s.changes.Record(ctx, models.EntitySubscription, sub.ID, types.ChangeReasonStartTrial, nil, sub)
	s.metrics.SubscriptionEvent("trial")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.SubscriptionCreated, Key: sub.ID, At: sub.CreatedAt, Payload: sub})
	return sub, nil
}

// mutate applies fn to the subscriber's active subscription id inside a
// retried transaction and stores the result with a compare-and-swap. A
// subscription whose period already ended is settled first, exactly as the
// renewal sweep would; fn only runs when it is still active afterwards.
func (s *Service) mutate(ctx context.Context, id, caller string, q *aftercommit.Queue, fn func(tx store.Store, cur, next *models.Subscription, now time.Time) error) (before, after *models.Subscription, err error) {
	var lapsed *models.Subscription
	err = store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		lapsed = nil
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			cur, err := getSubscription(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur.Subscriber != caller {
				return errs.ErrUnauthorized
			}
			if !cur.IsActive() {
				return errs.ErrNotActive.Withf("subscription is %s", cur.Status)
			}
			for i := 0; !cur.ExpiresAt.After(now); i++ {
				if i == maxCatchUpPeriods {
					return errs.ErrNotActive.Withf("subscription has more than %d unsettled periods", maxCatchUpPeriods)
				}
				if cur, err = s.settleDueTx(ctx, tx, q, cur, now); err != nil {
					return err
				}
				if !cur.IsActive() {
					// commit the settlement, the caller still gets NotActive
					lapsed = cur
					return nil
				}
			}
			next := cur.Clone()
			next.UpdatedAt = now
			if err := fn(tx, cur, next, now); err != nil {
				return err
			}
			if err := tx.Subscriptions().CompareAndSwap(ctx, cur, next); err != nil {
				return fmt.Errorf("failed to update subscription: %w", err)
			}
			before, after = cur, next
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	q.Run()
	if lapsed != nil {
		return nil, nil, errs.ErrNotActive.Withf("subscription is %s", lapsed.Status)
	}
	s.invalidate(ctx, after)
	return before, after, nil
}

// Cancel ends the subscription immediately and invoices the period used so
// far. Nothing is refunded.
func (s *Service) Cancel(ctx context.Context, id, caller string) (*models.Subscription, error) {
	q := &aftercommit.Queue{}
	before, after, err := s.mutate(ctx, id, caller, q, func(tx store.Store, cur, next *models.Subscription, now time.Time) error {
		next.Status = types.SubscriptionStatusCancelled
		next.CancelledAt = &now
		next.AutoRenew = false
		end := now
		if cur.ExpiresAt.Before(end) {
			end = cur.ExpiresAt
		}
		_, _, err := s.billing.ClosePeriodTx(ctx, tx, q, cur, end, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription cancelled", "subscription_id", id)
	s.changes.Record(ctx, models.EntitySubscription, id, types.ChangeReasonCancel, before, after)
	s.metrics.SubscriptionEvent("cancel")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.SubscriptionCancelled, Key: id, At: after.UpdatedAt, Payload: after})
	return after, nil
}

// SetAutoRenew toggles renewal at period end. Disabling it is how a
// subscriber unsubscribes without losing the current period.
func (s *Service) SetAutoRenew(ctx context.Context, id, caller string, enabled bool) (*models.Subscription, error) {
	q := &aftercommit.Queue{}
	before, after, err := s.mutate(ctx, id, caller, q, func(_ store.Store, _, next *models.Subscription, _ time.Time) error {
		next.AutoRenew = enabled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if before.AutoRenew != after.AutoRenew {
		s.changes.Record(ctx, models.EntitySubscription, id, types.ChangeReasonAutoRenew, before, after)
	}
	return after, nil
}

// ConvertTrial ends a running trial now and starts the first full-price
// period. The trial period is invoiced for usage only.
func (s *Service) ConvertTrial(ctx context.Context, id, caller string) (*models.Subscription, error) {
	q := &aftercommit.Queue{}
	before, after, err := s.mutate(ctx, id, caller, q, func(tx store.Store, cur, next *models.Subscription, now time.Time) error {
		if !cur.IsTrial {
			return errs.ErrNotTrial
		}
		if !cur.Valid(now) {
			return errs.ErrNotActive.Withf("trial ended at %s", cur.ExpiresAt.UTC().Format(time.RFC3339))
		}
		length, err := cur.PeriodDuration()
		if err != nil {
			return errs.ErrInvalidArgument.Wrap(err)
		}
		if _, _, err := s.billing.ClosePeriodTx(ctx, tx, q, cur, now, now); err != nil {
			return err
		}
		next.IsTrial = false
		next.PeriodStart = now
		next.ExpiresAt = now.Add(length)
		return plan.AddRevenueTx(ctx, tx, cur.PlanID, cur.Price)
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("trial converted", "subscription_id", id, "expires_at", after.ExpiresAt)
	s.changes.Record(ctx, models.EntitySubscription, id, types.ChangeReasonConvertTrial, before, after)
	s.metrics.SubscriptionEvent("convert")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.TrialConverted, Key: id, At: after.UpdatedAt, Payload: after})
	s.paymentDue(ctx, after)
	return after, nil
}

// GetSubscription is visible to the subscriber and the merchant.
func (s *Service) GetSubscription(ctx context.Context, id, caller string) (*models.Subscription, error) {
	sub, err := getSubscription(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if sub.Subscriber != caller && sub.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return sub, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	out, err := s.store.Subscriptions().List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return out, nil
}
