package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/casperflow/internal/app/service/aftercommit"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/platform/events"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/types"
)

// maxCatchUpPeriods bounds how many lapsed periods one ExpireDue call
// settles for a single subscription.
const maxCatchUpPeriods = 64

// settleDueTx closes the lapsed period of sub and either renews it for one
// more period or expires it, inside tx. Renewal needs auto-renew and a
// consent or auto-pay stake position that pays the closed invoice, or that
// could pay the next period when the invoice is already settled.
func (s *Service) settleDueTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, sub *models.Subscription, now time.Time) (*models.Subscription, error) {
	inv, _, err := s.billing.ClosePeriodTx(ctx, tx, q, sub, sub.ExpiresAt, now)
	if err != nil {
		return nil, err
	}

	renew := false
	if sub.AutoRenew {
		switch inv.Status {
		case types.InvoiceStatusPending:
			renew, err = s.billing.AutoSettleTx(ctx, tx, q, inv, now)
		case types.InvoiceStatusPaid:
			renew, err = s.billing.CanAutoPayTx(ctx, tx, sub.Subscriber, sub.PlanID, sub.Price, now)
		}
		if err != nil {
			return nil, err
		}
	}

	next := sub.Clone()
	next.UpdatedAt = now
	if renew {
		length, err := sub.PeriodDuration()
		if err != nil {
			return nil, errs.ErrInvalidArgument.Wrap(err)
		}
		next.PeriodStart = sub.ExpiresAt
		next.ExpiresAt = sub.ExpiresAt.Add(length)
		next.IsTrial = false
		if err := tx.Subscriptions().CompareAndSwap(ctx, sub, next); err != nil {
			return nil, fmt.Errorf("failed to renew subscription: %w", err)
		}
		if err := plan.AddRevenueTx(ctx, tx, sub.PlanID, next.Price); err != nil {
			return nil, err
		}
		before, after := sub.Clone(), next.Clone()
		q.Add(func() { s.afterRenew(ctx, before, after) })
		return next, nil
	}

	// a chain payment may still land, so only an unclaimed invoice fails
	if sub.AutoRenew && inv.Status == types.InvoiceStatusPending && inv.PaymentTx == "" {
		if err := s.billing.FailTx(ctx, tx, q, inv, "renewal could not be paid", now); err != nil {
			return nil, err
		}
	}
	next.Status = types.SubscriptionStatusExpired
	if err := tx.Subscriptions().CompareAndSwap(ctx, sub, next); err != nil {
		return nil, fmt.Errorf("failed to expire subscription: %w", err)
	}
	before, after := sub.Clone(), next.Clone()
	q.Add(func() { s.afterExpire(ctx, before, after) })
	return next, nil
}

func (s *Service) afterRenew(ctx context.Context, before, after *models.Subscription) {
	logctx.FromCtx(ctx, s.log).Infow("subscription renewed", "subscription_id", after.ID, "expires_at", after.ExpiresAt)
	s.invalidate(ctx, after)
	s.changes.Record(ctx, models.EntitySubscription, after.ID, types.ChangeReasonRenew, before, after)
	s.metrics.SubscriptionEvent("renew")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.SubscriptionRenewed, Key: after.ID, At: after.UpdatedAt, Payload: after})
	s.paymentDue(ctx, after)
}

func (s *Service) afterExpire(ctx context.Context, before, after *models.Subscription) {
	logctx.FromCtx(ctx, s.log).Infow("subscription expired", "subscription_id", after.ID, "expired_at", after.ExpiresAt)
	s.invalidate(ctx, after)
	s.changes.Record(ctx, models.EntitySubscription, after.ID, types.ChangeReasonExpire, before, after)
	s.metrics.SubscriptionEvent("expire")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.SubscriptionExpired, Key: after.ID, At: after.UpdatedAt, Payload: after})
}

// processDue settles subscription id until it is no longer due at now.
// It returns nil when another worker already handled it.
func (s *Service) processDue(ctx context.Context, id string, now time.Time) (*models.Subscription, error) {
	var last *models.Subscription
	for range maxCatchUpPeriods {
		var next *models.Subscription
		q := &aftercommit.Queue{}
		err := store.Retry(ctx, retryAttempts, func() error {
			q.Reset()
			next = nil
			return s.store.Transaction(ctx, func(tx store.Store) error {
				sub, err := getSubscription(ctx, tx, id)
				if err != nil {
					return err
				}
				if !sub.IsActive() || sub.ExpiresAt.After(now) {
					return nil
				}
				next, err = s.settleDueTx(ctx, tx, q, sub, now)
				return err
			})
		})
		if errors.Is(err, store.ErrConflict) {
			return last, nil
		}
		if err != nil {
			return last, err
		}
		if next == nil {
			return last, nil
		}
		q.Run()
		last = next
		if !next.IsActive() || next.ExpiresAt.After(now) {
			return last, nil
		}
	}
	return last, nil
}

// ExpireDue settles every active subscription whose period ended at or
// before now: renewable ones move to their next period, the rest expire.
// Running it twice with the same now changes nothing the second time, and
// concurrent runs never settle a period twice.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	due, err := s.store.Subscriptions().ListDue(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	log := logctx.FromCtx(ctx, s.log)
	var out []*models.Subscription
	var errList []error
	for _, sub := range due {
		res, err := s.processDue(ctx, sub.ID, now)
		if err != nil {
			log.Errorw("failed to settle due subscription", "subscription_id", sub.ID, "err", err)
			errList = append(errList, fmt.Errorf("subscription %s: %w", sub.ID, err))
		}
		if res != nil {
			out = append(out, res)
		}
	}
	if len(due) > 0 {
		log.Infow("expiry sweep finished", "due", len(due), "settled", len(out), "failed", len(errList))
	}
	return out, errors.Join(errList...)
}
