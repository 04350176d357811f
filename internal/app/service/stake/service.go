package stake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/models"
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
	log       *zap.SugaredLogger
	now       tool.Clock

	apyBps   int64
	minStake int64
	feeBps   types.BasisPoints
}

func NewService(st store.Store, changes *changelog.Service, publisher events.Publisher, m *metrics.Business, log *zap.SugaredLogger, now tool.Clock, cfg *config.Config) *Service {
	return &Service{
		store:     st,
		changes:   changes,
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       now,
		apyBps:    cfg.Stake.APYBps,
		minStake:  cfg.Stake.MinStake,
		feeBps:    types.BasisPoints(cfg.Billing.ProtocolFeeBps),
	}
}

// Position is a stake position with its rewards evaluated at a point in time.
type Position struct {
	*models.StakePosition
	PendingRewards int64     `json:"pending_rewards"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

type Config struct {
	APYBps       int64 `json:"apy_bps"`
	MinStake     int64 `json:"min_stake"`
	Positions    int64 `json:"positions"`
	TotalStaked  int64 `json:"total_staked"`
	TotalClaimed int64 `json:"total_claimed"`
	TotalPaid    int64 `json:"total_subscriptions_paid"`
}

// PendingRewards is the reward balance of p at now under the configured APY.
func (s *Service) PendingRewards(p *models.StakePosition, now time.Time) int64 {
	return p.PendingRewards(s.apyBps, now)
}

func (s *Service) view(p *models.StakePosition, now time.Time) *Position {
	return &Position{StakePosition: p, PendingRewards: s.PendingRewards(p, now), EvaluatedAt: now}
}

func getPosition(ctx context.Context, tx store.Store, subscriber string) (*models.StakePosition, error) {
	p, err := tx.Stakes().Get(ctx, subscriber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stake position: %w", err)
	}
	return p, nil
}

// settle folds accrued rewards into CarriedRewards and restarts accrual at now.
func (s *Service) settle(p *models.StakePosition, now time.Time) {
	p.CarriedRewards = s.PendingRewards(p, now)
	p.LastRewardClaim = now
}

// Stake opens a position or tops up an existing one. Only a fresh position
// is held to the minimum.
func (s *Service) Stake(ctx context.Context, subscriber string, amount int64) (*Position, error) {
	if subscriber == "" {
		return nil, errs.ErrUnauthorized
	}
	if amount <= 0 {
		return nil, errs.Invalidf("stake amount must be > 0, got %d", amount)
	}
	var before, after *models.StakePosition
	var now time.Time
	err := store.Retry(ctx, retryAttempts, func() error {
		now = s.now()
		before, after = nil, nil
		return s.store.Transaction(ctx, func(tx store.Store) error {
			cur, err := getPosition(ctx, tx, subscriber)
			if errors.Is(err, errs.ErrPositionNotFound) {
				if amount < s.minStake {
					return errs.ErrBelowMinimumStake.WithAmounts(amount, s.minStake)
				}
				after = &models.StakePosition{
					Subscriber:      subscriber,
					Principal:       amount,
					StakedAt:        now,
					LastRewardClaim: now,
					AuthorizedPlans: datatypes.JSONSlice[string]{},
					Version:         1,
					CreatedAt:       now,
					UpdatedAt:       now,
				}
				if err := tx.Stakes().Create(ctx, after); err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return store.ErrConflict
					}
					return fmt.Errorf("failed to create stake position: %w", err)
				}
				return nil
			}
			if err != nil {
				return err
			}
			before = cur.Clone()
			after = cur
			s.settle(after, now)
			after.Principal += amount
			after.UpdatedAt = now
			if err := tx.Stakes().Update(ctx, after); err != nil {
				return fmt.Errorf("failed to update stake position: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("staked", "subscriber", subscriber, "amount", amount, "principal", after.Principal)
	s.changes.Record(ctx, models.EntityStakePosition, subscriber, types.ChangeReasonStake, before, after)
	return s.view(after, now), nil
}

type ClaimResult struct {
	Claimed  int64     `json:"claimed"`
	Position *Position `json:"position"`
}

// ClaimRewards pays out every pending reward and restarts accrual.
func (s *Service) ClaimRewards(ctx context.Context, subscriber string) (*ClaimResult, error) {
	var before, after *models.StakePosition
	var claimed int64
	var now time.Time
	err := store.Retry(ctx, retryAttempts, func() error {
		now = s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			cur, err := getPosition(ctx, tx, subscriber)
			if err != nil {
				return err
			}
			claimed = s.PendingRewards(cur, now)
			if claimed <= 0 {
				return errs.ErrNothingToClaim
			}
			before = cur.Clone()
			after = cur
			after.CarriedRewards = 0
			after.LastRewardClaim = now
			after.TotalClaimed += claimed
			after.UpdatedAt = now
			if err := tx.Stakes().Update(ctx, after); err != nil {
				return fmt.Errorf("failed to update stake position: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("rewards claimed", "subscriber", subscriber, "amount", claimed)
	s.changes.Record(ctx, models.EntityStakePosition, subscriber, types.ChangeReasonClaim, before, after)
	return &ClaimResult{Claimed: claimed, Position: s.view(after, now)}, nil
}

type WithdrawResult struct {
	FromRewards   int64 `json:"from_rewards"`
	FromPrincipal int64 `json:"from_principal"`
	// Position is nil once the position is closed.
	Position *Position `json:"position"`
	Closed   bool      `json:"closed"`
}

// Withdraw drains pending rewards first and principal after. A position
// whose principal reaches zero is removed.
func (s *Service) Withdraw(ctx context.Context, subscriber string, amount int64) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, errs.Invalidf("withdraw amount must be > 0, got %d", amount)
	}
	var before, after *models.StakePosition
	var res WithdrawResult
	var now time.Time
	err := store.Retry(ctx, retryAttempts, func() error {
		now = s.now()
		res = WithdrawResult{}
		return s.store.Transaction(ctx, func(tx store.Store) error {
			cur, err := getPosition(ctx, tx, subscriber)
			if err != nil {
				return err
			}
			pending := s.PendingRewards(cur, now)
			if available := cur.Principal + pending; amount > available {
				return errs.ErrInsufficientBalance.WithAmounts(available, amount)
			}
			res.FromRewards = min(amount, pending)
			res.FromPrincipal = amount - res.FromRewards
			principal := cur.Principal - res.FromPrincipal
			if principal > 0 && principal < s.minStake {
				return errs.ErrBelowMinimumStake.Withf("remaining principal would fall below the minimum stake").WithAmounts(principal, s.minStake)
			}

			before = cur.Clone()
			after = cur
			after.CarriedRewards = pending - res.FromRewards
			after.LastRewardClaim = now
			after.TotalClaimed += res.FromRewards
			after.Principal = principal
			after.UpdatedAt = now
			if principal == 0 {
				res.Closed = true
				if err := tx.Stakes().Delete(ctx, subscriber, cur.Version); err != nil {
					return fmt.Errorf("failed to close stake position: %w", err)
				}
				return nil
			}
			if err := tx.Stakes().Update(ctx, after); err != nil {
				return fmt.Errorf("failed to update stake position: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("withdrawn", "subscriber", subscriber, "from_rewards", res.FromRewards, "from_principal", res.FromPrincipal, "closed", res.Closed)
	if res.Closed {
		s.changes.Record(ctx, models.EntityStakePosition, subscriber, types.ChangeReasonWithdraw, before, nil)
	} else {
		s.changes.Record(ctx, models.EntityStakePosition, subscriber, types.ChangeReasonWithdraw, before, after)
		res.Position = s.view(after, now)
	}
	return &res, nil
}

// InvoicePayment is the outcome of settling an invoice from rewards.
type InvoicePayment struct {
	Invoice        *models.Invoice       `json:"invoice"`
	Position       *models.StakePosition `json:"position"`
	invoiceBefore  *models.Invoice
	positionBefore *models.StakePosition
}

// PayInvoiceTx consumes amount of subscriber's pending rewards and marks the
// invoice paid, inside tx. amount must equal the invoice total.
func (s *Service) PayInvoiceTx(ctx context.Context, tx store.Store, subscriber, invoiceID string, amount int64, now time.Time) (*InvoicePayment, error) {
	inv, err := tx.Invoices().Get(ctx, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv.Subscriber != subscriber {
		return nil, errs.ErrUnauthorized
	}
	if inv.Status != types.InvoiceStatusPending {
		return nil, errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
	}
	if inv.PaymentTx != "" {
		return nil, errs.ErrPaymentInFlight
	}
	if amount <= 0 {
		return nil, errs.Invalidf("amount must be > 0, got %d", amount)
	}
	if amount != inv.TotalAmount {
		return nil, errs.Invalidf("amount %d does not match invoice total %d", amount, inv.TotalAmount)
	}
	pos, err := getPosition(ctx, tx, subscriber)
	if err != nil {
		return nil, err
	}
	pending := s.PendingRewards(pos, now)
	if amount > pending {
		return nil, errs.ErrInsufficientRewards.WithAmounts(pending, amount)
	}

	paidTotal, err := types.AddMotes(pos.TotalSubscriptionsPaid, amount)
	if err != nil {
		return nil, err
	}

	out := &InvoicePayment{invoiceBefore: inv.Clone(), positionBefore: pos.Clone()}
	pos.CarriedRewards = pending - amount
	pos.LastRewardClaim = now
	pos.TotalSubscriptionsPaid = paidTotal
	pos.UpdatedAt = now
	if err := tx.Stakes().Update(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to update stake position: %w", err)
	}
	inv.MarkPaid(types.PaymentMethodStake, "", s.feeBps, now)
	if err := tx.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, inv); err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	out.Invoice, out.Position = inv, pos
	return out, nil
}

// CoversRenewal reports whether auto-pay from p may settle amount for planID at now.
func (s *Service) CoversRenewal(p *models.StakePosition, planID string, amount int64, now time.Time) bool {
	return p != nil && p.AutoPay && p.IsPlanAuthorized(planID) && s.PendingRewards(p, now) >= amount
}

// AfterInvoicePaid records the audit rows, metrics and event of a committed
// InvoicePayment.
func (s *Service) AfterInvoicePaid(ctx context.Context, pay *InvoicePayment) {
	s.changes.Record(ctx, models.EntityStakePosition, pay.Position.Subscriber, types.ChangeReasonPay, pay.positionBefore, pay.Position)
	s.changes.Record(ctx, models.EntityInvoice, pay.Invoice.ID, types.ChangeReasonPay, pay.invoiceBefore, pay.Invoice)
	s.metrics.InvoiceEvent(string(types.InvoiceStatusPaid), string(types.PaymentMethodStake))
	s.metrics.Charged(string(types.PaymentMethodStake), pay.Invoice.TotalAmount)
	events.Emit(ctx, s.publisher, s.log, events.Event{
		Type: events.InvoicePaid, Key: pay.Invoice.SubscriptionID, At: *pay.Invoice.PaidAt, Payload: pay.Invoice,
	})
}

// PayInvoiceFromRewards settles a pending invoice with accrued rewards.
func (s *Service) PayInvoiceFromRewards(ctx context.Context, subscriber, invoiceID string, amount int64) (*InvoicePayment, error) {
	var pay *InvoicePayment
	err := store.Retry(ctx, retryAttempts, func() error {
		return s.store.Transaction(ctx, func(tx store.Store) error {
			var err error
			pay, err = s.PayInvoiceTx(ctx, tx, subscriber, invoiceID, amount, s.now())
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("invoice paid from rewards", "invoice_id", invoiceID, "amount", amount)
	s.AfterInvoicePaid(ctx, pay)
	return pay, nil
}

type SettingsRequest struct {
	AutoPay            bool     `json:"auto_pay"`
	AutoRenew          bool     `json:"auto_renew"`
	PlanIDs            []string `json:"plan_ids"`
	DelegatedValidator string   `json:"delegated_validator"`
}

// SetSettings replaces the auto-pay preferences of an existing position.
func (s *Service) SetSettings(ctx context.Context, subscriber string, req SettingsRequest) (*Position, error) {
	planIDs := lo.Uniq(lo.Compact(req.PlanIDs))
	for _, id := range planIDs {
		if _, err := s.store.Plans().Get(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errs.ErrPlanNotFound.Withf("plan %s not found", id)
			}
			return nil, fmt.Errorf("failed to get plan: %w", err)
		}
	}
	var before, after *models.StakePosition
	var now time.Time
	err := store.Retry(ctx, retryAttempts, func() error {
		now = s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			cur, err := getPosition(ctx, tx, subscriber)
			if err != nil {
				return err
			}
			before = cur.Clone()
			after = cur
			after.AutoPay = req.AutoPay
			after.AutoRenew = req.AutoRenew
			after.AuthorizedPlans = datatypes.JSONSlice[string](planIDs)
			after.DelegatedValidator = req.DelegatedValidator
			after.UpdatedAt = now
			if err := tx.Stakes().Update(ctx, after); err != nil {
				return fmt.Errorf("failed to update stake position: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.changes.Record(ctx, models.EntityStakePosition, subscriber, types.ChangeReasonSettings, before, after)
	return s.view(after, now), nil
}

func (s *Service) GetPosition(ctx context.Context, subscriber string) (*Position, error) {
	p, err := getPosition(ctx, s.store, subscriber)
	if err != nil {
		return nil, err
	}
	return s.view(p, s.now()), nil
}

// FindPosition returns nil when subscriber has no position.
func (s *Service) FindPosition(ctx context.Context, tx store.Store, subscriber string) (*models.StakePosition, error) {
	p, err := getPosition(ctx, tx, subscriber)
	if errors.Is(err, errs.ErrPositionNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Service) GetConfig(ctx context.Context) (*Config, error) {
	t, err := s.store.Stakes().Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stake totals: %w", err)
	}
	return &Config{
		APYBps:       s.apyBps,
		MinStake:     s.minStake,
		Positions:    t.Positions,
		TotalStaked:  t.TotalStaked,
		TotalClaimed: t.TotalClaimed,
		TotalPaid:    t.TotalPaid,
	}, nil
}
