package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/aftercommit"
	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/transaction"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
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

const (
	retryAttempts = 5

	defaultSearchSize = 10
	maxSearchSize     = 100
)

type Service struct {
	store     store.Store
	changes   *changelog.Service
	publisher events.Publisher
	metrics   *metrics.Business
	txm       transaction.TransactionManager
	stakes    *stake.Service
	log       *zap.SugaredLogger
	now       tool.Clock

	feeBps         types.BasisPoints
	contractHash   string
	confirmTimeout time.Duration
}

func NewService(
	cfg *config.Config,
	log *zap.SugaredLogger,
	st store.Store,
	changes *changelog.Service,
	publisher events.Publisher,
	m *metrics.Business,
	txm transaction.TransactionManager,
	stakes *stake.Service,
	now tool.Clock,
) *Service {
	timeout := cfg.Casper.ConfirmTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		store:          st,
		changes:        changes,
		publisher:      publisher,
		metrics:        m,
		txm:            txm,
		stakes:         stakes,
		log:            log,
		now:            now,
		feeBps:         types.BasisPoints(cfg.Billing.ProtocolFeeBps),
		contractHash:   cfg.Casper.ContractHash,
		confirmTimeout: timeout,
	}
}

func getInvoice(ctx context.Context, tx store.Store, id string) (*models.Invoice, error) {
	inv, err := tx.Invoices().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
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

// ClosePeriodTx issues the invoice for sub's open period, ending at end,
// inside tx. When the period is already invoiced the existing invoice is
// returned with created=false. A zero total is settled on the spot.
func (s *Service) ClosePeriodTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, sub *models.Subscription, end, now time.Time) (*models.Invoice, bool, error) {
	existing, err := tx.Invoices().FindByPeriod(ctx, sub.ID, sub.PeriodStart)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to find invoice: %w", err)
	}
	if end.Before(sub.PeriodStart) {
		end = sub.PeriodStart
	}
	units, err := usage.PeriodUnits(ctx, tx, sub.ID, sub.PeriodStart, end)
	if err != nil {
		return nil, false, err
	}
	inv, err := models.NewInvoice(tool.GenerateUUIDV7(), sub, units, sub.PeriodStart, end, now)
	if err != nil {
		return nil, false, err
	}
	if inv.TotalAmount == 0 {
		inv.MarkPaid("", "", s.feeBps, now)
	}
	if err := tx.Invoices().Create(ctx, inv); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// a concurrent closer won; the retry will find its invoice
			return nil, false, store.ErrConflict
		}
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}
	created := inv.Clone()
	q.Add(func() { s.afterClose(ctx, created) })
	return inv, true, nil
}

func (s *Service) afterClose(ctx context.Context, inv *models.Invoice) {
	logctx.FromCtx(ctx, s.log).Infow("invoice issued", "invoice_id", inv.ID, "subscription_id", inv.SubscriptionID,
		"base_amount", inv.BaseAmount, "usage_units", inv.UsageUnits, "total_amount", inv.TotalAmount)
	s.changes.Record(ctx, models.EntityInvoice, inv.ID, types.ChangeReasonClosePeriod, nil, inv)
	s.metrics.InvoiceEvent(string(types.InvoiceStatusPending), "")
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.InvoiceCreated, Key: inv.SubscriptionID, At: inv.CreatedAt, Payload: inv})
	if inv.Status == types.InvoiceStatusPaid {
		s.metrics.InvoiceEvent(string(types.InvoiceStatusPaid), "")
		events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.InvoicePaid, Key: inv.SubscriptionID, At: inv.CreatedAt, Payload: inv})
	}
}

// periodEnd is the end of the billing period that may be closed at now.
func periodEnd(sub *models.Subscription, now time.Time) (time.Time, error) {
	switch sub.Status {
	case types.SubscriptionStatusActive:
		if now.Before(sub.ExpiresAt) {
			return time.Time{}, errs.ErrPeriodOpen.Withf("billing period ends at %s", sub.ExpiresAt.UTC().Format(time.RFC3339))
		}
	case types.SubscriptionStatusCancelled:
		if sub.CancelledAt != nil && sub.CancelledAt.Before(sub.ExpiresAt) {
			return *sub.CancelledAt, nil
		}
	}
	return sub.ExpiresAt, nil
}

// ClosePeriod invoices the period that just ended. A cancelled
// subscription is billed up to its cancellation.
func (s *Service) ClosePeriod(ctx context.Context, subscriptionID, caller string) (*models.Invoice, error) {
	var inv *models.Invoice
	q := &aftercommit.Queue{}
	err := store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			sub, err := getSubscription(ctx, tx, subscriptionID)
			if err != nil {
				return err
			}
			if caller != sub.Subscriber && caller != sub.Merchant {
				return errs.ErrUnauthorized
			}
			end, err := periodEnd(sub, now)
			if err != nil {
				return err
			}
			var created bool
			inv, created, err = s.ClosePeriodTx(ctx, tx, q, sub, end, now)
			if err != nil {
				return err
			}
			if !created {
				return errs.ErrInvoiceAlreadyIssued.Withf("period starting %s is already invoiced by %s",
					sub.PeriodStart.UTC().Format(time.RFC3339), inv.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	q.Run()
	return inv, nil
}

// FailTx moves a pending invoice to failed inside tx.
func (s *Service) FailTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, inv *models.Invoice, reason string, now time.Time) error {
	before := inv.Clone()
	after := inv.Clone()
	after.Status = types.InvoiceStatusFailed
	after.UpdatedAt = now
	if err := tx.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, after); err != nil {
		return fmt.Errorf("failed to mark invoice failed: %w", err)
	}
	q.Add(func() { s.afterFailed(ctx, before, after, reason) })
	return nil
}

func (s *Service) afterFailed(ctx context.Context, before, after *models.Invoice, reason string) {
	logctx.FromCtx(ctx, s.log).Warnw("invoice payment failed", "invoice_id", after.ID, "subscription_id", after.SubscriptionID, "reason", reason)
	s.changes.Record(ctx, models.EntityInvoice, after.ID, types.ChangeReasonPayFailed, before, after)
	s.metrics.InvoiceEvent(string(types.InvoiceStatusFailed), string(after.PaymentMethod))
	events.Emit(ctx, s.publisher, s.log, events.Event{
		Type: events.InvoiceFailed, Key: after.SubscriptionID, At: after.UpdatedAt,
		Payload: map[string]any{"invoice": after, "reason": reason},
	})
}

func (s *Service) afterPaid(ctx context.Context, before, after *models.Invoice) {
	logctx.FromCtx(ctx, s.log).Infow("invoice paid", "invoice_id", after.ID, "method", after.PaymentMethod,
		"total_amount", after.TotalAmount, "protocol_fee", after.ProtocolFee, "payment_tx", after.PaymentTx)
	s.changes.Record(ctx, models.EntityInvoice, after.ID, types.ChangeReasonPay, before, after)
	s.metrics.InvoiceEvent(string(types.InvoiceStatusPaid), string(after.PaymentMethod))
	s.metrics.Charged(string(after.PaymentMethod), after.TotalAmount)
	events.Emit(ctx, s.publisher, s.log, events.Event{Type: events.InvoicePaid, Key: after.SubscriptionID, At: *after.PaidAt, Payload: after})
}

// VoidInvoice cancels a pending invoice of a subscription that is no longer
// active. Only the merchant may void.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID, caller string) (*models.Invoice, error) {
	var before, after *models.Invoice
	err := store.Retry(ctx, retryAttempts, func() error {
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			inv, err := getInvoice(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if inv.Merchant != caller {
				return errs.ErrUnauthorized
			}
			if inv.Status != types.InvoiceStatusPending {
				return errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
			}
			if inv.PaymentTx != "" {
				return errs.ErrPaymentInFlight
			}
			sub, err := getSubscription(ctx, tx, inv.SubscriptionID)
			if err != nil {
				return err
			}
			if sub.IsActive() {
				return errs.ErrSubscriptionActive
			}
			before = inv.Clone()
			after = inv
			after.Status = types.InvoiceStatusCancelled
			after.UpdatedAt = now
			return tx.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, after)
		})
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("invoice voided", "invoice_id", invoiceID)
	s.changes.Record(ctx, models.EntityInvoice, invoiceID, types.ChangeReasonVoid, before, after)
	s.metrics.InvoiceEvent(string(types.InvoiceStatusCancelled), "")
	return after, nil
}

// GetInvoice is visible to the invoice's subscriber and merchant.
func (s *Service) GetInvoice(ctx context.Context, id, caller string) (*models.Invoice, error) {
	inv, err := getInvoice(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if inv.Subscriber != caller && inv.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return inv, nil
}

// Invoice search roles.
const (
	RoleSubscriber = "subscriber"
	RoleMerchant   = "merchant"
)

type SearchInvoicesRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
	// Role selects which side of the invoice the caller is on.
	Role string `json:"role" binding:"omitempty,oneof=subscriber merchant"`
}

type SearchInvoicesResponse struct {
	Items []*models.Invoice `json:"items"`
	Total int64             `json:"total"`
}

func validateFilter(f *types.CommonFilter) error {
	if f == nil {
		return errs.Invalidf("filter is empty")
	}
	if f.Field != "" {
		if _, ok := store.InvoiceSortColumns[f.Field]; !ok {
			return errs.Invalidf("unknown invoice field %q", f.Field)
		}
	}
	for i := range f.Filters {
		if err := validateFilter(&f.Filters[i]); err != nil {
			return err
		}
	}
	return nil
}

// ListInvoices pages through the caller's invoices.
func (s *Service) ListInvoices(ctx context.Context, caller string, req *SearchInvoicesRequest) (*SearchInvoicesResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if caller == "" {
		return nil, errs.ErrUnauthorized
	}
	for _, f := range req.Filters {
		if err := validateFilter(f); err != nil {
			return nil, err
		}
	}
	if req.SortBy != "" {
		if _, ok := store.InvoiceSortColumns[req.SortBy]; !ok {
			return nil, errs.Invalidf("cannot sort by %q", req.SortBy)
		}
	}
	if req.Size <= 0 {
		req.Size = defaultSearchSize
	}
	req.Size = min(req.Size, maxSearchSize)
	if req.From < 0 {
		req.From = 0
	}

	q := store.InvoiceQuery{
		Filters:  types.Filters(req.Filters),
		From:     req.From,
		Size:     req.Size,
		SortBy:   req.SortBy,
		SortDesc: req.SortOrder != "asc",
	}
	switch req.Role {
	case RoleMerchant:
		q.Merchant = caller
	case "", RoleSubscriber:
		q.Subscriber = caller
	default:
		return nil, errs.Invalidf("unknown role %q", req.Role)
	}
	items, total, err := s.store.Invoices().List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return &SearchInvoicesResponse{Items: items, Total: total}, nil
}
