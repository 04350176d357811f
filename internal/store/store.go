package store

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/types"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional update lost a race.
	ErrConflict = errors.New("store: concurrent modification")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate key")
)

type PlanQuery struct {
	Merchant   string
	ActiveOnly bool
}

type PlanRepository interface {
	Create(ctx context.Context, p *models.Plan) error
	Get(ctx context.Context, id string) (*models.Plan, error)
	// Save writes the editable fields. SubscriberCount and TotalRevenue are
	// left as stored; only IncrementStats changes them.
	Save(ctx context.Context, p *models.Plan) error
	List(ctx context.Context, q PlanQuery) ([]*models.Plan, error)
	// IncrementStats atomically adds to the subscriber count and revenue.
	IncrementStats(ctx context.Context, id string, subscribers, revenue int64) error
}

type SubscriptionQuery struct {
	Subscriber string
	Merchant   string
	PlanID     string
	Status     types.SubscriptionStatus
}

type SubscriptionRepository interface {
	// Create fails with ErrDuplicate when an active row already exists for
	// the same plan and subscriber.
	Create(ctx context.Context, s *models.Subscription) error
	Get(ctx context.Context, id string) (*models.Subscription, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Subscription, error)
	FindActive(ctx context.Context, planID, subscriber string) (*models.Subscription, error)
	HasTrial(ctx context.Context, planID, subscriber string) (bool, error)
	List(ctx context.Context, q SubscriptionQuery) ([]*models.Subscription, error)
	// ListDue returns active subscriptions with expires_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	// CompareAndSwap stores next only if the stored row still has prev's
	// status and expires_at, otherwise ErrConflict.
	CompareAndSwap(ctx context.Context, prev, next *models.Subscription) error
}

type UsageRepository interface {
	Append(ctx context.Context, records ...*models.UsageRecord) error
	// Sum adds units recorded in [from, to).
	Sum(ctx context.Context, subscriptionID string, from, to time.Time) (int64, error)
	List(ctx context.Context, subscriptionID string, from, to time.Time) ([]*models.UsageRecord, error)
}

type RecorderRepository interface {
	// Authorize is idempotent.
	Authorize(ctx context.Context, r *models.UsageRecorder) error
	Revoke(ctx context.Context, planID, recorder string) error
	IsAuthorized(ctx context.Context, planID, recorder string) (bool, error)
	List(ctx context.Context, planID string) ([]*models.UsageRecorder, error)
}

type InvoiceQuery struct {
	Filters    types.Filters
	Subscriber string
	Merchant   string
	From       int
	// Size 0 means no limit.
	Size     int
	SortBy   string
	SortDesc bool
}

type InvoiceRepository interface {
	// Create fails with ErrDuplicate when the period is already invoiced.
	Create(ctx context.Context, inv *models.Invoice) error
	Get(ctx context.Context, id string) (*models.Invoice, error)
	FindByPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (*models.Invoice, error)
	List(ctx context.Context, q InvoiceQuery) ([]*models.Invoice, int64, error)
	// CompareAndSwap stores next only if the stored status equals from.
	CompareAndSwap(ctx context.Context, from types.InvoiceStatus, next *models.Invoice) error
	// SwapPaymentTx replaces the payment reference of a pending invoice only
	// if it still equals old. ErrConflict otherwise.
	SwapPaymentTx(ctx context.Context, id, old, next string, now time.Time) error
}

type ConsentQuery struct {
	Subscriber string
	Merchant   string
	PlanID     string
	Status     types.ConsentStatus
}

type ConsentRepository interface {
	Create(ctx context.Context, c *models.PaymentConsent) error
	Get(ctx context.Context, id string) (*models.PaymentConsent, error)
	List(ctx context.Context, q ConsentQuery) ([]*models.PaymentConsent, error)
	// Debit subtracts amount only while the consent is active and covers it,
	// flipping the status to exhausted at zero. ErrConflict otherwise.
	Debit(ctx context.Context, id string, amount int64, now time.Time) (*models.PaymentConsent, error)
	// Revoke reports whether the row changed; revoking twice is not an error.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
}

type StakeTotals struct {
	Positions    int64
	TotalStaked  int64
	TotalClaimed int64
	TotalPaid    int64
}

type StakeRepository interface {
	Get(ctx context.Context, subscriber string) (*models.StakePosition, error)
	// Create fails with ErrDuplicate when the wallet already has a position.
	Create(ctx context.Context, p *models.StakePosition) error
	// Update stores p when the stored version equals p.Version and bumps it.
	Update(ctx context.Context, p *models.StakePosition) error
	Delete(ctx context.Context, subscriber string, version int64) error
	Totals(ctx context.Context) (StakeTotals, error)
}

type ChainTxRepository interface {
	Create(ctx context.Context, tx *models.ChainTransaction) error
	GetByHash(ctx context.Context, hash string) (*models.ChainTransaction, error)
	Save(ctx context.Context, tx *models.ChainTransaction) error
}

type ChangeLogRepository interface {
	Create(ctx context.Context, l *models.ChangeLog) error
	List(ctx context.Context, entityType, entityID string) ([]*models.ChangeLog, error)
}

// Store groups the repositories. Transaction runs fn against a Store bound
// to a single transaction; returning an error rolls every write back.
type Store interface {
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Usage() UsageRepository
	Recorders() RecorderRepository
	Invoices() InvoiceRepository
	Consents() ConsentRepository
	Stakes() StakeRepository
	ChainTxs() ChainTxRepository
	ChangeLogs() ChangeLogRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// InvoiceSortColumns are the columns accepted by InvoiceQuery.SortBy and
// by invoice filters.
var InvoiceSortColumns = map[string]struct{}{
	"id": {}, "subscription_id": {}, "plan_id": {}, "subscriber": {}, "merchant": {},
	"base_amount": {}, "usage_units": {}, "usage_amount": {}, "total_amount": {}, "protocol_fee": {},
	"period_start": {}, "period_end": {}, "status": {}, "payment_method": {}, "paid_at": {},
	"created_at": {}, "updated_at": {},
}

// Retry runs fn until it stops returning ErrConflict, up to attempts times.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
