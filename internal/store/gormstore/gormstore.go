// Package gormstore implements store.Store on Postgres through gorm.
//
// Concurrency relies on conditional updates: every state transition is an
// UPDATE ... WHERE <expected state>, and zero affected rows is reported as
// store.ErrConflict.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/types"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Plans() store.PlanRepository                 { return planRepo{s.db} }
func (s *Store) Subscriptions() store.SubscriptionRepository { return subscriptionRepo{s.db} }
func (s *Store) Usage() store.UsageRepository                { return usageRepo{s.db} }
func (s *Store) Recorders() store.RecorderRepository         { return recorderRepo{s.db} }
func (s *Store) Invoices() store.InvoiceRepository           { return invoiceRepo{s.db} }
func (s *Store) Consents() store.ConsentRepository           { return consentRepo{s.db} }
func (s *Store) Stakes() store.StakeRepository               { return stakeRepo{s.db} }
func (s *Store) ChainTxs() store.ChainTxRepository           { return chainTxRepo{s.db} }
func (s *Store) ChangeLogs() store.ChangeLogRepository       { return changeLogRepo{s.db} }

// translate maps gorm errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	}
	return err
}

// affected turns a conditional update result into ErrConflict when nothing matched.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrConflict
	}
	return nil
}

func first[T any](db *gorm.DB, query string, args ...any) (*T, error) {
	var out T
	if err := db.Where(query, args...).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

type planRepo struct{ db *gorm.DB }

func (r planRepo) Create(ctx context.Context, p *models.Plan) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r planRepo) Get(ctx context.Context, id string) (*models.Plan, error) {
	return first[models.Plan](r.db.WithContext(ctx), "id = ?", id)
}

func (r planRepo) Save(ctx context.Context, p *models.Plan) error {
	// counters belong to IncrementStats; writing them back from a stale read would drop increments
	res := r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", p.ID).
		Select("*").Omit("created_at", "subscriber_count", "total_revenue").Updates(p)
	if err := affected(res); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (r planRepo) List(ctx context.Context, q store.PlanQuery) ([]*models.Plan, error) {
	tx := r.db.WithContext(ctx).Model(&models.Plan{})
	if q.Merchant != "" {
		tx = tx.Where("merchant = ?", q.Merchant)
	}
	if q.ActiveOnly {
		tx = tx.Where("active = ?", true)
	}
	var out []*models.Plan
	if err := tx.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r planRepo) IncrementStats(ctx context.Context, id string, subscribers, revenue int64) error {
	res := r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", id).Updates(map[string]any{
		"subscriber_count": gorm.Expr("subscriber_count + ?", subscribers),
		"total_revenue":    gorm.Expr("total_revenue + ?", revenue),
		"updated_at":       time.Now().UTC(),
	})
	err := affected(res)
	if errors.Is(err, store.ErrConflict) {
		return store.ErrNotFound
	}
	return err
}

type subscriptionRepo struct{ db *gorm.DB }

func (r subscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r subscriptionRepo) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return first[models.Subscription](r.db.WithContext(ctx), "id = ?", id)
}

func (r subscriptionRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.Subscription, error) {
	return first[models.Subscription](r.db.WithContext(ctx), "api_key = ?", apiKey)
}

func (r subscriptionRepo) FindActive(ctx context.Context, planID, subscriber string) (*models.Subscription, error) {
	return first[models.Subscription](r.db.WithContext(ctx),
		"plan_id = ? AND subscriber = ? AND status = ?", planID, subscriber, types.SubscriptionStatusActive)
}

func (r subscriptionRepo) HasTrial(ctx context.Context, planID, subscriber string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("plan_id = ? AND subscriber = ? AND started_as_trial = ?", planID, subscriber, true).
		Count(&n).Error
	return n > 0, err
}

func (r subscriptionRepo) List(ctx context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{})
	if q.Subscriber != "" {
		tx = tx.Where("subscriber = ?", q.Subscriber)
	}
	if q.Merchant != "" {
		tx = tx.Where("merchant = ?", q.Merchant)
	}
	if q.PlanID != "" {
		tx = tx.Where("plan_id = ?", q.PlanID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var out []*models.Subscription
	if err := tx.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r subscriptionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	tx := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", types.SubscriptionStatusActive, now).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var out []*models.Subscription
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r subscriptionRepo) CompareAndSwap(ctx context.Context, prev, next *models.Subscription) error {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND expires_at = ?", prev.ID, prev.Status, prev.ExpiresAt).
		Select("*").Omit("id", "created_at").
		Updates(next)
	return affected(res)
}

type usageRepo struct{ db *gorm.DB }

func (r usageRepo) Append(ctx context.Context, records ...*models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(records, 500).Error)
}

func (r usageRepo) Sum(ctx context.Context, subscriptionID string, from, to time.Time) (int64, error) {
	// SUM(bigint) is numeric in postgres, so an oversized total arrives intact
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(units), 0)").
		Where("subscription_id = ? AND recorded_at >= ? AND recorded_at < ?", subscriptionID, from, to).
		Row().Scan(&sum)
	if err != nil {
		return 0, err
	}
	if sum.GreaterThan(types.MaxMotes) {
		return 0, errs.ErrAmountOverflow.Withf("usage total %s overflows", sum.String())
	}
	return sum.IntPart(), nil
}

func (r usageRepo) List(ctx context.Context, subscriptionID string, from, to time.Time) ([]*models.UsageRecord, error) {
	var out []*models.UsageRecord
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND recorded_at >= ? AND recorded_at < ?", subscriptionID, from, to).
		Order("recorded_at ASC").
		Find(&out).Error
	return out, err
}

type recorderRepo struct{ db *gorm.DB }

func (r recorderRepo) Authorize(ctx context.Context, rec *models.UsageRecorder) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "plan_id"}, {Name: "recorder"}}, DoNothing: true}).
		Create(rec).Error
}

func (r recorderRepo) Revoke(ctx context.Context, planID, recorder string) error {
	return r.db.WithContext(ctx).Where("plan_id = ? AND recorder = ?", planID, recorder).Delete(&models.UsageRecorder{}).Error
}

func (r recorderRepo) IsAuthorized(ctx context.Context, planID, recorder string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UsageRecorder{}).
		Where("plan_id = ? AND recorder = ?", planID, recorder).Count(&n).Error
	return n > 0, err
}

func (r recorderRepo) List(ctx context.Context, planID string) ([]*models.UsageRecorder, error) {
	var out []*models.UsageRecorder
	err := r.db.WithContext(ctx).Where("plan_id = ?", planID).Order("recorder ASC").Find(&out).Error
	return out, err
}

type invoiceRepo struct{ db *gorm.DB }

func (r invoiceRepo) Create(ctx context.Context, inv *models.Invoice) error {
	return translate(r.db.WithContext(ctx).Create(inv).Error)
}

func (r invoiceRepo) Get(ctx context.Context, id string) (*models.Invoice, error) {
	return first[models.Invoice](r.db.WithContext(ctx), "id = ?", id)
}

func (r invoiceRepo) FindByPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (*models.Invoice, error) {
	return first[models.Invoice](r.db.WithContext(ctx), "subscription_id = ? AND period_start = ?", subscriptionID, periodStart)
}

func (r invoiceRepo) List(ctx context.Context, q store.InvoiceQuery) ([]*models.Invoice, int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Invoice{})
	if q.Subscriber != "" {
		tx = tx.Where("subscriber = ?", q.Subscriber)
	}
	if q.Merchant != "" {
		tx = tx.Where("merchant = ?", q.Merchant)
	}
	if len(q.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{q.Filters}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := q.SortBy
	if _, ok := store.InvoiceSortColumns[sortBy]; !ok {
		sortBy = "created_at"
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: q.SortDesc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.SortDesc})
	if q.From > 0 {
		tx = tx.Offset(q.From)
	}
	if q.Size > 0 {
		tx = tx.Limit(q.Size)
	}

	var out []*models.Invoice
	if err := tx.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r invoiceRepo) CompareAndSwap(ctx context.Context, from types.InvoiceStatus, next *models.Invoice) error {
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", next.ID, from).
		Select("*").Omit("id", "created_at").
		Updates(next)
	return affected(res)
}

func (r invoiceRepo) SwapPaymentTx(ctx context.Context, id, old, next string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ? AND COALESCE(payment_tx, '') = ?", id, types.InvoiceStatusPending, old).
		Updates(map[string]any{"payment_tx": next, "updated_at": now})
	return affected(res)
}

type consentRepo struct{ db *gorm.DB }

func (r consentRepo) Create(ctx context.Context, c *models.PaymentConsent) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r consentRepo) Get(ctx context.Context, id string) (*models.PaymentConsent, error) {
	return first[models.PaymentConsent](r.db.WithContext(ctx), "id = ?", id)
}

func (r consentRepo) List(ctx context.Context, q store.ConsentQuery) ([]*models.PaymentConsent, error) {
	tx := r.db.WithContext(ctx).Model(&models.PaymentConsent{})
	if q.Subscriber != "" {
		tx = tx.Where("subscriber = ?", q.Subscriber)
	}
	if q.Merchant != "" {
		tx = tx.Where("merchant = ?", q.Merchant)
	}
	if q.PlanID != "" {
		tx = tx.Where("plan_id = ?", q.PlanID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var out []*models.PaymentConsent
	if err := tx.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r consentRepo) Debit(ctx context.Context, id string, amount int64, now time.Time) (*models.PaymentConsent, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.PaymentConsent{}).
		Where("id = ? AND status = ? AND remaining >= ? AND max_per_period >= ? AND (expires_at IS NULL OR expires_at > ?)",
			id, types.ConsentStatusActive, amount, amount, now).
		Updates(map[string]any{
			"remaining": gorm.Expr("remaining - ?", amount),
			"status": gorm.Expr("CASE WHEN remaining - ? = 0 THEN ? ELSE status END",
				amount, types.ConsentStatusExhausted),
			"updated_at": now,
		})
	if err := affected(res); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r consentRepo) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentConsent{}).
		Where("id = ? AND status <> ?", id, types.ConsentStatusRevoked).
		Updates(map[string]any{"status": types.ConsentStatusRevoked, "revoked_at": now, "updated_at": now})
	if err := affected(res); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return false, err
		}
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

type stakeRepo struct{ db *gorm.DB }

func (r stakeRepo) Get(ctx context.Context, subscriber string) (*models.StakePosition, error) {
	return first[models.StakePosition](r.db.WithContext(ctx), "subscriber = ?", subscriber)
}

func (r stakeRepo) Create(ctx context.Context, p *models.StakePosition) error {
	if p.Version == 0 {
		p.Version = 1
	}
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r stakeRepo) Update(ctx context.Context, p *models.StakePosition) error {
	expected := p.Version
	next := *p
	next.Version = expected + 1
	res := r.db.WithContext(ctx).Model(&models.StakePosition{}).
		Where("subscriber = ? AND version = ?", p.Subscriber, expected).
		Select("*").Omit("subscriber", "created_at").
		Updates(&next)
	if err := affected(res); err != nil {
		return err
	}
	p.Version = next.Version
	return nil
}

func (r stakeRepo) Delete(ctx context.Context, subscriber string, version int64) error {
	res := r.db.WithContext(ctx).Where("subscriber = ? AND version = ?", subscriber, version).Delete(&models.StakePosition{})
	return affected(res)
}

func (r stakeRepo) Totals(ctx context.Context) (store.StakeTotals, error) {
	var t store.StakeTotals
	err := r.db.WithContext(ctx).Model(&models.StakePosition{}).
		Select("COUNT(*) AS positions, COALESCE(SUM(principal),0) AS total_staked, " +
			"COALESCE(SUM(total_claimed),0) AS total_claimed, COALESCE(SUM(total_subscriptions_paid),0) AS total_paid").
		Scan(&t).Error
	return t, err
}

type chainTxRepo struct{ db *gorm.DB }

func (r chainTxRepo) Create(ctx context.Context, tx *models.ChainTransaction) error {
	return translate(r.db.WithContext(ctx).Create(tx).Error)
}

func (r chainTxRepo) GetByHash(ctx context.Context, hash string) (*models.ChainTransaction, error) {
	return first[models.ChainTransaction](r.db.WithContext(ctx), "hash = ?", hash)
}

func (r chainTxRepo) Save(ctx context.Context, tx *models.ChainTransaction) error {
	return translate(r.db.WithContext(ctx).Save(tx).Error)
}

type changeLogRepo struct{ db *gorm.DB }

func (r changeLogRepo) Create(ctx context.Context, l *models.ChangeLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r changeLogRepo) List(ctx context.Context, entityType, entityID string) ([]*models.ChangeLog, error) {
	var out []*models.ChangeLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").Find(&out).Error
	return out, err
}
