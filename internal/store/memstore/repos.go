package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/types"
)

func clonePlan(p *models.Plan) *models.Plan {
	cp := *p
	return &cp
}

type planRepo struct{ s *Store }

func (r planRepo) Create(_ context.Context, p *models.Plan) error {
	defer r.s.lock()()
	if _, ok := r.s.d.plans[p.ID]; ok {
		return store.ErrDuplicate
	}
	put(r.s, r.s.d.plans, p.ID, clonePlan(p))
	return nil
}

func (r planRepo) Get(_ context.Context, id string) (*models.Plan, error) {
	defer r.s.lock()()
	p, ok := r.s.d.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePlan(p), nil
}

func (r planRepo) Save(_ context.Context, p *models.Plan) error {
	defer r.s.lock()()
	cur, ok := r.s.d.plans[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	p.SubscriberCount, p.TotalRevenue = cur.SubscriberCount, cur.TotalRevenue
	put(r.s, r.s.d.plans, p.ID, clonePlan(p))
	return nil
}

func (r planRepo) List(_ context.Context, q store.PlanQuery) ([]*models.Plan, error) {
	defer r.s.lock()()
	out := lo.FilterMap(lo.Values(r.s.d.plans), func(p *models.Plan, _ int) (*models.Plan, bool) {
		if q.Merchant != "" && p.Merchant != q.Merchant {
			return nil, false
		}
		if q.ActiveOnly && !p.Active {
			return nil, false
		}
		return clonePlan(p), true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID) })
	return out, nil
}

func (r planRepo) IncrementStats(_ context.Context, id string, subscribers, revenue int64) error {
	defer r.s.lock()()
	p, ok := r.s.d.plans[id]
	if !ok {
		return store.ErrNotFound
	}
	next := clonePlan(p)
	next.SubscriberCount += subscribers
	next.TotalRevenue += revenue
	put(r.s, r.s.d.plans, id, next)
	return nil
}

type subscriptionRepo struct{ s *Store }

func (r subscriptionRepo) activePairTaken(sub *models.Subscription) bool {
	for _, other := range r.s.d.subs {
		if other.ID != sub.ID && other.IsActive() && other.PlanID == sub.PlanID && other.Subscriber == sub.Subscriber {
			return true
		}
	}
	return false
}

func (r subscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	defer r.s.lock()()
	if _, ok := r.s.d.subs[sub.ID]; ok {
		return store.ErrDuplicate
	}
	if sub.IsActive() && r.activePairTaken(sub) {
		return store.ErrDuplicate
	}
	for _, other := range r.s.d.subs {
		if other.APIKey == sub.APIKey {
			return store.ErrDuplicate
		}
	}
	put(r.s, r.s.d.subs, sub.ID, sub.Clone())
	return nil
}

func (r subscriptionRepo) Get(_ context.Context, id string) (*models.Subscription, error) {
	defer r.s.lock()()
	sub, ok := r.s.d.subs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub.Clone(), nil
}

func (r subscriptionRepo) GetByAPIKey(_ context.Context, apiKey string) (*models.Subscription, error) {
	defer r.s.lock()()
	sub, ok := lo.Find(lo.Values(r.s.d.subs), func(s *models.Subscription) bool { return s.APIKey == apiKey })
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub.Clone(), nil
}

func (r subscriptionRepo) FindActive(_ context.Context, planID, subscriber string) (*models.Subscription, error) {
	defer r.s.lock()()
	sub, ok := lo.Find(lo.Values(r.s.d.subs), func(s *models.Subscription) bool {
		return s.IsActive() && s.PlanID == planID && s.Subscriber == subscriber
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub.Clone(), nil
}

func (r subscriptionRepo) HasTrial(_ context.Context, planID, subscriber string) (bool, error) {
	defer r.s.lock()()
	return lo.SomeBy(lo.Values(r.s.d.subs), func(s *models.Subscription) bool {
		return s.StartedAsTrial && s.PlanID == planID && s.Subscriber == subscriber
	}), nil
}

func (r subscriptionRepo) List(_ context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	defer r.s.lock()()
	out := lo.FilterMap(lo.Values(r.s.d.subs), func(s *models.Subscription, _ int) (*models.Subscription, bool) {
		ok := (q.Subscriber == "" || s.Subscriber == q.Subscriber) &&
			(q.Merchant == "" || s.Merchant == q.Merchant) &&
			(q.PlanID == "" || s.PlanID == q.PlanID) &&
			(q.Status == "" || s.Status == q.Status)
		return s.Clone(), ok
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r subscriptionRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	defer r.s.lock()()
	out := lo.FilterMap(lo.Values(r.s.d.subs), func(s *models.Subscription, _ int) (*models.Subscription, bool) {
		return s.Clone(), s.IsActive() && !s.ExpiresAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r subscriptionRepo) CompareAndSwap(_ context.Context, prev, next *models.Subscription) error {
	defer r.s.lock()()
	cur, ok := r.s.d.subs[prev.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != prev.Status || !cur.ExpiresAt.Equal(prev.ExpiresAt) {
		return store.ErrConflict
	}
	if next.IsActive() && r.activePairTaken(next) {
		return store.ErrDuplicate
	}
	put(r.s, r.s.d.subs, prev.ID, next.Clone())
	return nil
}

type usageRepo struct{ s *Store }

func (r usageRepo) Append(_ context.Context, records ...*models.UsageRecord) error {
	defer r.s.lock()()
	for _, rec := range records {
		cp := *rec
		list := r.s.d.usage[rec.SubscriptionID]
		put(r.s, r.s.d.usage, rec.SubscriptionID, append(list[:len(list):len(list)], &cp))
	}
	return nil
}

func (r usageRepo) inWindow(subscriptionID string, from, to time.Time) []*models.UsageRecord {
	return lo.Filter(r.s.d.usage[subscriptionID], func(u *models.UsageRecord, _ int) bool {
		return !u.RecordedAt.Before(from) && u.RecordedAt.Before(to)
	})
}

func (r usageRepo) Sum(_ context.Context, subscriptionID string, from, to time.Time) (int64, error) {
	defer r.s.lock()()
	var sum int64
	for _, u := range r.inWindow(subscriptionID, from, to) {
		next, err := types.AddMotes(sum, u.Units)
		if err != nil {
			return 0, err
		}
		sum = next
	}
	return sum, nil
}

func (r usageRepo) List(_ context.Context, subscriptionID string, from, to time.Time) ([]*models.UsageRecord, error) {
	defer r.s.lock()()
	return lo.Map(r.inWindow(subscriptionID, from, to), func(u *models.UsageRecord, _ int) *models.UsageRecord {
		cp := *u
		return &cp
	}), nil
}

type recorderRepo struct{ s *Store }

func (r recorderRepo) Authorize(_ context.Context, rec *models.UsageRecorder) error {
	defer r.s.lock()()
	k := recorderKey{rec.PlanID, rec.Recorder}
	if _, ok := r.s.d.recorders[k]; ok {
		return nil
	}
	cp := *rec
	put(r.s, r.s.d.recorders, k, &cp)
	return nil
}

func (r recorderRepo) Revoke(_ context.Context, planID, recorder string) error {
	defer r.s.lock()()
	remove(r.s, r.s.d.recorders, recorderKey{planID, recorder})
	return nil
}

func (r recorderRepo) IsAuthorized(_ context.Context, planID, recorder string) (bool, error) {
	defer r.s.lock()()
	_, ok := r.s.d.recorders[recorderKey{planID, recorder}]
	return ok, nil
}

func (r recorderRepo) List(_ context.Context, planID string) ([]*models.UsageRecorder, error) {
	defer r.s.lock()()
	out := lo.FilterMap(lo.Values(r.s.d.recorders), func(rec *models.UsageRecorder, _ int) (*models.UsageRecorder, bool) {
		cp := *rec
		return &cp, rec.PlanID == planID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Recorder < out[j].Recorder })
	return out, nil
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Create(_ context.Context, inv *models.Invoice) error {
	defer r.s.lock()()
	if _, ok := r.s.d.invoices[inv.ID]; ok {
		return store.ErrDuplicate
	}
	for _, other := range r.s.d.invoices {
		if other.SubscriptionID == inv.SubscriptionID && other.PeriodStart.Equal(inv.PeriodStart) {
			return store.ErrDuplicate
		}
	}
	put(r.s, r.s.d.invoices, inv.ID, inv.Clone())
	return nil
}

func (r invoiceRepo) Get(_ context.Context, id string) (*models.Invoice, error) {
	defer r.s.lock()()
	inv, ok := r.s.d.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return inv.Clone(), nil
}

func (r invoiceRepo) FindByPeriod(_ context.Context, subscriptionID string, periodStart time.Time) (*models.Invoice, error) {
	defer r.s.lock()()
	inv, ok := lo.Find(lo.Values(r.s.d.invoices), func(i *models.Invoice) bool {
		return i.SubscriptionID == subscriptionID && i.PeriodStart.Equal(periodStart)
	})
	if !ok {
		return nil, store.ErrNotFound
	}
	return inv.Clone(), nil
}

// invoiceRow exposes an invoice by column name for filter evaluation.
func invoiceRow(inv *models.Invoice) map[string]any {
	raw, _ := json.Marshal(inv)
	row := map[string]any{}
	_ = json.Unmarshal(raw, &row)
	return row
}

func (r invoiceRepo) List(_ context.Context, q store.InvoiceQuery) ([]*models.Invoice, int64, error) {
	defer r.s.lock()()
	matched := lo.FilterMap(lo.Values(r.s.d.invoices), func(inv *models.Invoice, _ int) (*models.Invoice, bool) {
		if q.Subscriber != "" && inv.Subscriber != q.Subscriber {
			return nil, false
		}
		if q.Merchant != "" && inv.Merchant != q.Merchant {
			return nil, false
		}
		if len(q.Filters) > 0 && !q.Filters.Match(invoiceRow(inv)) {
			return nil, false
		}
		return inv.Clone(), true
	})

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	rows := lo.Map(matched, func(inv *models.Invoice, _ int) map[string]any { return invoiceRow(inv) })
	idx := lo.Range(len(matched))
	sort.SliceStable(idx, func(a, b int) bool {
		c := types.CompareValues(rows[idx[a]][sortBy], rows[idx[b]][sortBy])
		if c == 0 {
			c = types.CompareValues(rows[idx[a]]["id"], rows[idx[b]]["id"])
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})
	sorted := lo.Map(idx, func(i int, _ int) *models.Invoice { return matched[i] })

	total := int64(len(sorted))
	if q.From > 0 {
		if q.From >= len(sorted) {
			return []*models.Invoice{}, total, nil
		}
		sorted = sorted[q.From:]
	}
	if q.Size > 0 && len(sorted) > q.Size {
		sorted = sorted[:q.Size]
	}
	return sorted, total, nil
}

func (r invoiceRepo) CompareAndSwap(_ context.Context, from types.InvoiceStatus, next *models.Invoice) error {
	defer r.s.lock()()
	cur, ok := r.s.d.invoices[next.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != from {
		return store.ErrConflict
	}
	put(r.s, r.s.d.invoices, next.ID, next.Clone())
	return nil
}

func (r invoiceRepo) SwapPaymentTx(_ context.Context, id, old, next string, now time.Time) error {
	defer r.s.lock()()
	cur, ok := r.s.d.invoices[id]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != types.InvoiceStatusPending || cur.PaymentTx != old {
		return store.ErrConflict
	}
	upd := cur.Clone()
	upd.PaymentTx = next
	upd.UpdatedAt = now
	put(r.s, r.s.d.invoices, id, upd)
	return nil
}

type consentRepo struct{ s *Store }

func (r consentRepo) Create(_ context.Context, c *models.PaymentConsent) error {
	defer r.s.lock()()
	if _, ok := r.s.d.consents[c.ID]; ok {
		return store.ErrDuplicate
	}
	put(r.s, r.s.d.consents, c.ID, c.Clone())
	return nil
}

func (r consentRepo) Get(_ context.Context, id string) (*models.PaymentConsent, error) {
	defer r.s.lock()()
	c, ok := r.s.d.consents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (r consentRepo) List(_ context.Context, q store.ConsentQuery) ([]*models.PaymentConsent, error) {
	defer r.s.lock()()
	out := lo.FilterMap(lo.Values(r.s.d.consents), func(c *models.PaymentConsent, _ int) (*models.PaymentConsent, bool) {
		ok := (q.Subscriber == "" || c.Subscriber == q.Subscriber) &&
			(q.Merchant == "" || c.Merchant == q.Merchant) &&
			(q.PlanID == "" || c.PlanID == q.PlanID) &&
			(q.Status == "" || c.Status == q.Status)
		return c.Clone(), ok
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r consentRepo) Debit(_ context.Context, id string, amount int64, now time.Time) (*models.PaymentConsent, error) {
	defer r.s.lock()()
	cur, ok := r.s.d.consents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !cur.Covers(amount, now) {
		return nil, store.ErrConflict
	}
	next := cur.Clone()
	next.Remaining -= amount
	if next.Remaining == 0 {
		next.Status = types.ConsentStatusExhausted
	}
	next.UpdatedAt = now
	put(r.s, r.s.d.consents, id, next)
	return next.Clone(), nil
}

func (r consentRepo) Revoke(_ context.Context, id string, now time.Time) (bool, error) {
	defer r.s.lock()()
	cur, ok := r.s.d.consents[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if cur.Status == types.ConsentStatusRevoked {
		return false, nil
	}
	next := cur.Clone()
	next.Status = types.ConsentStatusRevoked
	next.RevokedAt = &now
	next.UpdatedAt = now
	put(r.s, r.s.d.consents, id, next)
	return true, nil
}

type stakeRepo struct{ s *Store }

func (r stakeRepo) Get(_ context.Context, subscriber string) (*models.StakePosition, error) {
	defer r.s.lock()()
	p, ok := r.s.d.stakes[subscriber]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (r stakeRepo) Create(_ context.Context, p *models.StakePosition) error {
	defer r.s.lock()()
	if _, ok := r.s.d.stakes[p.Subscriber]; ok {
		return store.ErrDuplicate
	}
	if p.Version == 0 {
		p.Version = 1
	}
	put(r.s, r.s.d.stakes, p.Subscriber, p.Clone())
	return nil
}

func (r stakeRepo) Update(_ context.Context, p *models.StakePosition) error {
	defer r.s.lock()()
	cur, ok := r.s.d.stakes[p.Subscriber]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != p.Version {
		return store.ErrConflict
	}
	p.Version++
	put(r.s, r.s.d.stakes, p.Subscriber, p.Clone())
	return nil
}

func (r stakeRepo) Delete(_ context.Context, subscriber string, version int64) error {
	defer r.s.lock()()
	cur, ok := r.s.d.stakes[subscriber]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != version {
		return store.ErrConflict
	}
	remove(r.s, r.s.d.stakes, subscriber)
	return nil
}

func (r stakeRepo) Totals(_ context.Context) (store.StakeTotals, error) {
	defer r.s.lock()()
	var t store.StakeTotals
	for _, p := range r.s.d.stakes {
		t.Positions++
		t.TotalStaked += p.Principal
		t.TotalClaimed += p.TotalClaimed
		t.TotalPaid += p.TotalSubscriptionsPaid
	}
	return t, nil
}

type chainTxRepo struct{ s *Store }

func (r chainTxRepo) Create(_ context.Context, tx *models.ChainTransaction) error {
	defer r.s.lock()()
	if _, ok := r.s.d.chainTxs[tx.Hash]; ok {
		return store.ErrDuplicate
	}
	put(r.s, r.s.d.chainTxs, tx.Hash, tx.Clone())
	return nil
}

func (r chainTxRepo) GetByHash(_ context.Context, hash string) (*models.ChainTransaction, error) {
	defer r.s.lock()()
	tx, ok := r.s.d.chainTxs[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tx.Clone(), nil
}

func (r chainTxRepo) Save(_ context.Context, tx *models.ChainTransaction) error {
	defer r.s.lock()()
	put(r.s, r.s.d.chainTxs, tx.Hash, tx.Clone())
	return nil
}

type changeLogRepo struct{ s *Store }

func (r changeLogRepo) Create(_ context.Context, l *models.ChangeLog) error {
	defer r.s.lock()()
	cp := *l
	n := len(r.s.d.changeLogs)
	r.s.d.changeLogs = append(r.s.d.changeLogs, &cp)
	r.s.record(func() { r.s.d.changeLogs = r.s.d.changeLogs[:n] })
	return nil
}

func (r changeLogRepo) List(_ context.Context, entityType, entityID string) ([]*models.ChangeLog, error) {
	defer r.s.lock()()
	return lo.FilterMap(r.s.d.changeLogs, func(l *models.ChangeLog, _ int) (*models.ChangeLog, bool) {
		cp := *l
		return &cp, l.EntityType == entityType && l.EntityID == entityID
	}), nil
}
