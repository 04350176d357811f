// Package memstore is an in-process store for development and tests. Every
// transaction holds one store-wide mutex, so writers never conflict and
// throughput does not scale with cores; prod runs on gormstore. Rollback
// goes through an undo journal and every read returns a copy so callers
// never alias stored rows.
package memstore

import (
	"context"
	"sync"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
)

type data struct {
	mu sync.Mutex

	plans      map[string]*models.Plan
	subs       map[string]*models.Subscription
	usage      map[string][]*models.UsageRecord
	recorders  map[recorderKey]*models.UsageRecorder
	invoices   map[string]*models.Invoice
	consents   map[string]*models.PaymentConsent
	stakes     map[string]*models.StakePosition
	chainTxs   map[string]*models.ChainTransaction
	changeLogs []*models.ChangeLog
}

type recorderKey struct {
	planID   string
	recorder string
}

type journal struct {
	undo []func()
}

// Store implements store.Store.
type Store struct {
	d  *data
	tx *journal
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{d: &data{
		plans:     make(map[string]*models.Plan),
		subs:      make(map[string]*models.Subscription),
		usage:     make(map[string][]*models.UsageRecord),
		recorders: make(map[recorderKey]*models.UsageRecorder),
		invoices:  make(map[string]*models.Invoice),
		consents:  make(map[string]*models.PaymentConsent),
		stakes:    make(map[string]*models.StakePosition),
		chainTxs:  make(map[string]*models.ChainTransaction),
	}}
}

// lock takes the store mutex unless the caller already holds it through Transaction.
func (s *Store) lock() func() {
	if s.tx != nil {
		return func() {}
	}
	s.d.mu.Lock()
	return s.d.mu.Unlock
}

func (s *Store) record(undo func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, undo)
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	txs := &Store{d: s.d, tx: &journal{}}
	rollback := func() {
		for i := len(txs.tx.undo) - 1; i >= 0; i-- {
			txs.tx.undo[i]()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()
	if err = fn(txs); err != nil {
		rollback()
	}
	return err
}

func put[K comparable, V any](s *Store, m map[K]V, k K, v V) {
	prev, existed := m[k]
	m[k] = v
	s.record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func remove[K comparable, V any](s *Store, m map[K]V, k K) {
	prev, existed := m[k]
	if !existed {
		return
	}
	delete(m, k)
	s.record(func() { m[k] = prev })
}

func (s *Store) Plans() store.PlanRepository                 { return planRepo{s} }
func (s *Store) Subscriptions() store.SubscriptionRepository { return subscriptionRepo{s} }
func (s *Store) Usage() store.UsageRepository                { return usageRepo{s} }
func (s *Store) Recorders() store.RecorderRepository         { return recorderRepo{s} }
func (s *Store) Invoices() store.InvoiceRepository           { return invoiceRepo{s} }
func (s *Store) Consents() store.ConsentRepository           { return consentRepo{s} }
func (s *Store) Stakes() store.StakeRepository               { return stakeRepo{s} }
func (s *Store) ChainTxs() store.ChainTxRepository           { return chainTxRepo{s} }
func (s *Store) ChangeLogs() store.ChangeLogRepository       { return changeLogRepo{s} }
