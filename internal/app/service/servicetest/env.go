package servicetest

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/billing"
	"github.com/fatflowers/casperflow/internal/app/service/changelog"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/app/service/plan"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/statistics"
	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/app/service/transaction"
	"github.com/fatflowers/casperflow/internal/app/service/usage"
	"github.com/fatflowers/casperflow/internal/store/memstore"
	"github.com/fatflowers/casperflow/pkg/config"
)

// Start is the fixed instant every Env clock begins at.
var Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Env is the full service graph on the memory store.
type Env struct {
	Config *config.Config
	Clock  *FakeClock
	Chain  *FakeChain
	Events *Recorder
	Cache  *MemCache
	Store  *memstore.Store
	Log    *zap.SugaredLogger

	Changes       *changelog.Service
	Plans         *plan.Service
	Usage         *usage.Service
	Consents      *consent.Service
	Stakes        *stake.Service
	Transactions  transaction.TransactionManager
	Billing       *billing.Service
	Subscriptions *subscription.Service
	Statistics    *statistics.Service
}

// TestConfig is the configuration Env uses before options apply.
func TestConfig() *config.Config {
	return &config.Config{
		Env:     config.EnvDev,
		Storage: config.StorageConfig{Driver: config.StorageDriverMemory},
		Billing: config.BillingConfig{ProtocolFeeBps: 100},
		Stake:   config.StakeConfig{APYBps: 800, MinStake: 100},
		Renewal: config.RenewalConfig{BatchSize: 100},
		Casper: config.CasperConfig{
			Network:        "casper-test",
			PollInterval:   5 * time.Millisecond,
			ConfirmTimeout: 250 * time.Millisecond,
		},
		Redis: config.RedisConfig{TTL: 5 * time.Minute},
	}
}

func NewEnv(t testing.TB, opts ...func(*config.Config)) *Env {
	t.Helper()
	cfg := TestConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	e := &Env{
		Config: cfg,
		Clock:  NewFakeClock(Start),
		Chain:  NewFakeChain(),
		Events: &Recorder{},
		Cache:  NewMemCache(),
		Store:  memstore.New(),
		Log:    zap.NewNop().Sugar(),
	}
	now := e.Clock.Now

	e.Changes = changelog.New(e.Store, e.Log, now)
	t.Cleanup(e.Changes.Wait)
	e.Plans = plan.NewService(e.Store, e.Changes, e.Log, now)
	e.Usage = usage.NewService(e.Store, e.Log, now)
	e.Consents = consent.NewService(e.Store, e.Changes, e.Events, nil, e.Log, now)
	e.Stakes = stake.NewService(e.Store, e.Changes, e.Events, nil, e.Log, now, cfg)
	e.Transactions = transaction.NewService(cfg, e.Log, e.Store, e.Chain, now)
	e.Billing = billing.NewService(cfg, e.Log, e.Store, e.Changes, e.Events, nil, e.Transactions, e.Stakes, now)
	e.Subscriptions = subscription.NewService(cfg, e.Log, e.Store, e.Changes, e.Events, nil, e.Cache, e.Billing, e.Stakes, now)
	e.Statistics = statistics.NewService(e.Log, e.Store, now)
	return e
}
