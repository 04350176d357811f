// Package renewal runs the periodic expiry sweep.
package renewal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/app/service/subscription"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/metrics"
	"github.com/fatflowers/casperflow/pkg/tool"
)

// Sweeper is the part of the subscription service the scheduler drives.
type Sweeper interface {
	ExpireDue(ctx context.Context, now time.Time) ([]*models.Subscription, error)
}

var _ Sweeper = (*subscription.Service)(nil)

// Scheduler calls ExpireDue every interval. Several replicas may run it at
// once; the sweep itself is idempotent.
type Scheduler struct {
	sweeper  Sweeper
	log      *zap.SugaredLogger
	metrics  *metrics.Business
	now      tool.Clock
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg *config.Config, log *zap.SugaredLogger, subs *subscription.Service, m *metrics.Business, now tool.Clock) *Scheduler {
	return New(subs, log, m, now, cfg.Renewal.Interval)
}

func New(sweeper Sweeper, log *zap.SugaredLogger, m *metrics.Business, now tool.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{sweeper: sweeper, log: log, metrics: m, now: now, interval: interval}
}

// RunOnce performs one sweep at the current time.
func (s *Scheduler) RunOnce(ctx context.Context) ([]*models.Subscription, error) {
	start := time.Now()
	defer s.metrics.ObserveProcess("renewal", "sweep", start)
	return s.sweeper.ExpireDue(ctx, s.now())
}

// Start launches the sweep loop. A zero interval disables it.
func (s *Scheduler) Start(context.Context) error {
	if s.interval <= 0 {
		s.log.Infow("renewal sweep disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(logctx.WithTraceID(context.Background(), "renewal"))
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Infow("renewal sweep started", "interval", s.interval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				logctx.FromCtx(ctx, s.log).Errorw("renewal sweep failed", "err", err)
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop(context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
}

var Module = fx.Options(
	fx.Provide(NewScheduler),
	fx.Invoke(register),
)
