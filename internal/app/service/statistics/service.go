package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	historyDays = 30
	day         = 24 * time.Hour
	// monthLength normalises non-monthly prices into MRR.
	monthLength = 30 * day
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	store store.Store
	log   *zap.SugaredLogger
	now   tool.Clock
}

func NewService(log *zap.SugaredLogger, st store.Store, now tool.Clock) *Service {
	return &Service{store: st, log: log, now: now}
}

type PlanPerformance struct {
	PlanID      string `json:"plan_id"`
	PlanName    string `json:"plan_name"`
	Subscribers int    `json:"subscribers"`
	Active      int    `json:"active"`
	Revenue     int64  `json:"revenue"`
	RevenueCSPR string `json:"revenue_cspr"`
}

type DailyRevenue struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

// MerchantStats summarises one merchant. Amounts are motes net of the
// protocol fee, rates are percentages rounded to two decimals.
type MerchantStats struct {
	Merchant         string             `json:"merchant"`
	TotalRevenue     int64              `json:"total_revenue"`
	TotalRevenueCSPR string             `json:"total_revenue_cspr"`
	ProtocolFees     int64              `json:"protocol_fees"`
	TotalSubscribers int                `json:"total_subscribers"`
	Active           int                `json:"active"`
	Trial            int                `json:"trial"`
	Cancelled        int                `json:"cancelled"`
	Expired          int                `json:"expired"`
	ConversionRate   float64            `json:"conversion_rate"`
	ChurnRate        float64            `json:"churn_rate"`
	MRR              int64              `json:"mrr"`
	Plans            []*PlanPerformance `json:"plans"`
	RevenueHistory   []DailyRevenue     `json:"revenue_history"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(2).InexactFloat64()
}

// monthly normalises the price of one period to 30 days.
func monthly(sub *models.Subscription) int64 {
	length, err := sub.PeriodDuration()
	if err != nil || length <= 0 {
		return 0
	}
	return decimal.NewFromInt(sub.Price).
		Mul(decimal.NewFromInt(int64(monthLength))).
		Div(decimal.NewFromInt(int64(length))).
		Truncate(0).IntPart()
}

func (s *Service) load(ctx context.Context, merchant string) ([]*models.Subscription, []*models.Invoice, error) {
	var (
		wg       sync.WaitGroup
		subs     []*models.Subscription
		invoices []*models.Invoice
		subErr   error
		invErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		subs, subErr = s.store.Subscriptions().List(ctx, store.SubscriptionQuery{Merchant: merchant})
	}()
	go func() {
		defer wg.Done()
		invoices, _, invErr = s.store.Invoices().List(ctx, store.InvoiceQuery{Merchant: merchant})
	}()
	wg.Wait()
	if subErr != nil {
		return nil, nil, fmt.Errorf("failed to list merchant subscriptions: %w", subErr)
	}
	if invErr != nil {
		return nil, nil, fmt.Errorf("failed to list merchant invoices: %w", invErr)
	}
	return subs, invoices, nil
}

// GetMerchantStats aggregates revenue and subscriber figures for merchant
// as of now. A zero now uses the service clock.
func (s *Service) GetMerchantStats(ctx context.Context, merchant string, now time.Time) (*MerchantStats, error) {
	if merchant == "" {
		return nil, errs.Invalidf("merchant is required")
	}
	if now.IsZero() {
		now = s.now()
	}
	subs, invoices, err := s.load(ctx, merchant)
	if err != nil {
		return nil, err
	}

	out := &MerchantStats{Merchant: merchant, TotalSubscribers: len(subs), GeneratedAt: now}
	plans := map[string]*PlanPerformance{}
	planOf := func(id, name string) *PlanPerformance {
		p, ok := plans[id]
		if !ok {
			p = &PlanPerformance{PlanID: id, PlanName: name}
			plans[id] = p
		}
		return p
	}

	trials, converted := 0, 0
	for _, sub := range subs {
		perf := planOf(sub.PlanID, sub.PlanName)
		perf.Subscribers++
		if sub.StartedAsTrial {
			trials++
			if !sub.IsTrial {
				converted++
			}
		}
		switch sub.Status {
		case types.SubscriptionStatusActive:
			perf.Active++
			if sub.IsTrial {
				out.Trial++
				continue
			}
			out.Active++
			out.MRR += monthly(sub)
		case types.SubscriptionStatusCancelled:
			out.Cancelled++
		case types.SubscriptionStatusExpired:
			out.Expired++
		}
	}
	out.ConversionRate = percent(converted, trials)
	out.ChurnRate = percent(out.Cancelled+out.Expired, len(subs))

	paid := lo.Filter(invoices, func(inv *models.Invoice, _ int) bool {
		return inv.Status == types.InvoiceStatusPaid
	})
	first := now.UTC().Truncate(day).Add(-(historyDays - 1) * day)
	daily := make(map[string]int64, historyDays)
	for _, inv := range paid {
		net := inv.MerchantAmount()
		out.TotalRevenue += net
		out.ProtocolFees += inv.ProtocolFee
		planOf(inv.PlanID, "").Revenue += net
		if inv.PaidAt != nil && !inv.PaidAt.Before(first) && inv.PaidAt.Before(first.Add(historyDays*day)) {
			daily[inv.PaidAt.UTC().Format(time.DateOnly)] += net
		}
	}
	out.TotalRevenueCSPR = types.Motes(out.TotalRevenue).CSPR()

	out.RevenueHistory = make([]DailyRevenue, 0, historyDays)
	for i := range historyDays {
		date := first.Add(time.Duration(i) * day).Format(time.DateOnly)
		out.RevenueHistory = append(out.RevenueHistory, DailyRevenue{Date: date, Amount: daily[date]})
	}

	out.Plans = lo.Values(plans)
	for _, p := range out.Plans {
		p.RevenueCSPR = types.Motes(p.Revenue).CSPR()
	}
	sort.Slice(out.Plans, func(i, j int) bool {
		if out.Plans[i].Revenue != out.Plans[j].Revenue {
			return out.Plans[i].Revenue > out.Plans[j].Revenue
		}
		return out.Plans[i].PlanID < out.Plans[j].PlanID
	})

	logctx.FromCtx(ctx, s.log).Debugw("merchant stats computed", "merchant", merchant, "subscriptions", len(subs), "paid_invoices", len(paid))
	return out, nil
}
