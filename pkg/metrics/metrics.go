package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Extended range: covers 60000ms+ (15s - 75s) ---
	20000,  // 20s
	30000,  // 30s
	45000,  // 45s
	60000,  // 60s
	75000,  // 75s
	90000,  // 90s
	120000, // 120s
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var metricSubscriptionEvents = &Metric{
	ID:          "subEvt",
	Name:        "subscription_events_total",
	Description: "Subscription lifecycle transitions, partitioned by event.",
	Type:        "counter_vec",
	Args:        []string{"event"},
}

var metricInvoiceEvents = &Metric{
	ID:          "invEvt",
	Name:        "invoice_events_total",
	Description: "Invoice transitions, partitioned by status and payment method.",
	Type:        "counter_vec",
	Args:        []string{"status", "method"},
}

var metricChargedMotes = &Metric{
	ID:          "charged",
	Name:        "charged_motes_total",
	Description: "Motes collected from paid invoices, partitioned by payment method.",
	Type:        "counter_vec",
	Args:        []string{"method"},
}

var metricChainCalls = &Metric{
	ID:          "chain",
	Name:        "chain_calls_total",
	Description: "Calls to the Casper node, partitioned by operation and outcome.",
	Type:        "counter_vec",
	Args:        []string{"op", "outcome"},
}

const (
	RefererKey = "X-Referer"

	Subsystem = "casperflow"
)

// Business holds the domain counters. A nil *Business is a no-op so
// services and tests can run without a registry.
type Business struct {
	process       *prometheus.HistogramVec
	subscriptions *prometheus.CounterVec
	invoices      *prometheus.CounterVec
	charged       *prometheus.CounterVec
	chain         *prometheus.CounterVec
}

// NewBusiness registers the domain metrics on reg.
func NewBusiness(reg prometheus.Registerer) (*Business, error) {
	defs := []*Metric{MetricsBusinessProcess, metricSubscriptionEvents, metricInvoiceEvents, metricChargedMotes, metricChainCalls}
	collectors := make(map[string]prometheus.Collector, len(defs))
	for _, def := range defs {
		c := NewMetric(def, Subsystem)
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("register %s: %w", def.Name, err)
			}
			c = are.ExistingCollector
		}
		collectors[def.ID] = c
	}
	return &Business{
		process:       collectors[MetricsBusinessProcess.ID].(*prometheus.HistogramVec),
		subscriptions: collectors[metricSubscriptionEvents.ID].(*prometheus.CounterVec),
		invoices:      collectors[metricInvoiceEvents.ID].(*prometheus.CounterVec),
		charged:       collectors[metricChargedMotes.ID].(*prometheus.CounterVec),
		chain:         collectors[metricChainCalls.ID].(*prometheus.CounterVec),
	}, nil
}

// NewDefaultBusiness registers on the global registry served by /metrics.
func NewDefaultBusiness() (*Business, error) {
	return NewBusiness(prometheus.DefaultRegisterer)
}

func (b *Business) ObserveProcess(typ, subtype string, start time.Time) {
	if b == nil {
		return
	}
	b.process.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func (b *Business) SubscriptionEvent(event string) {
	if b == nil {
		return
	}
	b.subscriptions.WithLabelValues(event).Inc()
}

func (b *Business) InvoiceEvent(status, method string) {
	if b == nil {
		return
	}
	b.invoices.WithLabelValues(status, method).Inc()
}

func (b *Business) Charged(method string, amount int64) {
	if b == nil || amount <= 0 {
		return
	}
	b.charged.WithLabelValues(method).Add(float64(amount))
}

func (b *Business) ChainCall(op, outcome string) {
	if b == nil {
		return
	}
	b.chain.WithLabelValues(op, outcome).Inc()
}

// MillisecondsSince returns the elapsed time in fractional milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

var Module = fx.Options(
	fx.Provide(NewDefaultBusiness),
)
