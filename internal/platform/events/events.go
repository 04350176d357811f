// Package events publishes domain events after their transaction commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/pkg/config"
	"github.com/fatflowers/casperflow/pkg/logctx"
)

// Event types.
const (
	SubscriptionCreated   = "subscription.created"
	SubscriptionCancelled = "subscription.cancelled"
	SubscriptionRenewed   = "subscription.renewed"
	SubscriptionExpired   = "subscription.expired"
	TrialConverted        = "subscription.trial_converted"
	PaymentDue            = "payment.due"
	InvoiceCreated        = "invoice.created"
	InvoicePaid           = "invoice.paid"
	InvoiceFailed         = "invoice.failed"
	ConsentRevoked        = "consent.revoked"
)

type Event struct {
	Type string `json:"type"`
	// Key partitions the stream, usually the subscription id.
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	TraceID string    `json:"trace_id,omitempty"`
	Payload any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type kafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
	log         *zap.SugaredLogger
}

// NewKafkaPublisher wraps a SyncProducer. Topics are "<prefix>.<event type>".
func NewKafkaPublisher(producer sarama.SyncProducer, topicPrefix string, log *zap.SugaredLogger) Publisher {
	return &kafkaPublisher{producer: producer, topicPrefix: topicPrefix, log: log}
}

func (p *kafkaPublisher) topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.TraceID == "" {
		ev.TraceID = logctx.TraceID(ctx)
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic(ev.Type),
		Key:   sarama.StringEncoder(ev.Key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
		Timestamp: ev.At,
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	logctx.FromCtx(ctx, p.log).Debugw("event published", "type", ev.Type, "key", ev.Key, "partition", partition, "offset", offset)
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

// Emit publishes ev, logging a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, log *zap.SugaredLogger, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		logctx.FromCtx(ctx, log).Warnw("failed to publish event", "type", ev.Type, "key", ev.Key, "err", err)
	}
}

type noopPublisher struct{}

// NewNoop returns a Publisher that drops every event.
func NewNoop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close() error                         { return nil }

// NewSaramaConfig returns the producer settings used for domain events.
func NewSaramaConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_3_0_0
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Idempotent = true
	c.Producer.Retry.Max = 5
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Net.MaxOpenRequests = 1
	return c
}

// NewPublisher connects to kafka.brokers, or drops events when none are set.
func NewPublisher(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *config.Config) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		l.Infow("kafka brokers not configured, events are dropped")
		return NewNoop(), nil
	}
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := NewKafkaPublisher(producer, cfg.Kafka.TopicPrefix, l)
	lc.Append(fx.StopHook(p.Close))
	l.Infow("kafka producer ready", "brokers", cfg.Kafka.Brokers)
	return p, nil
}

var Module = fx.Options(
	fx.Provide(NewPublisher),
)
