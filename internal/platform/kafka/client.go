// Package kafka wraps the franz-go client used for ledger facts and the
// audit outbox relay.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"haven/internal/platform/config"
	audit "haven/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the wrapper uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Client produces records to the configured topics.
type Client struct {
	producer Producer
	cfg      config.Kafka
	logger   *slog.Logger
}

// New connects to the brokers. It returns nil when no brokers are configured.
func New(cfg config.Kafka, logger *slog.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(cfg.ProduceTimeout),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return NewWithProducer(cl, cfg, logger), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p Producer, cfg config.Kafka, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{producer: p, cfg: cfg, logger: logger}
}

// EnsureTopics creates the ledger and audit topics when they are missing.
func (c *Client) EnsureTopics(ctx context.Context) error {
	cl, ok := c.producer.(*kgo.Client)
	if !ok {
		return nil
	}
	adm := kadm.NewClient(cl)
	resps, err := adm.CreateTopics(ctx, c.cfg.Partitions, c.cfg.ReplicationFactor, nil,
		c.cfg.LedgerTopic, c.cfg.AuditTopic)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resps.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
		if r.Err == nil {
			c.logger.InfoContext(ctx, "kafka topic created", "topic", r.Topic)
		}
	}
	return nil
}

// Produce synchronously writes one record.
func (c *Client) Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := c.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// LedgerTopic is the topic ledger facts are written to.
func (c *Client) LedgerTopic() string {
	return c.cfg.LedgerTopic
}

// PublishOutbox writes audit outbox entries keyed by aggregate and returns
// the ids that were acknowledged.
func (c *Client) PublishOutbox(ctx context.Context, entries []audit.OutboxEntry) ([]uuid.UUID, error) {
	records := make([]*kgo.Record, len(entries))
	ids := make(map[*kgo.Record]uuid.UUID, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: c.cfg.AuditTopic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "outbox_id", Value: []byte(e.ID.String())},
			},
		}
		ids[records[i]] = e.ID
	}
	// Results arrive in completion order, not input order.
	results := c.producer.ProduceSync(ctx, records...)

	delivered := make([]uuid.UUID, 0, len(entries))
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		delivered = append(delivered, ids[r.Record])
	}
	return delivered, errors.Join(errs...)
}

func (c *Client) Health(ctx context.Context) error {
	return c.producer.Ping(ctx)
}

func (c *Client) Close() {
	c.producer.Close()
}
