package sink

import (
	"context"
	"log/slog"

	"haven/internal/sharing/ledger"
	"haven/pkg/platform/circuit"
)

// Producer writes one record to a topic.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Kafka sends ledger facts to a topic through a circuit breaker.
type Kafka struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
}

func NewKafka(producer Producer, topic string, breaker *circuit.Breaker) *Kafka {
	if breaker == nil {
		breaker = circuit.New("ledger-kafka")
	}
	return &Kafka{producer: producer, topic: topic, breaker: breaker}
}

func (k *Kafka) Send(ctx context.Context, msg ledger.Message) error {
	headers := map[string]string{"fact_type": msg.FactType}
	return k.breaker.Do(ctx, func(ctx context.Context) error {
		return k.producer.Produce(ctx, k.topic, msg.Key, msg.Payload, headers)
	})
}

// Log writes facts to the logger. Used when no broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg ledger.Message) error {
	l.logger.InfoContext(ctx, "ledger fact",
		"fact_type", msg.FactType,
		"key", msg.Key,
		"payload", string(msg.Payload),
	)
	return nil
}
