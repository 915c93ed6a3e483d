package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/sharing/ledger"
	"haven/pkg/platform/circuit"
)

type flakyProducer struct {
	failures int
	calls    int
	topic    string
	headers  map[string]string
}

func (p *flakyProducer) Produce(_ context.Context, topic, _ string, _ []byte, headers map[string]string) error {
	p.calls++
	p.topic = topic
	p.headers = headers
	if p.calls <= p.failures {
		return errors.New("leader not available")
	}
	return nil
}

func TestKafkaSendRetriesThroughBreaker(t *testing.T) {
	producer := &flakyProducer{failures: 2}
	breaker := circuit.New("test", circuit.WithRetry(3, time.Millisecond, time.Millisecond))
	k := NewKafka(producer, "ledger", breaker)

	err := k.Send(context.Background(), ledger.Message{Key: "k", FactType: "CE_EXPORT", Payload: []byte(`{}`)})

	require.NoError(t, err)
	assert.Equal(t, 3, producer.calls)
	assert.Equal(t, "ledger", producer.topic)
	assert.Equal(t, "CE_EXPORT", producer.headers["fact_type"])
}

func TestKafkaSendFailsFastWhenOpen(t *testing.T) {
	producer := &flakyProducer{failures: 100}
	breaker := circuit.New("test",
		circuit.WithRetry(0, time.Millisecond, time.Millisecond),
		circuit.WithFailureThreshold(1),
		circuit.WithOpenTimeout(time.Minute))
	k := NewKafka(producer, "ledger", breaker)

	require.Error(t, k.Send(context.Background(), ledger.Message{Key: "k"}))
	err := k.Send(context.Background(), ledger.Message{Key: "k"})

	require.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, 1, producer.calls)
}
