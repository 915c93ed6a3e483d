package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "haven/pkg/platform/audit"
)

type fakeOutbox struct {
	pending []audit.OutboxEntry
}

func (f *fakeOutbox) Relay(ctx context.Context, limit int, publish audit.PublishFunc) (int, error) {
	batch := f.pending[:min(limit, len(f.pending))]
	ids, err := publish(ctx, batch)
	f.pending = f.pending[len(ids):]
	return len(ids), err
}

type recordingPublisher struct {
	seen []uuid.UUID
}

func (p *recordingPublisher) PublishOutbox(_ context.Context, entries []audit.OutboxEntry) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	p.seen = append(p.seen, ids...)
	return ids, nil
}

func TestDrainRelaysAllBatches(t *testing.T) {
	outbox := &fakeOutbox{}
	for range 5 {
		outbox.pending = append(outbox.pending, audit.OutboxEntry{ID: uuid.New()})
	}
	pub := &recordingPublisher{}
	w := NewWorker(outbox, pub, WithBatchSize(2))

	w.drain(context.Background())

	assert.Len(t, pub.seen, 5)
	assert.Empty(t, outbox.pending)
}

func TestRelayOnceHonoursBatchSize(t *testing.T) {
	outbox := &fakeOutbox{pending: []audit.OutboxEntry{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}}
	w := NewWorker(outbox, &recordingPublisher{}, WithBatchSize(2))

	n, err := w.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, outbox.pending, 1)
}
