// Package ledger publishes consent-ledger facts for exports, imports and
// recipient exports.
//
// Publication is best effort: the caller's operation has already committed,
// so every failure is logged and counted and never returned.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	"haven/pkg/requestcontext"
)

// Store persists consent ledger updates awaiting reconciliation.
type Store interface {
	SaveUpdate(ctx context.Context, u models.ConsentLedgerUpdate) error
	FindUpdate(ctx context.Context, id uuid.UUID) (models.ConsentLedgerUpdate, error)
	// MarkAcknowledged stores an acknowledged update. It returns
	// sentinel.ErrConflict when the stored row is no longer PENDING.
	MarkAcknowledged(ctx context.Context, u models.ConsentLedgerUpdate) error
	ListPending(ctx context.Context, limit int) ([]models.ConsentLedgerUpdate, error)
}

// Sink delivers encoded facts to the ledger bus.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

type Publisher struct {
	store   Store
	sink    Sink
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store Store, sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends fact to the sink.
func (p *Publisher) Publish(ctx context.Context, fact models.LedgerFact) {
	msg, err := Encode(fact)
	if err != nil {
		p.fail(ctx, fact.FactType(), stageEncode, err, "key", fact.Key())
		return
	}
	if err := p.sink.Send(ctx, msg); err != nil {
		p.fail(ctx, msg.FactType, stageSend, err, "key", msg.Key)
		return
	}
	p.metrics.incPublished(msg.FactType)
}

// PublishPendingUpdate records a PENDING ledger update for an imported
// record and emits the matching fact.
func (p *Publisher) PublishPendingUpdate(ctx context.Context, consentID, packetID uuid.UUID, sourceSystem, payloadHash string) {
	now := requestcontext.Now(ctx)
	update, err := models.NewConsentLedgerUpdate(uuid.New(), consentID, packetID, sourceSystem, payloadHash, now)
	if err != nil {
		p.fail(ctx, models.FactTypeImportPending, stagePersist, err, "consent_id", consentID)
		return
	}
	if err := p.store.SaveUpdate(ctx, update); err != nil {
		p.fail(ctx, models.FactTypeImportPending, stagePersist, err, "update_id", update.ID)
		return
	}
	p.Publish(ctx, models.ImportPendingFact{
		UpdateID:     update.ID,
		ConsentID:    update.ConsentID,
		PacketID:     update.PacketID,
		SourceSystem: update.SourceSystem,
		PayloadHash:  update.PayloadHash,
		Timestamp:    now,
	})
}

// Acknowledge marks a pending update reconciled. Unlike publication this is
// called by the reconciling consumer and reports errors.
func (p *Publisher) Acknowledge(ctx context.Context, updateID uuid.UUID) (*models.ConsentLedgerUpdate, error) {
	update, err := p.store.FindUpdate(ctx, updateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ledger update not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger update")
	}
	acked, err := update.Acknowledge(requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := p.store.MarkAcknowledged(ctx, acked); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "ledger update already acknowledged")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acknowledge ledger update")
	}
	return &acked, nil
}

// Pending lists updates awaiting reconciliation, oldest first.
func (p *Publisher) Pending(ctx context.Context, limit int) ([]models.ConsentLedgerUpdate, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	updates, err := p.store.ListPending(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending ledger updates")
	}
	return updates, nil
}

func (p *Publisher) fail(ctx context.Context, factType, stage string, err error, attrs ...any) {
	p.metrics.incFailure(factType, stage)
	args := append([]any{"fact_type", factType, "stage", stage, "error", err}, attrs...)
	p.logger.WarnContext(ctx, "ledger publication failed", args...)
}
