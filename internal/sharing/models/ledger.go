package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// LedgerUpdateStatus tracks external acknowledgement of a ledger update.
type LedgerUpdateStatus string

const (
	LedgerUpdatePending      LedgerUpdateStatus = "PENDING"
	LedgerUpdateAcknowledged LedgerUpdateStatus = "ACKNOWLEDGED"
)

// ConsentLedgerUpdate is a queued fact awaiting reconciliation by the external
// ledger. It stays PENDING until the consumer acknowledges it.
type ConsentLedgerUpdate struct {
	ID           uuid.UUID
	ConsentID    uuid.UUID
	PacketID     uuid.UUID
	SourceSystem string
	PayloadHash  string
	Status       LedgerUpdateStatus
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

func NewConsentLedgerUpdate(id, consentID, packetID uuid.UUID, sourceSystem, payloadHash string, now time.Time) (ConsentLedgerUpdate, error) {
	if id == uuid.Nil || consentID == uuid.Nil {
		return ConsentLedgerUpdate{}, dErrors.New(dErrors.CodeInvariantViolation, "ledger update requires id and consent id")
	}
	if payloadHash == "" {
		return ConsentLedgerUpdate{}, dErrors.New(dErrors.CodeInvariantViolation, "ledger update requires a payload hash")
	}
	return ConsentLedgerUpdate{
		ID:           id,
		ConsentID:    consentID,
		PacketID:     packetID,
		SourceSystem: sourceSystem,
		PayloadHash:  payloadHash,
		Status:       LedgerUpdatePending,
		CreatedAt:    now,
	}, nil
}

// Acknowledge marks the update processed. Acknowledging twice is an error.
func (u ConsentLedgerUpdate) Acknowledge(now time.Time) (ConsentLedgerUpdate, error) {
	if u.Status != LedgerUpdatePending {
		return u, dErrors.New(dErrors.CodeConflict, "ledger update already acknowledged")
	}
	u.Status = LedgerUpdateAcknowledged
	u.ProcessedAt = &now
	return u, nil
}

// LedgerFact is a closed set of facts published to the reconciliation
// ledger. Only types in this package implement it.
type LedgerFact interface {
	// FactType is the wire event type.
	FactType() string
	// Key partitions facts on the bus.
	Key() string
	ledgerFact()
}

// ExportPublished records a completed CE export.
type ExportPublished struct {
	ReceiptID   uuid.UUID
	CocID       string
	ExportType  ExportType
	RecordCount int
	RecordIDs   []uuid.UUID
	Timestamp   time.Time
}

// ImportPendingFact records an imported record awaiting reconciliation.
type ImportPendingFact struct {
	UpdateID     uuid.UUID
	ConsentID    uuid.UUID
	PacketID     uuid.UUID
	SourceSystem string
	PayloadHash  string
	Timestamp    time.Time
}

// VspExportPublished records a recipient export.
type VspExportPublished struct {
	ExportID     uuid.UUID
	Recipient    string
	ConsentBasis string
	ShareScopes  ScopeSet
	CEHashKey    string
	Timestamp    time.Time
}

const (
	FactTypeExport        = "CE_EXPORT"
	FactTypeImportPending = "CE_IMPORT_PENDING"
	FactTypeVspExport     = "VSP_EXPORT"
)

func (ExportPublished) FactType() string    { return FactTypeExport }
func (ImportPendingFact) FactType() string  { return FactTypeImportPending }
func (VspExportPublished) FactType() string { return FactTypeVspExport }

func (f ExportPublished) Key() string    { return f.ReceiptID.String() }
func (f ImportPendingFact) Key() string  { return f.ConsentID.String() }
func (f VspExportPublished) Key() string { return f.ExportID.String() }

func (ExportPublished) ledgerFact()    {}
func (ImportPendingFact) ledgerFact()  {}
func (VspExportPublished) ledgerFact() {}
