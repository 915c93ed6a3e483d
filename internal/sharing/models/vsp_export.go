package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// DefaultVspExpiry is applied when a request does not name an expiry window.
const DefaultVspExpiry = 90 * 24 * time.Hour

// VspRetention is how long EXPIRED exports are kept before purge.
const VspRetention = 365 * 24 * time.Hour

// VspExportStatus is the lifecycle state of a recipient export.
type VspExportStatus string

const (
	VspExportPendingApproval VspExportStatus = "PENDING_APPROVAL"
	VspExportActive          VspExportStatus = "ACTIVE"
	VspExportRevoked         VspExportStatus = "REVOKED"
	VspExportExpired         VspExportStatus = "EXPIRED"
)

func (s VspExportStatus) IsTerminal() bool {
	return s == VspExportRevoked || s == VspExportExpired
}

// VspExport is the revocable envelope around one recipient export.
//
// Invariants:
//   - PENDING_APPROVAL -> ACTIVE -> REVOKED | EXPIRED, one direction only
//   - REVOKED and EXPIRED are terminal; neither is revoked again or
//     reactivated
//   - revocation fields are set exactly when status is REVOKED
//   - CEHashKey is recipient scoped and never equals a packet client hash
//
// VspExport is a value: transitions return a new VspExport.
type VspExport struct {
	ID               uuid.UUID
	Recipient        string
	Category         RecipientCategory
	ConsentBasis     string
	PacketHash       string
	CEHashKey        string
	ReceiptID        uuid.UUID
	ExportedAt       time.Time
	ExpiresAt        time.Time
	ShareScopes      ScopeSet
	Rules            AnonymizationRules
	Metadata         map[string]string
	InitiatedBy      string
	Status           VspExportStatus
	RevokedAt        *time.Time
	RevokedBy        string
	RevocationReason string
}

// VspExportSpec carries the values an export envelope is built from.
type VspExportSpec struct {
	ID              uuid.UUID
	Recipient       string
	Category        RecipientCategory
	ConsentBasis    string
	PacketHash      string
	CEHashKey       string
	ReceiptID       uuid.UUID
	ExpiresAt       time.Time
	ShareScopes     ScopeSet
	Rules           AnonymizationRules
	Metadata        map[string]string
	InitiatedBy     string
	RequireApproval bool
}

// NewVspExport validates spec. The export starts ACTIVE, or PENDING_APPROVAL
// when approval is required.
func NewVspExport(spec VspExportSpec, now time.Time) (VspExport, error) {
	if spec.ID == uuid.Nil {
		return VspExport{}, dErrors.New(dErrors.CodeInvariantViolation, "export id is required")
	}
	if strings.TrimSpace(spec.Recipient) == "" {
		return VspExport{}, dErrors.New(dErrors.CodeInvariantViolation, "recipient is required")
	}
	if spec.CEHashKey == "" {
		return VspExport{}, dErrors.New(dErrors.CodeInvariantViolation, "correlation hash is required")
	}
	if !spec.ExpiresAt.After(now) {
		return VspExport{}, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}
	status := VspExportActive
	if spec.RequireApproval {
		status = VspExportPendingApproval
	}
	return VspExport{
		ID:           spec.ID,
		Recipient:    spec.Recipient,
		Category:     spec.Category,
		ConsentBasis: spec.ConsentBasis,
		PacketHash:   spec.PacketHash,
		CEHashKey:    spec.CEHashKey,
		ReceiptID:    spec.ReceiptID,
		ExportedAt:   now,
		ExpiresAt:    spec.ExpiresAt,
		ShareScopes:  slices.Clone(spec.ShareScopes),
		Rules:        spec.Rules.clone(),
		Metadata:     maps.Clone(spec.Metadata),
		InitiatedBy:  spec.InitiatedBy,
		Status:       status,
	}, nil
}

// VspExportEvent is a closed set of export transitions.
type VspExportEvent interface {
	vspExportEvent()
}

type (
	ExportApproved struct{ At time.Time }
	ExportRevoked  struct {
		By     string
		Reason string
		At     time.Time
	}
	ExportExpired struct{ At time.Time }
)

func (ExportApproved) vspExportEvent() {}
func (ExportRevoked) vspExportEvent()  {}
func (ExportExpired) vspExportEvent()  {}

// Apply returns the export state after ev. On error the receiver is returned
// unchanged.
func (e VspExport) Apply(ev VspExportEvent) (VspExport, error) {
	next := e
	switch ev := ev.(type) {
	case ExportApproved:
		if e.Status != VspExportPendingApproval {
			return e, dErrors.New(dErrors.CodeConflict, "Export is not pending approval")
		}
		if e.IsExpired(ev.At) {
			return e, dErrors.New(dErrors.CodeConflict, "Cannot approve expired export")
		}
		next.Status = VspExportActive
	case ExportRevoked:
		switch e.Status {
		case VspExportRevoked:
			return e, dErrors.New(dErrors.CodeConflict, "Export is already revoked")
		case VspExportExpired:
			return e, dErrors.New(dErrors.CodeConflict, "Cannot revoke expired export")
		}
		at := ev.At
		next.Status = VspExportRevoked
		next.RevokedAt = &at
		next.RevokedBy = ev.By
		next.RevocationReason = ev.Reason
	case ExportExpired:
		if e.Status.IsTerminal() {
			return e, dErrors.New(dErrors.CodeConflict, "export is already "+strings.ToLower(string(e.Status)))
		}
		if !e.IsExpired(ev.At) {
			return e, dErrors.New(dErrors.CodeInvariantViolation, "export has not reached its expiry")
		}
		next.Status = VspExportExpired
	default:
		return e, dErrors.New(dErrors.CodeInvariantViolation, "unknown export event")
	}
	return next, nil
}

func (e VspExport) Approve(now time.Time) (VspExport, error) {
	return e.Apply(ExportApproved{At: now})
}

// Revoke rejects REVOKED and EXPIRED exports.
func (e VspExport) Revoke(by, reason string, now time.Time) (VspExport, error) {
	return e.Apply(ExportRevoked{By: by, Reason: reason, At: now})
}

func (e VspExport) Expire(now time.Time) (VspExport, error) {
	return e.Apply(ExportExpired{At: now})
}

// IsExpired reports whether the expiry time has passed at now.
func (e VspExport) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// EffectiveStatus reports the status a reader should see at now, applying
// expiry lazily.
func (e VspExport) EffectiveStatus(now time.Time) VspExportStatus {
	if !e.Status.IsTerminal() && e.IsExpired(now) {
		return VspExportExpired
	}
	return e.Status
}

// VspExportRequest asks for an anonymized export for a third-party recipient.
type VspExportRequest struct {
	RequestID            uuid.UUID
	Recipient            string
	Category             RecipientCategory
	ConsentBasis         string
	CocID                string
	EnrollmentIDs        []uuid.UUID
	Window               DateRange
	ShareScopes          ScopeSet
	Format               Format
	EncryptionKeyID      string
	ExpiryDays           int // zero selects DefaultVspExpiry
	InitiatedBy          string
	ExportReason         string
	AdditionalRedactions []string
	DVRedaction          DVRedactionFlag
	RequireApproval      bool
}

// Validate checks the request shape.
func (r VspExportRequest) Validate() error {
	if strings.TrimSpace(r.Recipient) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if !r.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown recipient category: "+string(r.Category))
	}
	if r.ExpiryDays < 0 {
		return dErrors.New(dErrors.CodeValidation, "expiry days cannot be negative")
	}
	return r.ExportRequest().Validate()
}

// ExportRequest is the underlying CE export: every record type, the
// request's scopes as the required scopes.
func (r VspExportRequest) ExportRequest() ExportRequest {
	return ExportRequest{
		CocID:           r.CocID,
		EnrollmentIDs:   slices.Clone(r.EnrollmentIDs),
		Window:          r.Window,
		ExportType:      ExportAllRecords,
		RequiredScopes:  r.ShareScopes,
		EncryptionKeyID: r.EncryptionKeyID,
		Format:          r.Format,
		InitiatedBy:     r.InitiatedBy,
	}
}

// Expiry returns the requested expiry window.
func (r VspExportRequest) Expiry() time.Duration {
	if r.ExpiryDays == 0 {
		return DefaultVspExpiry
	}
	return time.Duration(r.ExpiryDays) * 24 * time.Hour
}

// VspExportResult is returned to the caller of a recipient export. Artifact
// holds the sealed anonymized records.
type VspExportResult struct {
	Export         VspExport
	Level          AnonymizationLevel
	RedactionLevel RedactionLevel
	FileName       string
	RecordCount    int
	Records        []map[string]any
	Artifact       []byte
}

// RecipientShareHistory summarises every export made to one recipient.
type RecipientShareHistory struct {
	Recipient     string
	Exports       []VspExport
	Total         int
	Active        int
	Revoked       int
	Expired       int
	Pending       int
	FirstExportAt *time.Time
	LastExportAt  *time.Time
}

// NewShareHistory tallies exports by effective status at now.
func NewShareHistory(recipient string, exports []VspExport, now time.Time) RecipientShareHistory {
	h := RecipientShareHistory{Recipient: recipient, Exports: slices.Clone(exports), Total: len(exports)}
	for _, e := range exports {
		switch e.EffectiveStatus(now) {
		case VspExportActive:
			h.Active++
		case VspExportRevoked:
			h.Revoked++
		case VspExportExpired:
			h.Expired++
		case VspExportPendingApproval:
			h.Pending++
		}
		at := e.ExportedAt
		if h.FirstExportAt == nil || at.Before(*h.FirstExportAt) {
			h.FirstExportAt = &at
		}
		if h.LastExportAt == nil || at.After(*h.LastExportAt) {
			h.LastExportAt = &at
		}
	}
	return h
}
