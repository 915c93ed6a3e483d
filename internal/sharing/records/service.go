// Package records creates consent-checked CE assessments and events. Every
// record is tagged with the packet resolved for its consent and enrollment.
package records

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/internal/sharing/packet"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/sentinel"
	strutil "haven/pkg/platform/strings"
	"haven/pkg/platform/tx"
	"haven/pkg/requestcontext"
)

type EnrollmentLookup interface {
	FindEnrollment(ctx context.Context, id uuid.UUID) (models.Enrollment, error)
}

type ConsentLookup interface {
	FindConsent(ctx context.Context, id uuid.UUID) (models.Consent, error)
	FindLedgerEntry(ctx context.Context, id uuid.UUID) (models.ConsentLedgerEntry, error)
}

type PacketResolver interface {
	CreateOrRetrieve(ctx context.Context, req packet.CreatePacketRequest) (*models.Packet, error)
}

type Store interface {
	SaveAssessment(ctx context.Context, a *models.Assessment) error
	SaveEvent(ctx context.Context, e *models.Event) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sharing carries the consent and packet parameters common to every record.
type Sharing struct {
	ConsentID          uuid.UUID
	ConsentLedgerID    *uuid.UUID
	ShareScopes        models.ScopeSet
	HashAlgorithm      models.HashAlgorithm
	EncryptionScheme   string
	EncryptionKeyID    string
	EncryptionMetadata map[string]string
	EncryptionTags     []string
}

type CreateAssessmentCommand struct {
	EnrollmentID uuid.UUID
	// ClientID defaults to the enrollment's client when nil.
	ClientID uuid.UUID
	Sharing

	AssessmentDate       time.Time
	AssessmentType       string
	AssessmentLevel      string
	ToolUsed             string
	Score                *float64
	PrioritizationStatus string
	Location             string
	CreatedBy            string
}

type CreateEventCommand struct {
	EnrollmentID uuid.UUID
	ClientID     uuid.UUID
	Sharing

	EventDate           time.Time
	EventType           string
	Status              string
	Result              string
	ReferralDestination string
	OutcomeDate         *time.Time
	CreatedBy           string
}

type Service struct {
	enrollments EnrollmentLookup
	consents    ConsentLookup
	packets     PacketResolver
	store       Store
	tx          TxRunner
	audit       AuditPublisher
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithTxRunner makes the record insert and its audit entry atomic.
func WithTxRunner(r TxRunner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(enrollments EnrollmentLookup, consents ConsentLookup, packets PacketResolver, store Store, opts ...Option) *Service {
	s := &Service{
		enrollments: enrollments,
		consents:    consents,
		packets:     packets,
		store:       store,
		tx:          tx.NopRunner{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAssessment records an assessment after checking enrollment
// ownership and consent.
func (s *Service) CreateAssessment(ctx context.Context, cmd CreateAssessmentCommand) (*models.Assessment, error) {
	if cmd.AssessmentDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "Assessment date missing")
	}
	if strings.TrimSpace(cmd.AssessmentType) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Assessment type missing")
	}
	p, clientID, err := s.resolve(ctx, cmd.EnrollmentID, cmd.ClientID, cmd.Sharing)
	if err != nil {
		return nil, err
	}

	a := &models.Assessment{
		ID:                   uuid.New(),
		EnrollmentID:         cmd.EnrollmentID,
		ClientID:             clientID,
		PacketID:             p.ID,
		AssessmentDate:       cmd.AssessmentDate,
		AssessmentType:       cmd.AssessmentType,
		AssessmentLevel:      cmd.AssessmentLevel,
		ToolUsed:             cmd.ToolUsed,
		Score:                cmd.Score,
		PrioritizationStatus: cmd.PrioritizationStatus,
		Location:             cmd.Location,
		ConsentLedgerID:      cmd.ConsentLedgerID,
		ShareScopes:          p.AllowedScopes,
		CreatedBy:            cmd.CreatedBy,
		CreatedAt:            requestcontext.Now(ctx),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveAssessment(ctx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save assessment")
		}
		return s.emit(ctx, audit.ActionCEAssessmentCreated, "ce_assessment", a.ID, cmd.CreatedBy, cmd.Sharing, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "ce assessment created",
		"assessment_id", a.ID,
		"enrollment_id", a.EnrollmentID,
		"packet_id", p.ID,
	)
	return a, nil
}

// CreateEvent records an event after checking enrollment ownership and
// consent.
func (s *Service) CreateEvent(ctx context.Context, cmd CreateEventCommand) (*models.Event, error) {
	if cmd.EventDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "Event date missing")
	}
	if strings.TrimSpace(cmd.EventType) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Event type missing")
	}
	if strings.TrimSpace(cmd.Status) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Event status missing")
	}
	p, clientID, err := s.resolve(ctx, cmd.EnrollmentID, cmd.ClientID, cmd.Sharing)
	if err != nil {
		return nil, err
	}

	e := &models.Event{
		ID:                  uuid.New(),
		EnrollmentID:        cmd.EnrollmentID,
		ClientID:            clientID,
		PacketID:            p.ID,
		EventDate:           cmd.EventDate,
		EventType:           cmd.EventType,
		Status:              cmd.Status,
		Result:              cmd.Result,
		ReferralDestination: cmd.ReferralDestination,
		ConsentLedgerID:     cmd.ConsentLedgerID,
		ShareScopes:         p.AllowedScopes,
		CreatedBy:           cmd.CreatedBy,
		CreatedAt:           requestcontext.Now(ctx),
	}
	if cmd.OutcomeDate != nil {
		t := *cmd.OutcomeDate
		e.OutcomeDate = &t
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveEvent(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save event")
		}
		return s.emit(ctx, audit.ActionCEEventCreated, "ce_event", e.ID, cmd.CreatedBy, cmd.Sharing, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "ce event created",
		"event_id", e.ID,
		"enrollment_id", e.EnrollmentID,
		"packet_id", p.ID,
	)
	return e, nil
}

// resolve runs the ownership and consent checks shared by every record kind
// and returns the packet the record belongs to. The packet is resolved
// outside the record transaction so a lost creation race can re-read the
// winner.
func (s *Service) resolve(ctx context.Context, enrollmentID, clientID uuid.UUID, sh Sharing) (*models.Packet, uuid.UUID, error) {
	enrollment, err := s.enrollments.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, uuid.Nil, dErrors.New(dErrors.CodeNotFound, "Enrollment not found: "+enrollmentID.String())
		}
		return nil, uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load enrollment")
	}
	if clientID == uuid.Nil {
		clientID = enrollment.ClientID
	}
	if clientID != enrollment.ClientID {
		return nil, uuid.Nil, dErrors.New(dErrors.CodeValidation, "Client does not match enrollment")
	}

	consent, err := s.loadConsent(ctx, sh.ConsentID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := checkConsent(consent, clientID, sh.ShareScopes, requestcontext.Now(ctx)); err != nil {
		return nil, uuid.Nil, err
	}
	if sh.ConsentLedgerID != nil {
		if err := s.checkLedgerEntry(ctx, *sh.ConsentLedgerID, clientID); err != nil {
			return nil, uuid.Nil, err
		}
	}
	if strings.TrimSpace(sh.EncryptionKeyID) == "" {
		return nil, uuid.Nil, dErrors.New(dErrors.CodeValidation, "encryptionKeyId is required")
	}

	p, err := s.packets.CreateOrRetrieve(ctx, packet.CreatePacketRequest{
		ClientID:         clientID,
		EnrollmentID:     enrollmentID,
		Consent:          consent,
		EncryptionKeyID:  sh.EncryptionKeyID,
		HashAlgorithm:    sh.HashAlgorithm,
		EncryptionScheme: sh.EncryptionScheme,
		Metadata:         augmentMetadata(sh.EncryptionMetadata, sh.ConsentLedgerID),
		Tags:             strutil.DedupeAndTrim(sh.EncryptionTags),
		Scopes:           sh.ShareScopes,
		LedgerEntryID:    sh.ConsentLedgerID,
	})
	if err != nil {
		return nil, uuid.Nil, err
	}
	return p, clientID, nil
}

func (s *Service) loadConsent(ctx context.Context, id uuid.UUID) (models.Consent, error) {
	if id == uuid.Nil {
		return models.Consent{}, dErrors.New(dErrors.CodeValidation, "consentId is required")
	}
	consent, err := s.consents.FindConsent(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Consent{}, dErrors.New(dErrors.CodeNotFound, "Consent not found: "+id.String())
		}
		return models.Consent{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	return consent, nil
}

func (s *Service) checkLedgerEntry(ctx context.Context, id, clientID uuid.UUID) error {
	entry, err := s.consents.FindLedgerEntry(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Consent ledger entry not found: "+id.String())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent ledger entry")
	}
	if entry.ClientID != clientID {
		return dErrors.New(dErrors.CodeConsentViolation, "Ledger entry does not belong to client")
	}
	if entry.Status != models.ConsentStatusGranted {
		return dErrors.New(dErrors.CodeConsentViolation, "Ledger entry is not active for sharing")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, resourceType string, id uuid.UUID, actor string, sh Sharing, packetID uuid.UUID) error {
	if s.audit == nil {
		return nil
	}
	ledger := ""
	if sh.ConsentLedgerID != nil {
		ledger = sh.ConsentLedgerID.String()
	}
	return s.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   id.String(),
		ActorID:      actor,
		Details: map[string]string{
			"consentId":       sh.ConsentID.String(),
			"consentLedgerId": ledger,
			"packetId":        packetID.String(),
		},
	})
}

// checkConsent enforces consent ownership, validity and VAWA clearance for
// the requested scopes.
func checkConsent(c models.Consent, clientID uuid.UUID, scopes models.ScopeSet, now time.Time) error {
	if c.ClientID != clientID {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent does not belong to client")
	}
	if !c.IsValidForUse(now) {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent is not active for use")
	}
	for _, scope := range scopes {
		if scope.RequiresVAWAClearance() && !c.VAWAProtected {
			return dErrors.New(dErrors.CodeConsentViolation, "Scope "+string(scope)+" requires VAWA-protected consent")
		}
	}
	return nil
}

func augmentMetadata(metadata map[string]string, ledgerID *uuid.UUID) map[string]string {
	out := maps.Clone(metadata)
	if out == nil {
		out = make(map[string]string)
	}
	if ledgerID != nil {
		out[packet.MetaConsentLedgerID] = ledgerID.String()
	}
	return out
}

