package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"haven/internal/sharing/hashing"
	"haven/internal/sharing/models"
	"haven/internal/sharing/packet"
	packetstore "haven/internal/sharing/packet/store"
	"haven/internal/sharing/records"
	recordstore "haven/internal/sharing/records/store"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/audit/publishers/compliance"
	auditmemory "haven/pkg/platform/audit/store/memory"
	"haven/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	packets    *packetstore.InMemoryStore
	store      *recordstore.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	service    *records.Service

	clientID     uuid.UUID
	enrollmentID uuid.UUID
	consent      models.Consent
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	s.packets = packetstore.NewInMemory()
	s.store = recordstore.NewInMemory(s.packets)
	s.auditStore = auditmemory.NewInMemoryStore()

	registry := packet.NewRegistry(s.packets, hashing.New(), packet.WithDefaultHashAlgorithm(models.HashSHA256Salt))
	s.service = records.New(s.store, s.store, registry, s.store,
		records.WithAuditPublisher(compliance.New(s.auditStore)),
	)

	s.clientID = uuid.New()
	s.enrollmentID = uuid.New()
	s.store.PutEnrollment(models.Enrollment{ID: s.enrollmentID, ClientID: s.clientID, CocID: "CA-600"})
	s.consent = models.Consent{
		ID:          uuid.New(),
		ClientID:    s.clientID,
		Status:      models.ConsentStatusGranted,
		Version:     1,
		EffectiveAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.store.PutConsent(s.consent)
}

func (s *ServiceSuite) assessmentCommand() records.CreateAssessmentCommand {
	return records.CreateAssessmentCommand{
		EnrollmentID: s.enrollmentID,
		Sharing: records.Sharing{
			ConsentID:       s.consent.ID,
			EncryptionKeyID: "key-1",
			ShareScopes:     models.ScopeSet{models.ScopeCoordinatedEntry, models.ScopeAssessmentData},
			EncryptionTags:  []string{" intake ", ""},
		},
		AssessmentDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		AssessmentType: "CRISIS_NEEDS",
		CreatedBy:      "worker-7",
	}
}

func (s *ServiceSuite) TestCreateAssessment() {
	a, err := s.service.CreateAssessment(s.ctx, s.assessmentCommand())
	s.Require().NoError(err)

	s.Equal(s.clientID, a.ClientID, "client defaults to the enrollment's client")
	s.Equal(1, s.store.AssessmentCount())

	p, err := s.packets.FindByID(s.ctx, a.PacketID)
	s.Require().NoError(err)
	s.Contains(p.EncryptionTags, "intake")
	s.NotContains(p.EncryptionTags, "")
	s.Equal(a.ShareScopes, p.AllowedScopes)

	events, err := s.auditStore.ListByAction(s.ctx, audit.ActionCEAssessmentCreated)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(a.ID.String(), events[0].ResourceID)
	s.Equal(p.ID.String(), events[0].Details["packetId"])
	s.Equal("worker-7", events[0].ActorID)
}

func (s *ServiceSuite) TestRecordsShareOnePacket() {
	a, err := s.service.CreateAssessment(s.ctx, s.assessmentCommand())
	s.Require().NoError(err)

	e, err := s.service.CreateEvent(s.ctx, records.CreateEventCommand{
		EnrollmentID: s.enrollmentID,
		Sharing:      records.Sharing{ConsentID: s.consent.ID, EncryptionKeyID: "key-1"},
		EventDate:    time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
		EventType:    "REFERRAL_TO_PSH",
		Status:       "PENDING",
	})
	s.Require().NoError(err)
	s.Equal(a.PacketID, e.PacketID)
	s.Equal(1, s.store.EventCount())
}

func (s *ServiceSuite) TestLedgerEntryIsCheckedAndRecorded() {
	ledgerID := uuid.New()
	s.store.PutLedgerEntry(models.ConsentLedgerEntry{ID: ledgerID, ClientID: s.clientID, Status: models.ConsentStatusGranted})

	cmd := s.assessmentCommand()
	cmd.ConsentLedgerID = &ledgerID
	a, err := s.service.CreateAssessment(s.ctx, cmd)
	s.Require().NoError(err)

	p, err := s.packets.FindByID(s.ctx, a.PacketID)
	s.Require().NoError(err)
	s.Equal(ledgerID.String(), p.EncryptionMetadata[packet.MetaConsentLedgerID])
}

func (s *ServiceSuite) TestRejections() {
	otherClient := uuid.New()
	revoked := models.Consent{ID: uuid.New(), ClientID: s.clientID, Status: models.ConsentStatusRevoked}
	foreign := models.Consent{ID: uuid.New(), ClientID: otherClient, Status: models.ConsentStatusGranted}
	s.store.PutConsent(revoked)
	s.store.PutConsent(foreign)

	foreignLedger := uuid.New()
	pendingLedger := uuid.New()
	s.store.PutLedgerEntry(models.ConsentLedgerEntry{ID: foreignLedger, ClientID: otherClient, Status: models.ConsentStatusGranted})
	s.store.PutLedgerEntry(models.ConsentLedgerEntry{ID: pendingLedger, ClientID: s.clientID, Status: models.ConsentStatusPending})
	missingLedger := uuid.New()

	cases := []struct {
		name    string
		mutate  func(*records.CreateAssessmentCommand)
		code    dErrors.Code
		message string
	}{
		{"unknown enrollment", func(c *records.CreateAssessmentCommand) { c.EnrollmentID = uuid.New() }, dErrors.CodeNotFound, "Enrollment not found"},
		{"client mismatch", func(c *records.CreateAssessmentCommand) { c.ClientID = otherClient }, dErrors.CodeValidation, "Client does not match enrollment"},
		{"missing consent", func(c *records.CreateAssessmentCommand) { c.ConsentID = uuid.Nil }, dErrors.CodeValidation, "consentId is required"},
		{"unknown consent", func(c *records.CreateAssessmentCommand) { c.ConsentID = uuid.New() }, dErrors.CodeNotFound, "Consent not found"},
		{"foreign consent", func(c *records.CreateAssessmentCommand) { c.ConsentID = foreign.ID }, dErrors.CodeConsentViolation, "Consent does not belong to client"},
		{"revoked consent", func(c *records.CreateAssessmentCommand) { c.ConsentID = revoked.ID }, dErrors.CodeConsentViolation, "Consent is not active for use"},
		{"dv scope without vawa", func(c *records.CreateAssessmentCommand) {
			c.ShareScopes = models.ScopeSet{models.ScopeDVData}
		}, dErrors.CodeConsentViolation, "requires VAWA-protected consent"},
		{"unknown ledger", func(c *records.CreateAssessmentCommand) { c.ConsentLedgerID = &missingLedger }, dErrors.CodeNotFound, "Consent ledger entry not found"},
		{"foreign ledger", func(c *records.CreateAssessmentCommand) { c.ConsentLedgerID = &foreignLedger }, dErrors.CodeConsentViolation, "does not belong to client"},
		{"pending ledger", func(c *records.CreateAssessmentCommand) { c.ConsentLedgerID = &pendingLedger }, dErrors.CodeConsentViolation, "not active for sharing"},
		{"no key", func(c *records.CreateAssessmentCommand) { c.EncryptionKeyID = " " }, dErrors.CodeValidation, "encryptionKeyId is required"},
		{"no date", func(c *records.CreateAssessmentCommand) { c.AssessmentDate = time.Time{} }, dErrors.CodeValidation, "Assessment date missing"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			cmd := s.assessmentCommand()
			tc.mutate(&cmd)
			_, err := s.service.CreateAssessment(s.ctx, cmd)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			s.Contains(err.Error(), tc.message)
		})
	}
	s.Zero(s.store.AssessmentCount())
}

func (s *ServiceSuite) TestVAWAProtectedConsentAllowsDVScope() {
	vawa := s.consent
	vawa.ID = uuid.New()
	vawa.VAWAProtected = true
	s.store.PutConsent(vawa)

	cmd := s.assessmentCommand()
	cmd.ConsentID = vawa.ID
	cmd.ShareScopes = models.ScopeSet{models.ScopeDVData}
	_, err := s.service.CreateAssessment(s.ctx, cmd)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestEventRequiresStatus() {
	_, err := s.service.CreateEvent(s.ctx, records.CreateEventCommand{
		EnrollmentID: s.enrollmentID,
		Sharing:      records.Sharing{ConsentID: s.consent.ID, EncryptionKeyID: "key-1"},
		EventDate:    time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
		EventType:    "REFERRAL_TO_PSH",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Zero(s.store.EventCount())
}
