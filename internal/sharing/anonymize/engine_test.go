package anonymize

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Exporter,Sealer,AuditPublisher,LedgerPublisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"haven/internal/sharing/anonymize/mocks"
	"haven/internal/sharing/anonymize/store"
	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	exporter *mocks.MockExporter
	sealer   *mocks.MockSealer
	audit    *mocks.MockAuditPublisher
	ledger   *mocks.MockLedgerPublisher
	store    *store.InMemoryStore
	metrics  *Metrics
	engine   *Engine

	ctx        context.Context
	now        time.Time
	enrollment uuid.UUID
	access     models.AccessContext
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.exporter = mocks.NewMockExporter(s.ctrl)
	s.sealer = mocks.NewMockSealer(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.ledger = mocks.NewMockLedgerPublisher(s.ctrl)
	s.store = store.NewInMemory()
	s.metrics = NewMetrics(prometheus.NewRegistry())

	var err error
	s.engine, err = New(s.exporter, s.sealer, s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.audit),
		WithLedgerPublisher(s.ledger),
	)
	s.Require().NoError(err)

	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.enrollment = uuid.New()
	s.access = models.NewAccessContext([]string{"ROLE_CASE_MANAGER"}, "referral follow-up", s.now)
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) request(category models.RecipientCategory, scopes ...models.ShareScope) models.VspExportRequest {
	if len(scopes) == 0 {
		scopes = []models.ShareScope{models.ScopeCoordinatedEntry}
	}
	return models.VspExportRequest{
		Recipient:       "Harbor House",
		Category:        category,
		ConsentBasis:    "VAWA release on file",
		CocID:           "CA-600",
		EnrollmentIDs:   []uuid.UUID{s.enrollment},
		ShareScopes:     scopes,
		Format:          models.FormatCSV,
		EncryptionKeyID: "key-1",
		InitiatedBy:     "analyst-1",
	}
}

func (s *EngineSuite) baseExport() *models.ExportResult {
	return &models.ExportResult{
		Receipt: &models.ExportReceipt{ID: uuid.New(), CocID: "CA-600", FileName: "CE_Export.csv.enc"},
		Records: []models.ExportRecord{{
			RecordType:      models.RecordEvent,
			RecordID:        uuid.New(),
			EnrollmentID:    s.enrollment,
			ClientHash:      "client-hash",
			Date:            time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC),
			Type:            "REFERRAL_TO_SHELTER",
			Status:          "COMPLETED",
			Result:          "Placed at confidential shelter",
			ConsentVersion:  2,
			ShareScopes:     models.ScopeSet{models.ScopeCoordinatedEntry},
			HashAlgorithm:   models.HashPBKDF2SHA256,
			EncryptionKeyID: "key-1",
		}},
		Artifact: []byte("ce-artifact"),
	}
}

// expectCreate wires the collaborators of a successful export.
func (s *EngineSuite) expectCreate() {
	s.exporter.EXPECT().Prepare(gomock.Any(), gomock.Any()).Return(s.baseExport(), nil)
	s.sealer.EXPECT().Encrypt(gomock.Any(), gomock.Any(), "key-1").Return([]byte("sealed"), nil)
	s.exporter.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(nil)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	s.exporter.EXPECT().Publish(gomock.Any(), gomock.Any())
	s.ledger.EXPECT().Publish(gomock.Any(), gomock.Any())
}

func (s *EngineSuite) create(category models.RecipientCategory) *models.VspExportResult {
	s.expectCreate()
	res, err := s.engine.ExportForRecipient(s.ctx, s.access, s.request(category))
	s.Require().NoError(err)
	return res
}

func (s *EngineSuite) TestNew() {
	s.Run("nil exporter returns error", func() {
		_, err := New(nil, s.sealer, s.store)
		s.ErrorContains(err, "exporter is required")
	})

	s.Run("nil sealer returns error", func() {
		_, err := New(s.exporter, nil, s.store)
		s.ErrorContains(err, "sealer is required")
	})

	s.Run("nil store returns error", func() {
		_, err := New(s.exporter, s.sealer, nil)
		s.ErrorContains(err, "store is required")
	})
}

func (s *EngineSuite) TestExportForVictimServiceProvider() {
	req := s.request(models.RecipientVictimServiceProvider)
	base := s.baseExport()
	s.exporter.EXPECT().Prepare(gomock.Any(), req.ExportRequest()).Return(base, nil)
	s.exporter.EXPECT().Commit(gomock.Any(), base).Return(nil)
	s.exporter.EXPECT().Publish(gomock.Any(), base)
	s.sealer.EXPECT().Encrypt(gomock.Any(), gomock.Any(), "key-1").
		DoAndReturn(func(_ context.Context, plaintext []byte, _ string) ([]byte, error) {
			var doc map[string]any
			s.Require().NoError(json.Unmarshal(plaintext, &doc))
			s.Equal("Harbor House", doc["recipient"])
			s.EqualValues(1, doc["recordCount"])
			return []byte("sealed"), nil
		})
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.ActionVspExportCreated, e.Action)
			s.Equal("VSP", e.Details["recipientCategory"])
			s.Equal("analyst-1", e.ActorID)
			return nil
		})
	var fact models.VspExportPublished
	s.ledger.EXPECT().Publish(gomock.Any(), gomock.AssignableToTypeOf(models.VspExportPublished{})).
		Do(func(_ context.Context, f models.LedgerFact) { fact = f.(models.VspExportPublished) })

	res, err := s.engine.ExportForRecipient(s.ctx, s.access, req)
	s.Require().NoError(err)

	s.Equal(models.AnonymizationMinimal, res.Level)
	s.Equal(models.VspExportActive, res.Export.Status)
	s.Equal(s.now.Add(models.DefaultVspExpiry), res.Export.ExpiresAt)
	s.Equal([]byte("sealed"), res.Artifact)
	s.Equal(1, res.RecordCount)
	s.Contains(res.FileName, "VSP_Export_VSP_20260504_100000_")
	s.True(len(res.Export.CEHashKey) == 19 && res.Export.CEHashKey[:3] == "CE_")
	s.NotEqual("client-hash", res.Export.CEHashKey)
	s.Len(res.Export.PacketHash, 64)

	s.Equal(res.Export.ID, fact.ExportID)
	s.Equal(res.Export.CEHashKey, fact.CEHashKey)
	s.Equal("VAWA release on file", fact.ConsentBasis)

	stored, err := s.store.FindByID(s.ctx, res.Export.ID)
	s.Require().NoError(err)
	s.Equal(res.Export.CEHashKey, stored.CEHashKey)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.created.WithLabelValues("MINIMAL")))
}

func (s *EngineSuite) TestTiersFollowRecipientCategory() {
	cases := []struct {
		category models.RecipientCategory
		level    models.AnonymizationLevel
	}{
		{models.RecipientVictimServiceProvider, models.AnonymizationMinimal},
		{models.RecipientLegalAid, models.AnonymizationStandard},
		{models.RecipientResearchInstitution, models.AnonymizationFull},
	}
	for _, tc := range cases {
		s.Run(string(tc.category), func() {
			res := s.create(tc.category)
			s.Equal(tc.level, res.Level)

			rec := res.Records[0]
			switch tc.level {
			case models.AnonymizationMinimal:
				s.Equal("client-hash", rec["clientHash"])
			case models.AnonymizationStandard:
				s.Equal("04/2026", rec["date"])
			case models.AnonymizationFull:
				s.NotContains(rec, "clientHash")
				s.Contains(rec["anonymousId"], "ANON_")
			}
		})
	}
}

func (s *EngineSuite) TestRedactionTightensForCallerWithoutDVAccess() {
	access := models.NewAccessContext([]string{"INTAKE_WORKER"}, "", s.now)
	s.expectCreate()

	res, err := s.engine.ExportForRecipient(s.ctx, access, s.request(models.RecipientVictimServiceProvider))
	s.Require().NoError(err)

	s.Equal(models.RedactionFull, res.RedactionLevel)
	s.NotContains(res.Records[0], "result")
	s.True(res.Export.Rules.RedactDVIndicators)
}

func (s *EngineSuite) TestRefusals() {
	s.Run("unauthorized category", func() {
		_, err := s.engine.ExportForRecipient(s.ctx, s.access, s.request(models.RecipientUnauthorized))
		s.True(dErrors.HasCode(err, dErrors.CodeConsentViolation))
	})

	s.Run("dv scope to category without victim data authorization", func() {
		_, err := s.engine.ExportForRecipient(s.ctx, s.access,
			s.request(models.RecipientLawEnforcement, models.ScopeDVData))
		s.True(dErrors.HasCode(err, dErrors.CodeConsentViolation))
		s.Contains(dErrors.MessageOf(err), "not authorized for victim data")
	})

	s.Run("dv scope without full vawa compliance", func() {
		_, err := s.engine.ExportForRecipient(s.ctx, s.access,
			s.request(models.RecipientLegalAid, models.ScopeDVData))
		s.True(dErrors.HasCode(err, dErrors.CodeConsentViolation))
		s.Equal("Recipient does not have full VAWA compliance for DV data", dErrors.MessageOf(err))
	})

	s.Run("unknown category", func() {
		_, err := s.engine.ExportForRecipient(s.ctx, s.access, s.request("PIZZA_PLACE"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(3.0, testutil.ToFloat64(s.metrics.refused.WithLabelValues(string(dErrors.CodeConsentViolation))))
}

func (s *EngineSuite) TestDelegatedExportFailureStoresNothing() {
	s.exporter.EXPECT().Prepare(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConsentViolation, "Consent scopes do not permit export"))
	s.exporter.EXPECT().Commit(gomock.Any(), gomock.Any()).Times(0)
	s.sealer.EXPECT().Encrypt(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Times(0)
	s.ledger.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.engine.ExportForRecipient(s.ctx, s.access, s.request(models.RecipientVictimServiceProvider))
	s.True(dErrors.HasCode(err, dErrors.CodeConsentViolation))

	h, err := s.engine.ShareHistory(s.ctx, "Harbor House")
	s.Require().NoError(err)
	s.Zero(h.Total)
}

func (s *EngineSuite) TestAuditFailureFailsExport() {
	s.exporter.EXPECT().Prepare(gomock.Any(), gomock.Any()).Return(s.baseExport(), nil)
	s.sealer.EXPECT().Encrypt(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte("sealed"), nil)
	s.exporter.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(nil)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit store down"))
	s.exporter.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
	s.ledger.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.engine.ExportForRecipient(s.ctx, s.access, s.request(models.RecipientVictimServiceProvider))
	s.Error(err)
}

func (s *EngineSuite) TestRevokeIsOneWay() {
	res := s.create(models.RecipientVictimServiceProvider)

	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.ActionVspExportRevoked, e.Action)
			s.Equal("client withdrew consent", e.Details["reason"])
			return nil
		})
	revoked, err := s.engine.Revoke(s.ctx, res.Export.ID, "admin-1", "client withdrew consent")
	s.Require().NoError(err)
	s.Equal(models.VspExportRevoked, revoked.Status)
	s.Require().NotNil(revoked.RevokedAt)

	_, err = s.engine.Revoke(s.ctx, res.Export.ID, "admin-2", "again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("Export is already revoked", dErrors.MessageOf(err))

	stored, err := s.engine.Get(s.ctx, res.Export.ID)
	s.Require().NoError(err)
	s.Equal(models.VspExportRevoked, stored.Status)
	s.Equal("admin-1", stored.RevokedBy)
}

func (s *EngineSuite) TestRevokeExpiredExport() {
	res := s.create(models.RecipientVictimServiceProvider)
	later := requestcontext.WithTime(context.Background(), res.Export.ExpiresAt.Add(time.Hour))

	_, err := s.engine.Revoke(later, res.Export.ID, "admin-1", "too late")
	s.Equal("Cannot revoke expired export", dErrors.MessageOf(err))

	stored, err := s.store.FindByID(s.ctx, res.Export.ID)
	s.Require().NoError(err)
	s.Equal(models.VspExportExpired, stored.Status)
}

func (s *EngineSuite) TestRevokeValidation() {
	_, err := s.engine.Revoke(s.ctx, uuid.New(), "", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.engine.Revoke(s.ctx, uuid.New(), "admin-1", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestApprovalFlow() {
	req := s.request(models.RecipientVictimServiceProvider)
	req.RequireApproval = true
	s.expectCreate()
	res, err := s.engine.ExportForRecipient(s.ctx, s.access, req)
	s.Require().NoError(err)
	s.Equal(models.VspExportPendingApproval, res.Export.Status)

	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.ActionVspExportApproved, e.Action)
			return nil
		})
	approved, err := s.engine.Approve(s.ctx, res.Export.ID, "supervisor-1")
	s.Require().NoError(err)
	s.Equal(models.VspExportActive, approved.Status)
}

func (s *EngineSuite) TestProcessExpired() {
	first := s.create(models.RecipientVictimServiceProvider)
	second := s.create(models.RecipientLegalAid)

	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.ActionVspExportRevoked, e.Action)
			return nil
		})
	_, err := s.engine.Revoke(s.ctx, second.Export.ID, "admin-1", "closed")
	s.Require().NoError(err)

	sweepAt := first.Export.ExpiresAt.Add(time.Minute)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(audit.ActionVspExportExpired, e.Action)
			s.Equal(first.Export.ID.String(), e.ResourceID)
			return nil
		})
	res, err := s.engine.ProcessExpired(requestcontext.WithTime(context.Background(), sweepAt))
	s.Require().NoError(err)
	s.Equal(SweepResult{Expired: 1}, res)

	got, err := s.store.FindByID(s.ctx, first.Export.ID)
	s.Require().NoError(err)
	s.Equal(models.VspExportExpired, got.Status)

	s.Run("expired exports are purged after retention", func() {
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) error {
				s.Equal(audit.ActionVspExportPurged, e.Action)
				s.Equal("1", e.Details["purged"])
				return nil
			})
		purgeAt := first.Export.ExpiresAt.Add(models.VspRetention + time.Hour)
		res, err := s.engine.ProcessExpired(requestcontext.WithTime(context.Background(), purgeAt))
		s.Require().NoError(err)
		s.Equal(SweepResult{Purged: 1}, res)

		_, err = s.engine.Get(s.ctx, first.Export.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestShareHistory() {
	s.create(models.RecipientVictimServiceProvider)
	s.create(models.RecipientVictimServiceProvider)

	h, err := s.engine.ShareHistory(s.ctx, "Harbor House")
	s.Require().NoError(err)
	s.Equal(2, h.Total)
	s.Equal(2, h.Active)

	_, err = s.engine.ShareHistory(s.ctx, " ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
