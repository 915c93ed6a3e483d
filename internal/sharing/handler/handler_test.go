package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks ExportService,ImportService,RecipientExportService

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"haven/internal/sharing/handler/mocks"
	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	exports    *mocks.MockExportService
	imports    *mocks.MockImportService
	recipients *mocks.MockRecipientExportService
	router     chi.Router

	now   time.Time
	roles []string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.exports = mocks.NewMockExportService(ctrl)
	s.imports = mocks.NewMockImportService(ctrl)
	s.recipients = mocks.NewMockRecipientExportService(ctrl)
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.roles = []string{"ROLE_CASE_MANAGER"}

	h := New(s.exports, s.imports, s.recipients, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	// stands in for the auth and request-time middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithSubject(r.Context(), "analyst-1")
			ctx = requestcontext.WithRoles(ctx, s.roles)
			ctx = requestcontext.WithTime(ctx, s.now)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	h.Register(s.router)
}

func (s *HandlerSuite) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *HandlerSuite) TestExport() {
	enrollment := uuid.New()
	receiptID := uuid.New()
	s.exports.EXPECT().Export(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.ExportRequest) (*models.ExportResult, error) {
			s.Equal("CA-600", req.CocID)
			s.Equal([]uuid.UUID{enrollment}, req.EnrollmentIDs)
			s.Equal(models.ExportEventOnly, req.ExportType)
			s.Equal(models.FormatXML, req.Format)
			s.Equal("analyst-1", req.InitiatedBy)
			s.Require().NotNil(req.Window.Start)
			return &models.ExportResult{
				Receipt:  &models.ExportReceipt{ID: receiptID, CocID: "CA-600", FileName: "CE_Export.xml.enc", RecordCount: 2},
				Artifact: []byte("sealed"),
			}, nil
		})

	body := `{"cocId":"CA-600","enrollmentIds":["` + enrollment.String() + `"],"startDate":"2026-01-01",` +
		`"exportType":"event_only","requiredScopes":["COC_COORDINATED_ENTRY"],"encryptionKeyId":"key-1","format":"XML"}`
	w := s.do(http.MethodPost, "/ce/exports", []byte(body))

	s.Equal(http.StatusCreated, w.Code)
	resp := s.decode(w)
	s.Equal(base64.StdEncoding.EncodeToString([]byte("sealed")), resp["artifact"])
	receipt := resp["receipt"].(map[string]any)
	s.Equal(receiptID.String(), receipt["id"])
	s.EqualValues(2, receipt["recordCount"])
}

func (s *HandlerSuite) TestExportErrors() {
	s.Run("malformed body", func() {
		w := s.do(http.MethodPost, "/ce/exports", []byte("{"))
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("bad_request", s.decode(w)["error"])
	})

	s.Run("unknown scope", func() {
		w := s.do(http.MethodPost, "/ce/exports", []byte(`{"cocId":"CA-600","requiredScopes":["EVERYTHING"]}`))
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("unknown share scope: EVERYTHING", s.decode(w)["error_description"])
	})

	s.Run("consent violation is forbidden", func() {
		s.exports.EXPECT().Export(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConsentViolation, "Consent scopes do not permit export"))
		w := s.do(http.MethodPost, "/ce/exports", []byte(`{"cocId":"CA-600","encryptionKeyId":"key-1"}`))
		s.Equal(http.StatusForbidden, w.Code)
		s.Equal("Consent scopes do not permit export", s.decode(w)["error_description"])
	})

	s.Run("crypto failure hides detail", func() {
		s.exports.EXPECT().Export(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeCryptoFailure, "key key-1 not found"))
		w := s.do(http.MethodPost, "/ce/exports", []byte(`{"cocId":"CA-600","encryptionKeyId":"key-1"}`))
		s.Equal(http.StatusInternalServerError, w.Code)
		s.NotContains(w.Body.String(), "key-1")
	})
}

func (s *HandlerSuite) TestReceipts() {
	id := uuid.New()
	s.exports.EXPECT().GetReceipt(gomock.Any(), id).Return(&models.ExportReceipt{ID: id, CocID: "CA-600"}, nil)
	w := s.do(http.MethodGet, "/ce/exports/"+id.String(), nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("CA-600", s.decode(w)["cocId"])

	s.exports.EXPECT().ListReceipts(gomock.Any(), "CA-600").
		Return([]*models.ExportReceipt{{ID: uuid.New()}, {ID: uuid.New()}}, nil)
	w = s.do(http.MethodGet, "/ce/exports?coc_id=CA-600", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["receipts"], 2)

	w = s.do(http.MethodGet, "/ce/exports/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestImport() {
	jobID := uuid.New()
	payload := "recordType,clientId\nASSESSMENT,abc\n"
	s.imports.EXPECT().Import(gomock.Any(), []byte(payload), models.ImportOptions{
		Format:       models.ImportHMISCSV,
		SourceSystem: "PARTNER_HMIS",
		InitiatedBy:  "analyst-1",
		Delimiter:    ';',
		FileName:     "feed.csv",
	}).Return(&models.ImportResult{JobID: jobID, Status: models.ImportJobCompleted, Succeeded: 0, Failed: 1,
		ErrorLog: []string{"ASSESSMENT (unknown): Invalid clientid: abc"}}, nil)

	w := s.do(http.MethodPost, "/ce/imports?format=csv&source_system=PARTNER_HMIS&delimiter=;&file_name=feed.csv", []byte(payload))

	s.Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.Equal(jobID.String(), resp["jobId"])
	s.EqualValues(1, resp["failed"])
	s.Len(resp["errorLog"], 1)
}

func (s *HandlerSuite) TestConfiguredDefaults() {
	h := New(s.exports, s.imports, s.recipients, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDefaultFormat(models.FormatJSON), WithImportSourceSystem("COUNTY_HMIS"))
	r := chi.NewRouter()
	h.Register(r)

	s.imports.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []byte, opts models.ImportOptions) (*models.ImportResult, error) {
			s.Equal("COUNTY_HMIS", opts.SourceSystem)
			return &models.ImportResult{JobID: uuid.New(), Status: models.ImportJobCompleted}, nil
		})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ce/imports?format=csv", bytes.NewReader([]byte("x"))))
	s.Equal(http.StatusOK, w.Code)

	req, err := exportRequest{CocID: "CA-600"}.toModel("analyst-1", models.FormatJSON)
	s.Require().NoError(err)
	s.Equal(models.FormatJSON, req.Format)
}

func (s *HandlerSuite) TestImportRejectedPayloadCarriesJobID() {
	jobID := uuid.New()
	s.imports.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&models.ImportResult{JobID: jobID, Status: models.ImportJobFailed},
			dErrors.New(dErrors.CodeValidation, "Unable to parse payload: missing header row"))

	w := s.do(http.MethodPost, "/ce/imports?format=HMIS_CSV", nil)

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(jobID.String(), w.Header().Get("X-Import-Job-Id"))
}

func (s *HandlerSuite) TestImportQueryValidation() {
	w := s.do(http.MethodPost, "/ce/imports?format=parquet", []byte("x"))
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/ce/imports?format=csv&delimiter=ab", []byte("x"))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestGetImportJob() {
	id := uuid.New()
	s.imports.EXPECT().GetJob(gomock.Any(), id).Return(nil, dErrors.New(dErrors.CodeNotFound, "import job not found"))
	w := s.do(http.MethodGet, "/ce/imports/"+id.String(), nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestRecipientExportUsesCallerRoles() {
	exportID := uuid.New()
	s.recipients.EXPECT().ExportForRecipient(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, access models.AccessContext, req models.VspExportRequest) (*models.VspExportResult, error) {
			s.Equal([]string{"CASE_MANAGER"}, access.Roles)
			s.Equal("safety planning", access.Reason)
			s.Equal(s.now, access.Timestamp)
			s.Equal(models.RecipientVictimServiceProvider, req.Category)
			s.Equal(models.DVRedactForGeneralStaff, req.DVRedaction)
			s.Equal("analyst-1", req.InitiatedBy)
			return &models.VspExportResult{
				Export:      models.VspExport{ID: exportID, Recipient: "Harbor House", Status: models.VspExportActive},
				Level:       models.AnonymizationMinimal,
				RecordCount: 0,
				Artifact:    []byte("sealed"),
			}, nil
		})

	body := `{"recipient":"Harbor House","recipientCategory":"vsp","cocId":"CA-600","shareScopes":["COC_COORDINATED_ENTRY"],` +
		`"encryptionKeyId":"key-1","exportReason":"safety planning","dvRedaction":"redact_for_general_staff"}`
	w := s.do(http.MethodPost, "/ce/vsp-exports", []byte(body))

	s.Equal(http.StatusCreated, w.Code)
	resp := s.decode(w)
	s.Equal(exportID.String(), resp["exportId"])
	s.Equal("MINIMAL", resp["anonymizationLevel"])
	s.EqualValues(0, resp["recordCount"])
}

func (s *HandlerSuite) TestRevoke() {
	id := uuid.New()
	revokedAt := s.now
	s.recipients.EXPECT().Revoke(gomock.Any(), id, "analyst-1", "client withdrew consent").
		Return(&models.VspExport{ID: id, Status: models.VspExportRevoked, RevokedAt: &revokedAt, RevokedBy: "analyst-1"}, nil)
	w := s.do(http.MethodPost, "/ce/vsp-exports/"+id.String()+"/revoke", []byte(`{"reason":"client withdrew consent"}`))
	s.Equal(http.StatusOK, w.Code)
	s.Equal("REVOKED", s.decode(w)["status"])

	s.recipients.EXPECT().Revoke(gomock.Any(), id, "analyst-1", "again").
		Return(nil, dErrors.New(dErrors.CodeConflict, "Export is already revoked"))
	w = s.do(http.MethodPost, "/ce/vsp-exports/"+id.String()+"/revoke", []byte(`{"reason":"again"}`))
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("Export is already revoked", s.decode(w)["error_description"])
}

func (s *HandlerSuite) TestApproveRequiresAdministrativeRole() {
	id := uuid.New()
	w := s.do(http.MethodPost, "/ce/vsp-exports/"+id.String()+"/approve", nil)
	s.Equal(http.StatusForbidden, w.Code)

	s.roles = []string{"ROLE_DATA_MANAGER"}
	s.recipients.EXPECT().Approve(gomock.Any(), id, "analyst-1").
		Return(&models.VspExport{ID: id, Status: models.VspExportActive}, nil)
	w = s.do(http.MethodPost, "/ce/vsp-exports/"+id.String()+"/approve", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestShareHistory() {
	s.recipients.EXPECT().ShareHistory(gomock.Any(), "Harbor House").
		Return(&models.RecipientShareHistory{Recipient: "Harbor House", Total: 1, Active: 1,
			Exports: []models.VspExport{{ID: uuid.New(), Status: models.VspExportActive}}}, nil)

	w := s.do(http.MethodGet, "/ce/vsp-exports/history/Harbor%20House", nil)

	s.Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.EqualValues(1, resp["totalExports"])
	s.Len(resp["exports"], 1)
}

func TestParseDelimiter(t *testing.T) {
	for raw, want := range map[string]rune{"": 0, ";": ';', "|": '|', `\t`: '\t', "TAB": '\t'} {
		got, err := parseDelimiter(raw)
		if err != nil || got != want {
			t.Errorf("parseDelimiter(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := parseDelimiter(strings.Repeat(",", 2)); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}
