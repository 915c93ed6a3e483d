package test

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "haven/internal/jwt_token"
	"haven/internal/platform/metrics"
	"haven/internal/sharing/anonymize"
	vspstore "haven/internal/sharing/anonymize/store"
	"haven/internal/sharing/export"
	exportstore "haven/internal/sharing/export/store"
	"haven/internal/sharing/handler"
	"haven/internal/sharing/hashing"
	"haven/internal/sharing/imports"
	importstore "haven/internal/sharing/imports/store"
	"haven/internal/sharing/ledger"
	"haven/internal/sharing/ledger/sink"
	ledgerstore "haven/internal/sharing/ledger/store"
	"haven/internal/sharing/models"
	"haven/internal/sharing/packet"
	packetstore "haven/internal/sharing/packet/store"
	"haven/internal/sharing/records"
	recordstore "haven/internal/sharing/records/store"
	"haven/internal/sharing/sealing"
	"haven/internal/sharing/sealing/keys"
	httptransport "haven/internal/transport/http"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/audit/publishers/compliance"
	auditmemory "haven/pkg/platform/audit/store/memory"
	"haven/pkg/testutil"
)

const keyID = "k1"

// pipeline is the full sharing stack over in-memory stores.
type pipeline struct {
	router http.Handler
	cipher *sealing.Cipher
	audit  *auditmemory.InMemoryStore
	ledger *ledgerstore.InMemoryStore
	token  string

	enrollment models.Enrollment
	consent    models.Consent
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ring, err := keys.NewKeyring(map[string]string{keyID: base64.StdEncoding.EncodeToString(make([]byte, 32))})
	require.NoError(t, err)
	cipher := sealing.NewCipher(ring)

	packets := packetstore.NewInMemory()
	registry := packet.NewRegistry(packets, hashing.New(hashing.WithSaltSource(ring)), packet.WithLogger(logger))
	data := recordstore.NewInMemory(packets)

	auditStore := auditmemory.NewInMemoryStore()
	auditPublisher := compliance.New(auditStore, compliance.WithLogger(logger))
	ledgerStore := ledgerstore.NewInMemory()
	ledgerPublisher := ledger.New(ledgerStore, sink.NewLog(logger), ledger.WithLogger(logger))

	recordService := records.New(data, data, registry, data,
		records.WithLogger(logger), records.WithAuditPublisher(auditPublisher))
	exportService, err := export.New(data, cipher, exportstore.NewInMemory(),
		export.WithLogger(logger),
		export.WithAuditPublisher(auditPublisher),
		export.WithLedgerPublisher(ledgerPublisher),
	)
	require.NoError(t, err)
	importService, err := imports.New(recordService, data, importstore.NewInMemory(),
		imports.WithLogger(logger),
		imports.WithLedgerPublisher(ledgerPublisher),
		imports.WithAuditPublisher(auditPublisher),
	)
	require.NoError(t, err)
	engine, err := anonymize.New(exportService, cipher, vspstore.NewInMemory(),
		anonymize.WithLogger(logger),
		anonymize.WithAuditPublisher(auditPublisher),
		anonymize.WithLedgerPublisher(ledgerPublisher),
	)
	require.NoError(t, err)

	jwt := jwttoken.NewJWTService("pipeline-secret", "haven", "haven-api")
	token, err := jwt.GenerateAccessToken("analyst-1", []string{"ROLE_CASE_MANAGER"}, time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:             logger,
		Metrics:            metrics.New(reg),
		Gatherer:           reg,
		Validator:          jwttoken.NewMiddlewareValidator(jwt),
		Sharing:            handler.New(exportService, importService, engine, logger),
		RequestTimeout:     10 * time.Second,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
	})

	clientID := uuid.New()
	p := &pipeline{
		router:     router,
		cipher:     cipher,
		audit:      auditStore,
		ledger:     ledgerStore,
		token:      token,
		enrollment: models.Enrollment{ID: uuid.New(), ClientID: clientID, CocID: "CA-600"},
		consent: models.Consent{
			ID:          uuid.New(),
			ClientID:    clientID,
			Status:      models.ConsentStatusGranted,
			Version:     1,
			EffectiveAt: time.Now().Add(-24 * time.Hour),
			Scopes:      models.ScopeSet{models.ScopeCoordinatedEntry},
		},
	}
	data.PutEnrollment(p.enrollment)
	data.PutConsent(p.consent)
	return p
}

func (p *pipeline) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(p.router, testutil.WithBearer(req, p.token))
}

func (p *pipeline) importCSV() string {
	return fmt.Sprintf("recordType,enrollmentId,clientId,consentId,encryptionKeyId,assessmentDate,assessmentType,assessmentLevel,location\n"+
		"ASSESSMENT,%s,%s,%s,%s,2024-03-01,CRISIS_NEEDS,HIGH,Oakland\n",
		p.enrollment.ID, p.enrollment.ClientID, p.consent.ID, keyID)
}

func TestSharingPipeline(t *testing.T) {
	testutil.Given(t, "a client enrolled with a granted coordinated entry consent", func(t *testing.T) {
		p := newPipeline(t)

		testutil.When(t, "a partner imports an assessment", func(t *testing.T) {
			rr := p.do(t, httptest.NewRequest(http.MethodPost,
				"/ce/imports?format=csv&source_system=PARTNER_HMIS", strings.NewReader(p.importCSV())))

			testutil.Then(t, "the row is stored and a pending ledger update is recorded", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				body := testutil.UnmarshalResponse[map[string]any](t, rr)
				assert.EqualValues(t, 1, (*body)["succeeded"])
				assert.EqualValues(t, 0, (*body)["failed"])

				pending, err := p.ledger.ListPending(context.Background(), 10)
				require.NoError(t, err)
				require.Len(t, pending, 1)
				assert.Equal(t, "PARTNER_HMIS", pending[0].SourceSystem)
			})
		})

		testutil.When(t, "the coordinated entry export runs", func(t *testing.T) {
			rr := p.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/ce/exports", map[string]any{
				"cocId":           p.enrollment.CocID,
				"enrollmentIds":   []string{p.enrollment.ID.String()},
				"requiredScopes":  []string{string(models.ScopeCoordinatedEntry)},
				"encryptionKeyId": keyID,
				"format":          "json",
			}))

			testutil.Then(t, "a sealed artifact and its receipt come back", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				body := testutil.UnmarshalResponse[struct {
					Receipt struct {
						ID          string `json:"id"`
						RecordCount int    `json:"recordCount"`
					} `json:"receipt"`
					Artifact string `json:"artifact"`
				}](t, rr)
				assert.Equal(t, 1, body.Receipt.RecordCount)

				blob, err := base64.StdEncoding.DecodeString(body.Artifact)
				require.NoError(t, err)
				plaintext, err := p.cipher.Decrypt(context.Background(), blob, keyID)
				require.NoError(t, err)
				assert.Contains(t, string(plaintext), "CRISIS_NEEDS")

				rr := p.do(t, testutil.NewRequest(t, http.MethodGet, "/ce/exports/"+body.Receipt.ID))
				testutil.AssertStatus(t, rr, http.StatusOK)
				testutil.AssertJSONContains(t, rr, "recordCount", float64(1))
			})
		})

		testutil.When(t, "the same records are shared with a research institution", func(t *testing.T) {
			rr := p.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/ce/vsp-exports", map[string]any{
				"recipient":         "state-university",
				"recipientCategory": "RESEARCH_INSTITUTION",
				"consentBasis":      "written release",
				"cocId":             p.enrollment.CocID,
				"enrollmentIds":     []string{p.enrollment.ID.String()},
				"shareScopes":       []string{string(models.ScopeCoordinatedEntry)},
				"encryptionKeyId":   keyID,
				"exportReason":      "program evaluation",
			}))

			testutil.Then(t, "an active anonymized export is recorded and can be revoked once", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				body := testutil.UnmarshalResponse[map[string]any](t, rr)
				assert.Equal(t, "ACTIVE", (*body)["status"])
				assert.EqualValues(t, 1, (*body)["recordCount"])
				exportID, _ := (*body)["exportId"].(string)
				require.NotEmpty(t, exportID)

				rr := p.do(t, testutil.NewRequest(t, http.MethodGet, "/ce/vsp-exports/history/state-university"))
				testutil.AssertStatus(t, rr, http.StatusOK)
				testutil.AssertJSONContains(t, rr, "totalExports", float64(1))

				revoke := map[string]string{"reason": "study closed"}
				rr = p.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/ce/vsp-exports/"+exportID+"/revoke", revoke))
				testutil.AssertStatus(t, rr, http.StatusOK)
				testutil.AssertJSONContains(t, rr, "status", "REVOKED")

				rr = p.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/ce/vsp-exports/"+exportID+"/revoke", revoke))
				testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")

				revoked, err := p.audit.ListByAction(context.Background(), audit.ActionVspExportRevoked)
				require.NoError(t, err)
				assert.Len(t, revoked, 1)
			})
		})

		testutil.When(t, "a recipient outside every authorized category is named", func(t *testing.T) {
			rr := p.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/ce/vsp-exports", map[string]any{
				"recipient":         "data-broker",
				"recipientCategory": "MARKETING",
				"cocId":             p.enrollment.CocID,
				"enrollmentIds":     []string{p.enrollment.ID.String()},
				"shareScopes":       []string{string(models.ScopeCoordinatedEntry)},
				"encryptionKeyId":   keyID,
			}))

			testutil.Then(t, "the export is refused as a consent violation", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "consent_violation")
			})
		})
	})
}

func TestSharingRoutesRequireAuthentication(t *testing.T) {
	p := newPipeline(t)
	rr := testutil.DoRequest(p.router, testutil.NewRequest(t, http.MethodGet, "/ce/exports?coc_id=CA-600"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
