// Package anonymize produces redacted, revocable exports for third-party
// recipients such as victim service providers.
//
// The recipient's trust category selects a redaction tier; the caller's
// AccessContext can only tighten DV redaction on top of it. The records come
// from a regular CE export, so every consent and scope check of that path
// applies unchanged.
package anonymize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/sentinel"
	strutil "haven/pkg/platform/strings"
	"haven/pkg/platform/tx"
	"haven/pkg/requestcontext"
)

const tracerName = "haven/internal/sharing/anonymize"

const fileTimeLayout = "20060102_150405"

// Exporter runs the underlying consent-checked CE export in steps, so its
// receipt commits in the same transaction as the recipient export and its
// ledger fact goes out only after that commit.
type Exporter interface {
	Prepare(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error)
	Commit(ctx context.Context, res *models.ExportResult) error
	Publish(ctx context.Context, res *models.ExportResult)
}

// Sealer encrypts the anonymized payload.
type Sealer interface {
	Encrypt(ctx context.Context, plaintext []byte, keyID string) ([]byte, error)
}

// Store persists export envelopes. Update applies only while the stored row
// still has status from, and reports sentinel.ErrInvalidState otherwise.
type Store interface {
	Save(ctx context.Context, e models.VspExport) error
	Update(ctx context.Context, e models.VspExport, from models.VspExportStatus) error
	FindByID(ctx context.Context, id uuid.UUID) (models.VspExport, error)
	ListByRecipient(ctx context.Context, recipient string) ([]models.VspExport, error)
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]models.VspExport, error)
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type LedgerPublisher interface {
	Publish(ctx context.Context, fact models.LedgerFact)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SweepResult counts what one ProcessExpired pass changed.
type SweepResult struct {
	Expired int
	Purged  int
}

type Engine struct {
	exporter  Exporter
	sealer    Sealer
	store     Store
	tx        TxRunner
	audit     AuditPublisher
	ledger    LedgerPublisher
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	sweepSize int
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Engine) {
		e.audit = p
	}
}

func WithLedgerPublisher(p LedgerPublisher) Option {
	return func(e *Engine) {
		e.ledger = p
	}
}

func WithTxRunner(r TxRunner) Option {
	return func(e *Engine) {
		e.tx = r
	}
}

// WithSweepBatchSize bounds how many exports one ProcessExpired pass expires.
func WithSweepBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepSize = n
		}
	}
}

func New(exporter Exporter, sealer Sealer, store Store, opts ...Option) (*Engine, error) {
	if exporter == nil {
		return nil, errors.New("exporter is required")
	}
	if sealer == nil {
		return nil, errors.New("sealer is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	e := &Engine{
		exporter:  exporter,
		sealer:    sealer,
		store:     store,
		tx:        tx.NopRunner{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		sweepSize: 500,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// anonymizedPayload is the sealed document handed to the recipient.
type anonymizedPayload struct {
	ExportID    uuid.UUID        `json:"exportId"`
	Recipient   string           `json:"recipient"`
	CEHashKey   string           `json:"ceHashKey"`
	ExportedAt  string           `json:"exportedAt"`
	ExpiresAt   string           `json:"expiresAt"`
	RecordCount int              `json:"recordCount"`
	Records     []map[string]any `json:"records"`
}

// ExportForRecipient runs a CE export for req and returns its anonymized,
// sealed form together with the stored envelope.
func (e *Engine) ExportForRecipient(ctx context.Context, access models.AccessContext, req models.VspExportRequest) (result *models.VspExportResult, err error) {
	ctx, span := e.tracer.Start(ctx, "anonymize.ExportForRecipient", trace.WithAttributes(
		attribute.String("recipient_category", string(req.Category)),
		attribute.String("coc_id", req.CocID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
			e.metrics.incRefused(dErrors.CodeOf(err))
		}
		span.End()
	}()

	if req.Format == "" {
		req.Format = models.FormatCSV
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := authorize(req.Category, req.ShareScopes); err != nil {
		e.logger.WarnContext(ctx, "recipient export refused",
			"recipient_category", req.Category,
			"scopes", req.ShareScopes.String(),
			"error", err,
		)
		return nil, err
	}

	level := req.Category.AnonymizationLevel()
	redaction := RedactionLevelFor(access, req.DVRedaction)
	rules := WithRedactionLevel(models.RulesForLevel(level).WithRedactions(strutil.DedupeAndTrim(req.AdditionalRedactions)...), redaction)

	base, err := e.exporter.Prepare(ctx, req.ExportRequest())
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	id := req.RequestID
	if id == uuid.Nil {
		id = uuid.New()
	}
	hashKey := CEHashKey(req.Recipient, req.EnrollmentIDs, now)
	records := make([]map[string]any, len(base.Records))
	for i, r := range base.Records {
		records[i] = rules.Apply(r.Fields(), hashKey)
	}

	exp, err := models.NewVspExport(models.VspExportSpec{
		ID:              id,
		Recipient:       req.Recipient,
		Category:        req.Category,
		ConsentBasis:    req.ConsentBasis,
		PacketHash:      artifactHash(base.Artifact),
		CEHashKey:       hashKey,
		ReceiptID:       base.Receipt.ID,
		ExpiresAt:       now.Add(req.Expiry()),
		ShareScopes:     req.ShareScopes,
		Rules:           rules,
		Metadata:        exportMetadata(req, base),
		InitiatedBy:     req.InitiatedBy,
		RequireApproval: req.RequireApproval,
	}, now)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(anonymizedPayload{
		ExportID:    exp.ID,
		Recipient:   exp.Recipient,
		CEHashKey:   exp.CEHashKey,
		ExportedAt:  exp.ExportedAt.UTC().Format(time.RFC3339),
		ExpiresAt:   exp.ExpiresAt.UTC().Format(time.RFC3339),
		RecordCount: len(records),
		Records:     records,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode recipient export")
	}
	artifact, err := e.sealer.Encrypt(ctx, plaintext, req.EncryptionKeyID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeCryptoFailure) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to seal recipient export")
	}

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.store.Save(ctx, exp); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "recipient export already exists: "+exp.ID.String())
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save recipient export")
		}
		if err := e.exporter.Commit(ctx, base); err != nil {
			return err
		}
		return e.emit(ctx, audit.ActionVspExportCreated, exp, map[string]string{
			"recipientCategory": req.Category.Code(),
			"ceHashKey":         exp.CEHashKey,
			"shareScopes":       exp.ShareScopes.String(),
			"dataSize":          fmt.Sprint(len(artifact)),
			"expiryDate":        exp.ExpiresAt.UTC().Format(time.RFC3339),
			"receiptId":         exp.ReceiptID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	e.exporter.Publish(ctx, base)
	if e.ledger != nil {
		e.ledger.Publish(ctx, models.VspExportPublished{
			ExportID:     exp.ID,
			Recipient:    exp.Recipient,
			ConsentBasis: exp.ConsentBasis,
			ShareScopes:  exp.ShareScopes,
			CEHashKey:    exp.CEHashKey,
			Timestamp:    exp.ExportedAt,
		})
	}
	e.metrics.incCreated(level)
	e.logger.InfoContext(ctx, "recipient export created",
		"export_id", exp.ID,
		"recipient_category", exp.Category,
		"anonymization_level", level,
		"redaction_level", redaction,
		"record_count", len(records),
		"status", exp.Status,
	)

	return &models.VspExportResult{
		Export:         exp,
		Level:          level,
		RedactionLevel: redaction,
		FileName:       fileName(exp),
		RecordCount:    len(records),
		Records:        records,
		Artifact:       artifact,
	}, nil
}

// authorize refuses scopes the recipient category may not receive.
func authorize(category models.RecipientCategory, scopes models.ScopeSet) error {
	if category == models.RecipientUnauthorized {
		return dErrors.New(dErrors.CodeConsentViolation,
			"Recipient category "+string(category)+" is not authorized for export")
	}
	if !scopes.RequiresVAWAClearance() {
		return nil
	}
	if !category.AuthorizedForVictimData() {
		return dErrors.New(dErrors.CodeConsentViolation,
			"Recipient category "+string(category)+" is not authorized for victim data")
	}
	if !category.FullVAWACompliance() {
		return dErrors.New(dErrors.CodeConsentViolation,
			"Recipient does not have full VAWA compliance for DV data")
	}
	return nil
}

func exportMetadata(req models.VspExportRequest, base *models.ExportResult) map[string]string {
	m := map[string]string{
		"cocId":           req.CocID,
		"exportFormat":    string(req.Format),
		"enrollmentCount": fmt.Sprint(len(req.EnrollmentIDs)),
		"recordCount":     fmt.Sprint(len(base.Records)),
		"sourceFileName":  base.Receipt.FileName,
	}
	if req.ExportReason != "" {
		m["exportReason"] = req.ExportReason
	}
	return m
}

func artifactHash(artifact []byte) string {
	sum := sha256.Sum256(artifact)
	return hex.EncodeToString(sum[:])
}

func fileName(e models.VspExport) string {
	return fmt.Sprintf("VSP_Export_%s_%s_%s.json.enc",
		e.Category.Code(), e.ExportedAt.UTC().Format(fileTimeLayout), strings.ToLower(e.ID.String()[:8]))
}

// Get returns one export with expiry applied lazily.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.VspExport, error) {
	exp, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	exp.Status = exp.EffectiveStatus(requestcontext.Now(ctx))
	return &exp, nil
}

// Approve activates an export created with RequireApproval.
func (e *Engine) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*models.VspExport, error) {
	exp, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := exp.Approve(requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.update(ctx, next, exp.Status); err != nil {
			return err
		}
		return e.emit(ctx, audit.ActionVspExportApproved, next, map[string]string{"approvedBy": approvedBy})
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "recipient export approved", "export_id", id, "approved_by", approvedBy)
	return &next, nil
}

// Revoke ends a recipient's right to use an export. Exports that are already
// revoked or expired are rejected with their status unchanged.
func (e *Engine) Revoke(ctx context.Context, id uuid.UUID, revokedBy, reason string) (*models.VspExport, error) {
	if strings.TrimSpace(revokedBy) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revokedBy is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	exp, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if !exp.Status.IsTerminal() && exp.IsExpired(now) {
		// record the lapse so the rejection below matches the stored state
		if expired, err := exp.Expire(now); err == nil {
			if err := e.update(ctx, expired, exp.Status); err != nil {
				return nil, err
			}
			exp = expired
		}
	}
	next, err := exp.Revoke(revokedBy, reason, now)
	if err != nil {
		return nil, err
	}
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.update(ctx, next, exp.Status); err != nil {
			return err
		}
		return e.emit(ctx, audit.ActionVspExportRevoked, next, map[string]string{
			"revokedBy": revokedBy,
			"reason":    reason,
		})
	})
	if err != nil {
		return nil, err
	}
	e.metrics.incRevoked()
	e.logger.InfoContext(ctx, "recipient export revoked; notifying recipient",
		"export_id", id,
		"recipient_category", next.Category,
		"revoked_by", revokedBy,
	)
	return &next, nil
}

// ProcessExpired moves lapsed exports to EXPIRED and purges EXPIRED exports
// past the retention window. Each export is handled on its own; failures are
// joined into the returned error and the sweep carries on.
func (e *Engine) ProcessExpired(ctx context.Context) (SweepResult, error) {
	now := requestcontext.Now(ctx)
	var (
		res  SweepResult
		errs []error
	)

	due, err := e.store.ListExpiring(ctx, now, e.sweepSize)
	if err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expiring exports")
	}
	for _, exp := range due {
		next, err := exp.Expire(now)
		if err != nil {
			continue
		}
		if err := e.store.Update(ctx, next, exp.Status); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				// revoked or expired concurrently
				continue
			}
			errs = append(errs, fmt.Errorf("expire %s: %w", exp.ID, err))
			continue
		}
		res.Expired++
		if err := e.emit(ctx, audit.ActionVspExportExpired, next, nil); err != nil {
			e.logger.ErrorContext(ctx, "failed to audit export expiry", "export_id", exp.ID, "error", err)
		}
	}

	purged, err := e.store.PurgeExpired(ctx, now.Add(-models.VspRetention))
	if err != nil {
		errs = append(errs, fmt.Errorf("purge expired exports: %w", err))
	}
	res.Purged = purged
	if purged > 0 {
		err := e.emitSystem(ctx, audit.ActionVspExportPurged, map[string]string{"purged": fmt.Sprint(purged)})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to audit export purge", "error", err)
		}
	}

	e.metrics.observeSweep(res)
	e.logger.InfoContext(ctx, "recipient export sweep finished",
		"expired", res.Expired,
		"purged", res.Purged,
	)
	if len(errs) > 0 {
		return res, dErrors.Wrap(errors.Join(errs...), dErrors.CodeInternal, "export sweep incomplete")
	}
	return res, nil
}

// ShareHistory summarises every export made to recipient.
func (e *Engine) ShareHistory(ctx context.Context, recipient string) (*models.RecipientShareHistory, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	exports, err := e.store.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load share history")
	}
	h := models.NewShareHistory(recipient, exports, requestcontext.Now(ctx))
	return &h, nil
}

func (e *Engine) load(ctx context.Context, id uuid.UUID) (models.VspExport, error) {
	exp, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.VspExport{}, dErrors.New(dErrors.CodeNotFound, "Export not found: "+id.String())
		}
		return models.VspExport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient export")
	}
	return exp, nil
}

func (e *Engine) update(ctx context.Context, next models.VspExport, from models.VspExportStatus) error {
	if err := e.store.Update(ctx, next, from); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeConflict, "export changed concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update recipient export")
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, action audit.Action, exp models.VspExport, details map[string]string) error {
	if e.audit == nil {
		return nil
	}
	d := map[string]string{
		"exportId":  exp.ID.String(),
		"recipient": exp.Recipient,
		"status":    string(exp.Status),
	}
	for k, v := range details {
		d[k] = v
	}
	actor := requestcontext.Subject(ctx)
	if actor == "" {
		actor = exp.InitiatedBy
	}
	return e.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "vsp_export",
		ResourceID:   exp.ID.String(),
		ActorID:      actor,
		Details:      d,
	})
}

func (e *Engine) emitSystem(ctx context.Context, action audit.Action, details map[string]string) error {
	if e.audit == nil {
		return nil
	}
	return e.audit.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: "vsp_export",
		ActorID:      "system",
		Details:      details,
	})
}
