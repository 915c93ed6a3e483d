// Package export produces encrypted, consent-checked CE export artifacts.
//
// An export is all-or-nothing: every gathered record must allow every
// required scope before anything is encoded, and the receipt and its
// compliance audit entry commit together. The ledger fact is published after
// commit and never fails the export.
package export

import (
	"context"
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

	"haven/internal/sharing/codec"
	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/sentinel"
	"haven/pkg/platform/tx"
	"haven/pkg/requestcontext"
)

const tracerName = "haven/internal/sharing/export"

// fileTimeLayout renders yyyyMMdd_HHmmss.
const fileTimeLayout = "20060102_150405"

// RecordSource gathers export records, joined with their packets, for a set
// of enrollments inside an inclusive date window.
type RecordSource interface {
	Assessments(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error)
	Events(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error)
	Referrals(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error)
}

type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte, keyID string) ([]byte, error)
}

type ReceiptStore interface {
	Save(ctx context.Context, r *models.ExportReceipt) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ExportReceipt, error)
	ListByCoc(ctx context.Context, cocID string) ([]*models.ExportReceipt, error)
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

type Service struct {
	source   RecordSource
	cipher   Cipher
	receipts ReceiptStore
	tx       TxRunner
	audit    AuditPublisher
	ledger   LedgerPublisher
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithLedgerPublisher(p LedgerPublisher) Option {
	return func(s *Service) {
		s.ledger = p
	}
}

// WithTxRunner commits the receipt and its audit entry atomically.
func WithTxRunner(r TxRunner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(source RecordSource, cipher Cipher, receipts ReceiptStore, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("record source is required")
	}
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if receipts == nil {
		return nil, errors.New("receipt store is required")
	}
	s := &Service{
		source:   source,
		cipher:   cipher,
		receipts: receipts,
		tx:       tx.NopRunner{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Export gathers, checks, encodes and encrypts the requested records and
// records a receipt. On any error no receipt exists and no artifact is
// returned.
func (s *Service) Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	start := time.Now()
	res, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Commit(ctx, res); err != nil {
		s.metrics.incFailed(dErrors.CodeOf(err))
		return nil, err
	}
	s.Publish(ctx, res)
	s.metrics.observeExport(res.Receipt.Format, len(res.Records), time.Since(start))
	return res, nil
}

// Prepare builds the sealed artifact and its unsaved receipt. Nothing is
// persisted or published until Commit and Publish.
func (s *Service) Prepare(ctx context.Context, req models.ExportRequest) (result *models.ExportResult, err error) {
	ctx, span := s.tracer.Start(ctx, "export.Prepare", trace.WithAttributes(
		attribute.String("coc_id", req.CocID),
		attribute.String("export_type", string(req.ExportType)),
		attribute.String("format", string(req.Format)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
			s.metrics.incFailed(dErrors.CodeOf(err))
		}
		span.End()
	}()

	if req.Format == "" {
		req.Format = models.FormatCSV
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	enc, err := codec.ForFormat(req.Format)
	if err != nil {
		return nil, err
	}

	records, err := s.gather(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkScopes(records, req.RequiredScopes); err != nil {
		s.logger.WarnContext(ctx, "export refused by consent scope",
			"coc_id", req.CocID,
			"export_type", req.ExportType,
			"error", err,
		)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	receiptID := uuid.New()
	plaintext, err := enc.Encode(codec.Envelope{
		ExportID:   receiptID,
		CocID:      req.CocID,
		ExportType: req.ExportType,
		ExportedAt: now,
	}, records)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode export")
	}
	artifact, err := s.cipher.Encrypt(ctx, plaintext, req.EncryptionKeyID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeCryptoFailure) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to encrypt export")
	}

	receipt, err := models.NewExportReceipt(receiptID, req, FileName(req.CocID, now, req.ExportType, req.Format), len(records), int64(len(artifact)), now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("record_count", len(records)))

	return &models.ExportResult{
		Receipt:    receipt,
		Artifact:   artifact,
		Records:    records,
		ExportedAt: now,
	}, nil
}

// Commit saves the receipt and its compliance audit entry together. It joins
// a transaction already carried by ctx, so callers can commit further rows
// with it atomically.
func (s *Service) Commit(ctx context.Context, res *models.ExportResult) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.receipts.Save(ctx, res.Receipt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save export receipt")
		}
		return s.emitExported(ctx, res.Receipt)
	})
}

// Publish announces a committed export on the ledger. Call it only after the
// transaction holding Commit has committed.
func (s *Service) Publish(ctx context.Context, res *models.ExportResult) {
	s.publish(ctx, res.Receipt, res.Records)
	s.logger.InfoContext(ctx, "ce export completed",
		"receipt_id", res.Receipt.ID,
		"coc_id", res.Receipt.CocID,
		"export_type", res.Receipt.ExportType,
		"record_count", res.Receipt.RecordCount,
		"file_size", res.Receipt.FileSize,
	)
}

// gather collects assessments, then events, then referrals.
func (s *Service) gather(ctx context.Context, req models.ExportRequest) ([]models.ExportRecord, error) {
	type step struct {
		include bool
		kind    string
		fetch   func(context.Context, []uuid.UUID, models.DateRange) ([]models.ExportRecord, error)
	}
	steps := []step{
		{req.ExportType.IncludesAssessments(), "assessments", s.source.Assessments},
		{req.ExportType.IncludesEvents(), "events", s.source.Events},
		{req.ExportType.IncludesReferrals(), "referrals", s.source.Referrals},
	}
	var records []models.ExportRecord
	for _, st := range steps {
		if !st.include {
			continue
		}
		got, err := st.fetch(ctx, req.EnrollmentIDs, req.Window)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "packet not found for "+st.kind)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to gather "+st.kind)
		}
		for _, r := range got {
			if req.Window.Contains(r.Date) {
				records = append(records, r)
			}
		}
	}
	return records, nil
}

// checkScopes refuses the export when any record lacks any required scope.
func checkScopes(records []models.ExportRecord, required models.ScopeSet) error {
	for _, r := range records {
		for _, scope := range required {
			if !r.ShareScopes.Contains(scope) {
				return dErrors.New(dErrors.CodeConsentViolation,
					fmt.Sprintf("Record %s does not allow required scope %s", r.RecordID, scope))
			}
		}
	}
	return nil
}

func (s *Service) emitExported(ctx context.Context, r *models.ExportReceipt) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.Event{
		Action:       audit.ActionCEDataExported,
		ResourceType: "ce_export_receipt",
		ResourceID:   r.ID.String(),
		ActorID:      r.InitiatedBy,
		Details: map[string]string{
			"receiptId":   r.ID.String(),
			"cocId":       r.CocID,
			"recordCount": fmt.Sprint(r.RecordCount),
			"exportType":  string(r.ExportType),
			"initiatedBy": r.InitiatedBy,
		},
	})
}

func (s *Service) publish(ctx context.Context, r *models.ExportReceipt, records []models.ExportRecord) {
	if s.ledger == nil {
		return
	}
	ids := make([]uuid.UUID, len(records))
	for i, rec := range records {
		ids[i] = rec.RecordID
	}
	s.ledger.Publish(ctx, models.ExportPublished{
		ReceiptID:   r.ID,
		CocID:       r.CocID,
		ExportType:  r.ExportType,
		RecordCount: len(records),
		RecordIDs:   ids,
		Timestamp:   r.CreatedAt,
	})
}

// GetReceipt returns one export receipt.
func (s *Service) GetReceipt(ctx context.Context, id uuid.UUID) (*models.ExportReceipt, error) {
	r, err := s.receipts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "export receipt not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load export receipt")
	}
	return r, nil
}

// ListReceipts returns a CoC's receipts, newest first.
func (s *Service) ListReceipts(ctx context.Context, cocID string) ([]*models.ExportReceipt, error) {
	if strings.TrimSpace(cocID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "coc id is required")
	}
	receipts, err := s.receipts.ListByCoc(ctx, cocID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list export receipts")
	}
	return receipts, nil
}

// FileName builds CE_Export_<cocId>_<yyyyMMdd_HHmmss>_<ExportType>.<format>.enc
// from the UTC export time.
func FileName(cocID string, at time.Time, exportType models.ExportType, format models.Format) string {
	return fmt.Sprintf("CE_Export_%s_%s_%s.%s.enc",
		cocID, at.UTC().Format(fileTimeLayout), exportType, strings.ToLower(string(format)))
}
