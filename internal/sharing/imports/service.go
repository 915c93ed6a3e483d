// Package imports ingests CE payloads from partner systems.
//
// Each record is consent-checked and written on its own. A record that fails
// is counted and logged against the job and the batch continues; only a
// payload that cannot be read at all fails the job.
package imports

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
	"haven/internal/sharing/hashing"
	"haven/internal/sharing/models"
	"haven/internal/sharing/records"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/audit"
	"haven/pkg/platform/sentinel"
	"haven/pkg/requestcontext"
)

const tracerName = "haven/internal/sharing/imports"

// defaultImportHash applies when a row names no hash algorithm.
const defaultImportHash = models.HashSHA256Salt

// RecordWriter creates enrollment records; it resolves the packet itself.
type RecordWriter interface {
	CreateAssessment(ctx context.Context, cmd records.CreateAssessmentCommand) (*models.Assessment, error)
	CreateEvent(ctx context.Context, cmd records.CreateEventCommand) (*models.Event, error)
}

type ConsentLookup interface {
	FindConsent(ctx context.Context, id uuid.UUID) (models.Consent, error)
	FindLedgerEntry(ctx context.Context, id uuid.UUID) (models.ConsentLedgerEntry, error)
}

// JobStore persists import jobs. Save inserts or replaces.
type JobStore interface {
	Save(ctx context.Context, job models.ImportJob) error
	FindByID(ctx context.Context, id uuid.UUID) (models.ImportJob, error)
}

type LedgerPublisher interface {
	PublishPendingUpdate(ctx context.Context, consentID, packetID uuid.UUID, sourceSystem, payloadHash string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	writer   RecordWriter
	consents ConsentLookup
	jobs     JobStore
	ledger   LedgerPublisher
	audit    AuditPublisher
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

func WithLedgerPublisher(p LedgerPublisher) Option {
	return func(s *Service) {
		s.ledger = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func New(writer RecordWriter, consents ConsentLookup, jobs JobStore, opts ...Option) (*Service, error) {
	if writer == nil {
		return nil, errors.New("record writer is required")
	}
	if consents == nil {
		return nil, errors.New("consent lookup is required")
	}
	if jobs == nil {
		return nil, errors.New("job store is required")
	}
	s := &Service{
		writer:   writer,
		consents: consents,
		jobs:     jobs,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Import processes payload and returns the job summary. Per-record failures
// are in the result, never in the error. When the payload cannot be parsed
// the FAILED job summary is returned together with a validation error.
func (s *Service) Import(ctx context.Context, payload []byte, opts models.ImportOptions) (result *models.ImportResult, err error) {
	start := time.Now()
	opts = opts.Normalize()
	ctx, span := s.tracer.Start(ctx, "imports.Import", trace.WithAttributes(
		attribute.String("format", string(opts.Format)),
		attribute.String("source_system", opts.SourceSystem),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	if _, err := models.ParseImportFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	job, err := models.NewImportJob(uuid.New(), opts, now)
	if err != nil {
		return nil, err
	}
	if job, err = job.Start(now); err != nil {
		return nil, err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save import job")
	}
	span.SetAttributes(attribute.String("job_id", job.ID.String()))

	rows, err := codec.ReadImport(opts.Format, payload, opts.Delimiter)
	if err != nil {
		reason := "Unable to parse payload: " + dErrors.MessageOf(err)
		failed, ferr := job.Fail(reason, requestcontext.Now(ctx))
		if ferr != nil {
			return nil, ferr
		}
		if serr := s.jobs.Save(ctx, failed); serr != nil {
			s.logger.ErrorContext(ctx, "failed to save failed import job", "job_id", job.ID, "error", serr)
		}
		s.metrics.incJob(failed.Status)
		s.logger.WarnContext(ctx, "import payload rejected",
			"job_id", job.ID,
			"format", opts.Format,
			"error", err,
		)
		return models.ResultOf(failed), dErrors.Wrap(err, dErrors.CodeValidation, reason)
	}

	for _, row := range rows {
		job, err = s.processRow(ctx, job, row, opts)
		if err != nil {
			return nil, err
		}
		// progress is visible to GetJob while the batch runs
		if err := s.jobs.Save(ctx, job); err != nil {
			s.logger.WarnContext(ctx, "failed to save import progress", "job_id", job.ID, "error", err)
		}
	}

	if job, err = job.Complete(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save import job")
	}
	s.emitCompleted(ctx, job)
	s.metrics.incJob(job.Status)
	s.metrics.observeDuration(time.Since(start))
	s.logger.InfoContext(ctx, "ce import completed",
		"job_id", job.ID,
		"format", job.Format,
		"source_system", job.SourceSystem,
		"succeeded", job.Succeeded,
		"failed", job.Failed,
		"warned", job.Warned,
	)
	span.SetAttributes(
		attribute.Int("succeeded", job.Succeeded),
		attribute.Int("failed", job.Failed),
	)
	return models.ResultOf(job), nil
}

// processRow applies one row's outcome to job. The error return is reserved
// for job state violations; record failures are folded into the job.
func (s *Service) processRow(ctx context.Context, job models.ImportJob, row codec.ImportRow, opts models.ImportOptions) (models.ImportJob, error) {
	label := fmt.Sprintf("%s (%s)", strings.ToUpper(row.Fields.RecordLabel()), row.Fields.EnrollmentLabel())

	recErr := row.Err
	if recErr == nil {
		var rec models.ImportRecord
		rec, recErr = models.NewImportRecord(row.Fields)
		if recErr == nil {
			recErr = s.handle(ctx, rec, opts)
		}
	}

	var err error
	if recErr != nil {
		s.metrics.incRecord(outcomeFailed)
		s.logger.WarnContext(ctx, "import record rejected",
			"job_id", job.ID,
			"line", row.Line,
			"code", dErrors.CodeOf(recErr),
			"error", dErrors.MessageOf(recErr),
		)
		job, err = job.RecordFailure(label + ": " + dErrors.MessageOf(recErr))
	} else {
		s.metrics.incRecord(outcomeSucceeded)
		job, err = job.RecordSuccess()
	}
	if err != nil {
		return job, err
	}

	if warning := strings.TrimSpace(row.Fields.Values["warning"]); warning != "" {
		s.metrics.incRecord(outcomeWarned)
		return job.RecordWarning(warning)
	}
	return job, nil
}

func (s *Service) handle(ctx context.Context, rec models.ImportRecord, opts models.ImportOptions) error {
	if err := s.checkConsent(ctx, rec); err != nil {
		return err
	}

	alg := rec.HashAlgorithm
	if alg == "" {
		alg = defaultImportHash
	}
	sharing := records.Sharing{
		ConsentID:          rec.ConsentID,
		ConsentLedgerID:    rec.ConsentLedgerID,
		ShareScopes:        rec.ShareScopes,
		HashAlgorithm:      alg,
		EncryptionScheme:   rec.EncryptionScheme,
		EncryptionKeyID:    rec.EncryptionKeyID,
		EncryptionMetadata: rec.EncryptionMetadata,
		EncryptionTags:     rec.EncryptionTags,
	}

	var packetID uuid.UUID
	switch rec.RecordType {
	case models.RecordAssessment:
		a := rec.Assessment
		created, err := s.writer.CreateAssessment(ctx, records.CreateAssessmentCommand{
			EnrollmentID:         rec.EnrollmentID,
			ClientID:             rec.ClientID,
			Sharing:              sharing,
			AssessmentDate:       a.Date,
			AssessmentType:       a.Type,
			AssessmentLevel:      a.Level,
			ToolUsed:             a.ToolUsed,
			Score:                a.Score,
			PrioritizationStatus: a.PrioritizationStatus,
			Location:             a.Location,
			CreatedBy:            opts.InitiatedBy,
		})
		if err != nil {
			return err
		}
		packetID = created.PacketID
	case models.RecordEvent:
		e := rec.Event
		created, err := s.writer.CreateEvent(ctx, records.CreateEventCommand{
			EnrollmentID:        rec.EnrollmentID,
			ClientID:            rec.ClientID,
			Sharing:             sharing,
			EventDate:           e.Date,
			EventType:           e.Type,
			Status:              e.Status,
			Result:              e.Result,
			ReferralDestination: e.ReferralDestination,
			OutcomeDate:         e.OutcomeDate,
			CreatedBy:           opts.InitiatedBy,
		})
		if err != nil {
			return err
		}
		packetID = created.PacketID
	default:
		return dErrors.New(dErrors.CodeValidation, "Unsupported import record type: "+string(rec.RecordType))
	}

	if s.ledger != nil {
		source := rec.SourceSystem
		if source == "" {
			source = opts.SourceSystem
		}
		s.ledger.PublishPendingUpdate(ctx, rec.ConsentID, packetID, source, hashing.ImportPayloadHash(rec))
	}
	return nil
}

// checkConsent re-validates the consent the row asserts before anything is
// written.
func (s *Service) checkConsent(ctx context.Context, rec models.ImportRecord) error {
	if !rec.ConsentGranted {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent flag marked false")
	}
	consent, err := s.consents.FindConsent(ctx, rec.ConsentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Consent not found: "+rec.ConsentID.String())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	if !consent.IsValidForUse(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent is not active")
	}
	if rec.ConsentLedgerID == nil {
		return nil
	}
	entry, err := s.consents.FindLedgerEntry(ctx, *rec.ConsentLedgerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Consent ledger entry not found: "+rec.ConsentLedgerID.String())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent ledger entry")
	}
	if entry.Status != models.ConsentStatusGranted {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent ledger entry is not granted")
	}
	if entry.ClientID != rec.ClientID {
		return dErrors.New(dErrors.CodeConsentViolation, "Consent ledger entry does not belong to client")
	}
	return nil
}

// emitCompleted is operational; a failure is logged, not returned.
func (s *Service) emitCompleted(ctx context.Context, job models.ImportJob) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Action:       audit.ActionCEImportCompleted,
		ResourceType: "ce_import_job",
		ResourceID:   job.ID.String(),
		ActorID:      job.InitiatedBy,
		Details: map[string]string{
			"jobId":        job.ID.String(),
			"format":       string(job.Format),
			"sourceSystem": job.SourceSystem,
			"succeeded":    fmt.Sprint(job.Succeeded),
			"failed":       fmt.Sprint(job.Failed),
			"warned":       fmt.Sprint(job.Warned),
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit import audit event", "job_id", job.ID, "error", err)
	}
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "import job not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load import job")
	}
	return &job, nil
}
