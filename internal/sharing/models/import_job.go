package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// ImportFormat names an inbound payload shape.
type ImportFormat string

const (
	ImportHMISCSV    ImportFormat = "HMIS_CSV"
	ImportHMISXML    ImportFormat = "HMIS_XML"
	ImportVendorFeed ImportFormat = "VENDOR_FEED"
)

// ParseImportFormat accepts the wire names and the short csv/xml/json aliases.
func ParseImportFormat(raw string) (ImportFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "HMIS_CSV", "CSV":
		return ImportHMISCSV, nil
	case "HMIS_XML", "XML":
		return ImportHMISXML, nil
	case "VENDOR_FEED", "JSON":
		return ImportVendorFeed, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported import format: "+raw)
}

// DefaultImportSourceSystem labels imports whose caller named no source.
const DefaultImportSourceSystem = "CE_IMPORT"

// ImportOptions controls one import call.
type ImportOptions struct {
	Format       ImportFormat
	SourceSystem string
	InitiatedBy  string
	Delimiter    rune
	FileName     string
}

// Normalize applies defaults.
func (o ImportOptions) Normalize() ImportOptions {
	if strings.TrimSpace(o.SourceSystem) == "" {
		o.SourceSystem = DefaultImportSourceSystem
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// ImportJobStatus is the lifecycle state of an import job.
type ImportJobStatus string

const (
	ImportJobCreated    ImportJobStatus = "CREATED"
	ImportJobProcessing ImportJobStatus = "PROCESSING"
	ImportJobCompleted  ImportJobStatus = "COMPLETED"
	ImportJobFailed     ImportJobStatus = "FAILED"
)

func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobCompleted || s == ImportJobFailed
}

// ImportJob tracks one import call.
//
// Invariants:
//   - status moves CREATED -> PROCESSING -> COMPLETED | FAILED only
//   - COMPLETED and FAILED are terminal
//   - counters change only while PROCESSING
//   - Attempted == Succeeded + Failed
//
// ImportJob is a value: Apply returns the next state and never mutates the
// receiver.
type ImportJob struct {
	ID            uuid.UUID
	SourceSystem  string
	Format        ImportFormat
	Status        ImportJobStatus
	InitiatedBy   string
	FileName      string
	Attempted     int
	Succeeded     int
	Failed        int
	Warned        int
	ErrorLog      []string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewImportJob creates a job in CREATED state.
func NewImportJob(id uuid.UUID, opts ImportOptions, now time.Time) (ImportJob, error) {
	if id == uuid.Nil {
		return ImportJob{}, dErrors.New(dErrors.CodeInvariantViolation, "import job id is required")
	}
	opts = opts.Normalize()
	return ImportJob{
		ID:           id,
		SourceSystem: opts.SourceSystem,
		Format:       opts.Format,
		Status:       ImportJobCreated,
		InitiatedBy:  opts.InitiatedBy,
		FileName:     opts.FileName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ImportJobEvent is a closed set of job transitions.
type ImportJobEvent interface {
	importJobEvent()
}

type (
	JobStarted      struct{ At time.Time }
	RecordSucceeded struct{}
	RecordFailed    struct{ Line string }
	RecordWarned    struct{ Warning string }
	JobCompleted    struct{ At time.Time }
	JobAborted      struct {
		Reason string
		At     time.Time
	}
)

func (JobStarted) importJobEvent()      {}
func (RecordSucceeded) importJobEvent() {}
func (RecordFailed) importJobEvent()    {}
func (RecordWarned) importJobEvent()    {}
func (JobCompleted) importJobEvent()    {}
func (JobAborted) importJobEvent()      {}

// Apply returns the job state after ev.
func (j ImportJob) Apply(ev ImportJobEvent) (ImportJob, error) {
	next := j
	next.ErrorLog = slices.Clone(j.ErrorLog)

	switch e := ev.(type) {
	case JobStarted:
		if j.Status != ImportJobCreated {
			return j, illegalJobTransition(j.Status, ImportJobProcessing)
		}
		next.Status = ImportJobProcessing
		next.UpdatedAt = e.At
	case RecordSucceeded:
		if j.Status != ImportJobProcessing {
			return j, illegalJobTransition(j.Status, j.Status)
		}
		next.Attempted++
		next.Succeeded++
	case RecordFailed:
		if j.Status != ImportJobProcessing {
			return j, illegalJobTransition(j.Status, j.Status)
		}
		next.Attempted++
		next.Failed++
		next.ErrorLog = append(next.ErrorLog, e.Line)
	case RecordWarned:
		if j.Status != ImportJobProcessing {
			return j, illegalJobTransition(j.Status, j.Status)
		}
		next.Warned++
		next.ErrorLog = append(next.ErrorLog, "Warning: "+e.Warning)
	case JobCompleted:
		if j.Status != ImportJobProcessing {
			return j, illegalJobTransition(j.Status, ImportJobCompleted)
		}
		next.Status = ImportJobCompleted
		next.UpdatedAt = e.At
		next.CompletedAt = &e.At
	case JobAborted:
		if j.Status.IsTerminal() {
			return j, illegalJobTransition(j.Status, ImportJobFailed)
		}
		next.Status = ImportJobFailed
		next.FailureReason = e.Reason
		next.ErrorLog = append(next.ErrorLog, e.Reason)
		next.UpdatedAt = e.At
		next.CompletedAt = &e.At
	default:
		return j, dErrors.New(dErrors.CodeInvariantViolation, "unknown import job event")
	}
	return next, nil
}

// Start moves a CREATED job to PROCESSING.
func (j ImportJob) Start(now time.Time) (ImportJob, error) {
	return j.Apply(JobStarted{At: now})
}

func (j ImportJob) RecordSuccess() (ImportJob, error) {
	return j.Apply(RecordSucceeded{})
}

// RecordFailure counts a failed record and appends line to the error log.
func (j ImportJob) RecordFailure(line string) (ImportJob, error) {
	return j.Apply(RecordFailed{Line: line})
}

func (j ImportJob) RecordWarning(warning string) (ImportJob, error) {
	return j.Apply(RecordWarned{Warning: warning})
}

func (j ImportJob) Complete(now time.Time) (ImportJob, error) {
	return j.Apply(JobCompleted{At: now})
}

// Fail aborts the job from any non-terminal state.
func (j ImportJob) Fail(reason string, now time.Time) (ImportJob, error) {
	return j.Apply(JobAborted{Reason: reason, At: now})
}

// ErrorLogText joins the log one entry per line.
func (j ImportJob) ErrorLogText() string {
	return strings.Join(j.ErrorLog, "\n")
}

func illegalJobTransition(from, to ImportJobStatus) error {
	return dErrors.New(dErrors.CodeInvariantViolation,
		"import job cannot move from "+string(from)+" to "+string(to))
}

// ImportResult summarises a finished import.
type ImportResult struct {
	JobID     uuid.UUID
	Status    ImportJobStatus
	Succeeded int
	Failed    int
	Warnings  int
	ErrorLog  []string
}

// ResultOf projects a job into the caller-facing summary.
func ResultOf(j ImportJob) *ImportResult {
	return &ImportResult{
		JobID:     j.ID,
		Status:    j.Status,
		Succeeded: j.Succeeded,
		Failed:    j.Failed,
		Warnings:  j.Warned,
		ErrorLog:  slices.Clone(j.ErrorLog),
	}
}
