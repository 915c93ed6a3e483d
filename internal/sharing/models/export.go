package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// ExportType filters which record kinds an export gathers.
type ExportType string

const (
	ExportAssessmentOnly ExportType = "ASSESSMENT_ONLY"
	ExportEventOnly      ExportType = "EVENT_ONLY"
	ExportReferralOnly   ExportType = "REFERRAL_ONLY"
	ExportAllRecords     ExportType = "ALL_RECORDS"
)

func (t ExportType) IsValid() bool {
	switch t {
	case ExportAssessmentOnly, ExportEventOnly, ExportReferralOnly, ExportAllRecords:
		return true
	}
	return false
}

func (t ExportType) IncludesAssessments() bool {
	return t == ExportAssessmentOnly || t == ExportAllRecords
}

func (t ExportType) IncludesEvents() bool {
	return t == ExportEventOnly || t == ExportAllRecords
}

func (t ExportType) IncludesReferrals() bool {
	return t == ExportReferralOnly || t == ExportAllRecords
}

// Format is an interchange serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ParseFormat accepts any letter case.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FormatCSV, FormatXML, FormatJSON:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported export format: "+raw)
}

// DateRange is an inclusive calendar window; nil bounds are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether d falls inside the window, comparing dates only.
func (r DateRange) Contains(d time.Time) bool {
	day := truncateDay(d)
	if r.Start != nil && day.Before(truncateDay(*r.Start)) {
		return false
	}
	if r.End != nil && day.After(truncateDay(*r.End)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExportRequest asks for an encrypted CE export for one CoC.
type ExportRequest struct {
	CocID           string
	EnrollmentIDs   []uuid.UUID
	Window          DateRange
	ExportType      ExportType
	RequiredScopes  ScopeSet
	EncryptionKeyID string
	Format          Format
	InitiatedBy     string
}

// Validate checks the request shape before any record is gathered.
func (r ExportRequest) Validate() error {
	if strings.TrimSpace(r.CocID) == "" {
		return dErrors.New(dErrors.CodeValidation, "coc id is required")
	}
	if len(r.EnrollmentIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one enrollment id is required")
	}
	if !r.ExportType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid export type: "+string(r.ExportType))
	}
	if strings.TrimSpace(r.EncryptionKeyID) == "" {
		return dErrors.New(dErrors.CodeValidation, "encryption key id is required")
	}
	if r.Window.Start != nil && r.Window.End != nil && r.Window.End.Before(*r.Window.Start) {
		return dErrors.New(dErrors.CodeValidation, "export window end precedes start")
	}
	return nil
}

// ExportReceipt records one completed export. Immutable once created.
type ExportReceipt struct {
	ID              uuid.UUID
	CocID           string
	ExportType      ExportType
	Format          Format
	FileName        string
	RecordCount     int
	FileSize        int64
	EncryptionKeyID string
	InitiatedBy     string
	CreatedAt       time.Time
}

// NewExportReceipt validates the receipt fields.
func NewExportReceipt(id uuid.UUID, req ExportRequest, fileName string, recordCount int, fileSize int64, now time.Time) (*ExportReceipt, error) {
	if id == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "receipt id is required")
	}
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "receipt file name is required")
	}
	if recordCount < 0 || fileSize < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "receipt counts cannot be negative")
	}
	return &ExportReceipt{
		ID:              id,
		CocID:           req.CocID,
		ExportType:      req.ExportType,
		Format:          req.Format,
		FileName:        fileName,
		RecordCount:     recordCount,
		FileSize:        fileSize,
		EncryptionKeyID: req.EncryptionKeyID,
		InitiatedBy:     req.InitiatedBy,
		CreatedAt:       now,
	}, nil
}

// ExportResult is returned to the caller of a successful export.
type ExportResult struct {
	Receipt    *ExportReceipt
	Artifact   []byte
	Records    []ExportRecord
	ExportedAt time.Time
}
