package models

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// ImportFields is one parsed row of an import payload. Value keys are lower
// case column or attribute names.
type ImportFields struct {
	RecordType string // set by formats that carry the type structurally
	Values     map[string]string
	Metadata   map[string]string
	Tags       []string
}

// lookup returns the first non-blank value among keys.
func (f ImportFields) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := f.Values[k]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// RecordLabel is the best-effort record type used in error log lines, even
// for rows that fail validation.
func (f ImportFields) RecordLabel() string {
	if f.RecordType != "" {
		return f.RecordType
	}
	if v, ok := f.lookup("recordtype"); ok {
		return v
	}
	return "UNKNOWN"
}

// EnrollmentLabel is the raw enrollment id used in error log lines.
func (f ImportFields) EnrollmentLabel() string {
	v, _ := f.lookup("enrollmentid")
	return v
}

// ImportedAssessment carries the assessment columns of an import row.
type ImportedAssessment struct {
	Date                  time.Time
	Type                  string
	Level                 string
	ToolUsed              string
	Score                 *float64
	PrioritizationStatus  string
	Location              string
	RecipientOrganization string
}

// ImportedEvent carries the event columns of an import row.
type ImportedEvent struct {
	Date                time.Time
	Type                string
	Status              string
	Result              string
	ReferralDestination string
	OutcomeDate         *time.Time
}

// ImportRecord is a validated import row. Exactly one of Assessment and Event
// is set, matching RecordType.
type ImportRecord struct {
	RecordType         RecordType
	EnrollmentID       uuid.UUID
	ClientID           uuid.UUID
	ConsentID          uuid.UUID
	ConsentLedgerID    *uuid.UUID
	ConsentGranted     bool
	HashAlgorithm      HashAlgorithm
	EncryptionScheme   string
	EncryptionKeyID    string
	EncryptionMetadata map[string]string
	EncryptionTags     []string
	ShareScopes        ScopeSet
	SourceSystem       string
	Warning            string
	Assessment         *ImportedAssessment
	Event              *ImportedEvent
}

// NewImportRecord validates a parsed row eagerly. The returned error is a
// validation error whose message is suitable for the job error log.
func NewImportRecord(f ImportFields) (ImportRecord, error) {
	rawType, ok := f.RecordType, f.RecordType != ""
	if !ok {
		if rawType, ok = f.lookup("recordtype"); !ok {
			return ImportRecord{}, missingColumn("recordtype")
		}
	}
	recordType, err := ParseRecordType(rawType)
	if err != nil {
		return ImportRecord{}, err
	}
	if recordType == RecordReferral {
		return ImportRecord{}, dErrors.New(dErrors.CodeValidation, "Unsupported import record type: "+string(recordType))
	}

	rec := ImportRecord{
		RecordType:     recordType,
		ConsentGranted: true,
	}
	if rec.EnrollmentID, err = f.requiredUUID("enrollmentid"); err != nil {
		return ImportRecord{}, err
	}
	if rec.ClientID, err = f.requiredUUID("clientid"); err != nil {
		return ImportRecord{}, err
	}
	if rec.ConsentID, err = f.requiredUUID("consentid"); err != nil {
		return ImportRecord{}, err
	}
	keyID, ok := f.lookup("encryptionkeyid")
	if !ok {
		return ImportRecord{}, missingColumn("encryptionkeyid")
	}
	rec.EncryptionKeyID = keyID

	if raw, ok := f.lookup("consentledgerid"); ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ImportRecord{}, invalidValue("consentledgerid", raw)
		}
		rec.ConsentLedgerID = &id
	}
	if raw, ok := f.lookup("consentgranted"); ok {
		granted, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return ImportRecord{}, invalidValue("consentgranted", raw)
		}
		rec.ConsentGranted = granted
	}
	if raw, ok := f.lookup("hashalgorithm"); ok {
		rec.HashAlgorithm = HashAlgorithm(strings.ToUpper(raw))
	}
	rec.EncryptionScheme, _ = f.lookup("encryptionscheme")

	raw, _ := f.lookup("sharescopes")
	if rec.ShareScopes, err = ParseScopes(raw); err != nil {
		return ImportRecord{}, err
	}
	if len(rec.ShareScopes) == 0 {
		rec.ShareScopes = ScopeSet{DefaultShareScope}
	}

	rec.EncryptionMetadata = maps.Clone(f.Metadata)
	rec.EncryptionTags = slices.Clone(f.Tags)
	rec.SourceSystem, _ = f.lookup("sourcesystem")
	rec.Warning, _ = f.lookup("warning")

	switch recordType {
	case RecordAssessment:
		a, err := f.assessment()
		if err != nil {
			return ImportRecord{}, err
		}
		rec.Assessment = a
	case RecordEvent:
		e, err := f.event()
		if err != nil {
			return ImportRecord{}, err
		}
		rec.Event = e
	}
	return rec, nil
}

func (f ImportFields) assessment() (*ImportedAssessment, error) {
	rawDate, ok := f.lookup("assessmentdate", "date")
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Assessment date missing")
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, invalidValue("assessmentdate", rawDate)
	}
	assessmentType, ok := f.lookup("assessmenttype", "type")
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Assessment type missing")
	}
	a := &ImportedAssessment{Date: date, Type: assessmentType}
	a.Level, _ = f.lookup("assessmentlevel", "status")
	a.ToolUsed, _ = f.lookup("toolused")
	a.PrioritizationStatus, _ = f.lookup("prioritizationstatus")
	a.Location, _ = f.lookup("location")
	a.RecipientOrganization, _ = f.lookup("recipientorganization")
	if raw, ok := f.lookup("score"); ok {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, invalidValue("score", raw)
		}
		a.Score = &score
	}
	return a, nil
}

func (f ImportFields) event() (*ImportedEvent, error) {
	rawDate, ok := f.lookup("eventdate", "date")
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Event date missing")
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, invalidValue("eventdate", rawDate)
	}
	eventType, ok := f.lookup("eventtype", "type")
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Event type missing")
	}
	status, ok := f.lookup("eventstatus", "status")
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Event status missing")
	}
	e := &ImportedEvent{Date: date, Type: eventType, Status: status}
	e.Result, _ = f.lookup("eventresult", "result")
	e.ReferralDestination, _ = f.lookup("referraldestination")
	if raw, ok := f.lookup("outcomedate"); ok {
		outcome, err := ParseDate(raw)
		if err != nil {
			return nil, invalidValue("outcomedate", raw)
		}
		e.OutcomeDate = &outcome
	}
	return e, nil
}

func (f ImportFields) requiredUUID(key string) (uuid.UUID, error) {
	raw, ok := f.lookup(key)
	if !ok {
		return uuid.Nil, missingColumn(key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidValue(key, raw)
	}
	return id, nil
}

// RecordDate is the assessment or event date.
func (r ImportRecord) RecordDate() time.Time {
	if r.Assessment != nil {
		return r.Assessment.Date
	}
	if r.Event != nil {
		return r.Event.Date
	}
	return time.Time{}
}

// ParseDate reads a calendar date, also accepting RFC 3339 timestamps.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return truncateDay(t.UTC()), nil
}

func missingColumn(name string) error {
	return dErrors.New(dErrors.CodeValidation, "Missing column: "+name)
}

func invalidValue(name, raw string) error {
	return dErrors.New(dErrors.CodeValidation, "Invalid "+name+": "+raw)
}
