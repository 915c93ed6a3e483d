package models

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// RecordType names the kind of CE record carried in an export or import.
type RecordType string

const (
	RecordAssessment RecordType = "Assessment"
	RecordEvent      RecordType = "Event"
	RecordReferral   RecordType = "Referral"
)

// ParseRecordType accepts any letter case ("ASSESSMENT", "assessment").
func ParseRecordType(raw string) (RecordType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ASSESSMENT":
		return RecordAssessment, nil
	case "EVENT":
		return RecordEvent, nil
	case "REFERRAL":
		return RecordReferral, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown record type: "+raw)
}

// DateLayout is the calendar-date format used by every interchange format.
const DateLayout = "2006-01-02"

// Assessment is a coordinated-entry assessment as stored by the enrollment
// domain.
type Assessment struct {
	ID                   uuid.UUID
	EnrollmentID         uuid.UUID
	ClientID             uuid.UUID
	PacketID             uuid.UUID
	AssessmentDate       time.Time
	AssessmentType       string
	AssessmentLevel      string
	ToolUsed             string
	Score                *float64
	PrioritizationStatus string
	Location             string
	ConsentLedgerID      *uuid.UUID
	ShareScopes          ScopeSet
	CreatedBy            string
	CreatedAt            time.Time
}

// Event is a coordinated-entry event (referral offer, placement, ...).
type Event struct {
	ID                  uuid.UUID
	EnrollmentID        uuid.UUID
	ClientID            uuid.UUID
	PacketID            uuid.UUID
	EventDate           time.Time
	EventType           string
	Status              string
	Result              string
	ReferralDestination string
	OutcomeDate         *time.Time
	ConsentLedgerID     *uuid.UUID
	ShareScopes         ScopeSet
	CreatedBy           string
	CreatedAt           time.Time
}

// Referral is a coordinated-entry referral to a housing resource.
type Referral struct {
	ID                 uuid.UUID
	EnrollmentID       uuid.UUID
	ClientID           uuid.UUID
	PacketID           uuid.UUID
	ReferralDate       time.Time
	ReferralType       string
	Status             string
	Result             string
	VulnerabilityScore *float64
	ShareScopes        ScopeSet
	CreatedAt          time.Time
}

// ExportRecord is the transient projection serialized by the codecs. It is
// never persisted.
type ExportRecord struct {
	RecordType           RecordType
	RecordID             uuid.UUID
	EnrollmentID         uuid.UUID
	ClientHash           string
	Date                 time.Time
	Type                 string
	Status               string
	Result               string
	Score                *float64
	PrioritizationStatus string
	ConsentVersion       int
	ShareScopes          ScopeSet
	HashAlgorithm        HashAlgorithm
	EncryptionKeyID      string
	EncryptionMetadata   map[string]string
}

// withPacket copies the packet-derived columns onto r.
func (r ExportRecord) withPacket(p *Packet) ExportRecord {
	r.ClientHash = p.ClientHash
	r.ConsentVersion = p.ConsentVersion
	r.ShareScopes = p.AllowedScopes
	r.HashAlgorithm = p.HashAlgorithm
	r.EncryptionKeyID = p.EncryptionKeyID
	r.EncryptionMetadata = maps.Clone(p.EncryptionMetadata)
	return r
}

// AssessmentRecord projects an assessment: type is the assessment type and
// status is the assessment level.
func AssessmentRecord(a Assessment, p *Packet) ExportRecord {
	return ExportRecord{
		RecordType:           RecordAssessment,
		RecordID:             a.ID,
		EnrollmentID:         a.EnrollmentID,
		Date:                 a.AssessmentDate,
		Type:                 a.AssessmentType,
		Status:               a.AssessmentLevel,
		Score:                a.Score,
		PrioritizationStatus: a.PrioritizationStatus,
	}.withPacket(p)
}

func EventRecord(e Event, p *Packet) ExportRecord {
	return ExportRecord{
		RecordType:   RecordEvent,
		RecordID:     e.ID,
		EnrollmentID: e.EnrollmentID,
		Date:         e.EventDate,
		Type:         e.EventType,
		Status:       e.Status,
		Result:       e.Result,
	}.withPacket(p)
}

// ReferralRecord projects a referral; the vulnerability score is the score.
func ReferralRecord(r Referral, p *Packet) ExportRecord {
	return ExportRecord{
		RecordType:   RecordReferral,
		RecordID:     r.ID,
		EnrollmentID: r.EnrollmentID,
		Date:         r.ReferralDate,
		Type:         r.ReferralType,
		Status:       r.Status,
		Result:       r.Result,
		Score:        r.VulnerabilityScore,
	}.withPacket(p)
}

// Fields renders the record as a generic map for redaction. Keys match the
// structured interchange format.
func (r ExportRecord) Fields() map[string]any {
	fields := map[string]any{
		"recordType":           string(r.RecordType),
		"recordId":             r.RecordID.String(),
		"enrollmentId":         r.EnrollmentID.String(),
		"clientHash":           r.ClientHash,
		"date":                 r.Date,
		"type":                 r.Type,
		"status":               r.Status,
		"result":               r.Result,
		"prioritizationStatus": r.PrioritizationStatus,
		"consentVersion":       r.ConsentVersion,
		"shareScopes":          r.ShareScopes.Strings(),
		"hashAlgorithm":        string(r.HashAlgorithm),
		"encryptionKeyId":      r.EncryptionKeyID,
	}
	if r.Score != nil {
		fields["score"] = *r.Score
	}
	if r.RecordType == RecordAssessment {
		fields["assessmentDate"] = r.Date
	}
	return fields
}
