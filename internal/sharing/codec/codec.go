// Package codec serializes export records to the CE interchange formats and
// reads import payloads back into per-row field sets.
package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// HUD interchange constants.
const (
	XMLNamespace = "https://www.hudexchange.info/Resources/2024"
	XMLVersion   = "2024.1"
)

// Envelope carries the document-level fields of an export.
type Envelope struct {
	ExportID   uuid.UUID
	CocID      string
	ExportType models.ExportType
	ExportedAt time.Time
}

type Encoder interface {
	Encode(env Envelope, records []models.ExportRecord) ([]byte, error)
}

type Decoder interface {
	Decode(payload []byte) ([]models.ExportRecord, error)
}

// Codec encodes and decodes one export format.
type Codec interface {
	Encoder
	Decoder
	Format() models.Format
}

// ForFormat returns the codec for f.
func ForFormat(f models.Format) (Codec, error) {
	switch f {
	case models.FormatCSV:
		return CSV{Delimiter: ','}, nil
	case models.FormatXML:
		return XML{}, nil
	case models.FormatJSON:
		return JSON{}, nil
	}
	return nil, dErrors.New(dErrors.CodeValidation, "unsupported export format: "+string(f))
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', -1, 64)
}

func parseScore(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// recordFromColumns rebuilds an export record from its canonical string
// columns.
func recordFromColumns(c exportColumns) (models.ExportRecord, error) {
	var (
		rec models.ExportRecord
		err error
	)
	if rec.RecordType, err = models.ParseRecordType(c.recordType); err != nil {
		return rec, err
	}
	if rec.RecordID, err = uuid.Parse(c.recordID); err != nil {
		return rec, dErrors.Wrap(err, dErrors.CodeValidation, "invalid record id")
	}
	if rec.EnrollmentID, err = uuid.Parse(c.enrollmentID); err != nil {
		return rec, dErrors.Wrap(err, dErrors.CodeValidation, "invalid enrollment id")
	}
	if rec.Date, err = models.ParseDate(c.date); err != nil {
		return rec, dErrors.Wrap(err, dErrors.CodeValidation, "invalid date")
	}
	if rec.Score, err = parseScore(c.score); err != nil {
		return rec, dErrors.Wrap(err, dErrors.CodeValidation, "invalid score")
	}
	if c.consentVersion != "" {
		if rec.ConsentVersion, err = strconv.Atoi(c.consentVersion); err != nil {
			return rec, dErrors.Wrap(err, dErrors.CodeValidation, "invalid consent version")
		}
	}
	if rec.ShareScopes, err = models.ParseScopes(c.shareScopes); err != nil {
		return rec, err
	}
	rec.ClientHash = c.clientHash
	rec.Type = c.typ
	rec.Status = c.status
	rec.Result = c.result
	rec.PrioritizationStatus = c.prioritizationStatus
	rec.HashAlgorithm = models.HashAlgorithm(c.hashAlgorithm)
	rec.EncryptionKeyID = c.encryptionKeyID
	return rec, nil
}

// exportColumns is the string form shared by the tabular and attribute
// formats.
type exportColumns struct {
	recordType           string
	recordID             string
	enrollmentID         string
	clientHash           string
	date                 string
	typ                  string
	status               string
	result               string
	score                string
	prioritizationStatus string
	consentVersion       string
	shareScopes          string
	hashAlgorithm        string
	encryptionKeyID      string
}

func columnsOf(r models.ExportRecord) exportColumns {
	return exportColumns{
		recordType:           string(r.RecordType),
		recordID:             r.RecordID.String(),
		enrollmentID:         r.EnrollmentID.String(),
		clientHash:           r.ClientHash,
		date:                 r.Date.Format(models.DateLayout),
		typ:                  r.Type,
		status:               r.Status,
		result:               r.Result,
		score:                formatScore(r.Score),
		prioritizationStatus: r.PrioritizationStatus,
		consentVersion:       strconv.Itoa(r.ConsentVersion),
		shareScopes:          r.ShareScopes.String(),
		hashAlgorithm:        string(r.HashAlgorithm),
		encryptionKeyID:      r.EncryptionKeyID,
	}
}
