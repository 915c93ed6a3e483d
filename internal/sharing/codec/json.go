package codec

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// JSON is the vendor feed document.
type JSON struct{}

func (JSON) Format() models.Format { return models.FormatJSON }

type jsonExport struct {
	ExportID    string       `json:"exportId"`
	CocID       string       `json:"cocId"`
	ExportDate  string       `json:"exportDate"`
	RecordCount int          `json:"recordCount"`
	ExportType  string       `json:"exportType"`
	Records     []jsonRecord `json:"records"`
}

type jsonRecord struct {
	RecordType           string            `json:"recordType"`
	RecordID             string            `json:"recordId"`
	EnrollmentID         string            `json:"enrollmentId"`
	ClientHash           string            `json:"clientHash"`
	Date                 string            `json:"date"`
	Type                 string            `json:"type,omitempty"`
	Status               string            `json:"status,omitempty"`
	Result               string            `json:"result,omitempty"`
	Score                *float64          `json:"score,omitempty"`
	PrioritizationStatus string            `json:"prioritizationStatus,omitempty"`
	ConsentVersion       int               `json:"consentVersion"`
	HashAlgorithm        string            `json:"hashAlgorithm"`
	EncryptionKeyID      string            `json:"encryptionKeyId"`
	ShareScopes          []string          `json:"shareScopes"`
	EncryptionMetadata   map[string]string `json:"encryptionMetadata"`
}

func (JSON) Encode(env Envelope, records []models.ExportRecord) ([]byte, error) {
	doc := jsonExport{
		ExportID:    env.ExportID.String(),
		CocID:       env.CocID,
		ExportDate:  env.ExportedAt.UTC().Format(time.RFC3339),
		RecordCount: len(records),
		ExportType:  string(env.ExportType),
		Records:     make([]jsonRecord, 0, len(records)),
	}
	for _, r := range records {
		metadata := maps.Clone(r.EncryptionMetadata)
		if metadata == nil {
			metadata = map[string]string{}
		}
		doc.Records = append(doc.Records, jsonRecord{
			RecordType:           string(r.RecordType),
			RecordID:             r.RecordID.String(),
			EnrollmentID:         r.EnrollmentID.String(),
			ClientHash:           r.ClientHash,
			Date:                 r.Date.Format(models.DateLayout),
			Type:                 r.Type,
			Status:               r.Status,
			Result:               r.Result,
			Score:                r.Score,
			PrioritizationStatus: r.PrioritizationStatus,
			ConsentVersion:       r.ConsentVersion,
			HashAlgorithm:        string(r.HashAlgorithm),
			EncryptionKeyID:      r.EncryptionKeyID,
			ShareScopes:          r.ShareScopes.Strings(),
			EncryptionMetadata:   metadata,
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return out, nil
}

func (JSON) Decode(payload []byte) ([]models.ExportRecord, error) {
	var doc jsonExport
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed json document")
	}
	records := make([]models.ExportRecord, 0, len(doc.Records))
	for i, j := range doc.Records {
		rec, err := recordFromColumns(exportColumns{
			recordType:           j.RecordType,
			recordID:             j.RecordID,
			enrollmentID:         j.EnrollmentID,
			clientHash:           j.ClientHash,
			date:                 j.Date,
			typ:                  j.Type,
			status:               j.Status,
			result:               j.Result,
			score:                formatScore(j.Score),
			prioritizationStatus: j.PrioritizationStatus,
			consentVersion:       strconv.Itoa(j.ConsentVersion),
			shareScopes:          strings.Join(j.ShareScopes, ";"),
			hashAlgorithm:        j.HashAlgorithm,
			encryptionKeyID:      j.EncryptionKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		rec.EncryptionMetadata = j.EncryptionMetadata
		records = append(records, rec)
	}
	return records, nil
}
