package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// XML is the HUD 2024 CE export document.
type XML struct{}

func (XML) Format() models.Format { return models.FormatXML }

type xmlExport struct {
	XMLName    xml.Name
	Version    string            `xml:"version,attr"`
	ExportDate string            `xml:"exportDate,attr"`
	CocID      string            `xml:"cocId,attr"`
	Records    []xmlExportRecord `xml:",any"`
}

type xmlExportRecord struct {
	XMLName              xml.Name
	RecordID             string `xml:"RecordId,attr"`
	EnrollmentID         string `xml:"EnrollmentId,attr"`
	ClientHash           string `xml:"ClientHash,attr"`
	Date                 string `xml:"Date,attr"`
	Type                 string `xml:"Type,attr,omitempty"`
	Status               string `xml:"Status,attr,omitempty"`
	Result               string `xml:"Result,attr,omitempty"`
	Score                string `xml:"Score,attr,omitempty"`
	PrioritizationStatus string `xml:"PrioritizationStatus,attr,omitempty"`
	ConsentVersion       string `xml:"ConsentVersion,attr"`
	ShareScopes          string `xml:"ShareScopes,attr"`
	HashAlgorithm        string `xml:"HashAlgorithm,attr"`
	EncryptionKeyID      string `xml:"EncryptionKeyId,attr"`
}

func (XML) Encode(env Envelope, records []models.ExportRecord) ([]byte, error) {
	doc := xmlExport{
		XMLName:    xml.Name{Space: XMLNamespace, Local: "CEExport"},
		Version:    XMLVersion,
		ExportDate: env.ExportedAt.UTC().Format(time.RFC3339),
		CocID:      env.CocID,
		Records:    make([]xmlExportRecord, 0, len(records)),
	}
	for _, r := range records {
		c := columnsOf(r)
		doc.Records = append(doc.Records, xmlExportRecord{
			XMLName:              xml.Name{Local: c.recordType},
			RecordID:             c.recordID,
			EnrollmentID:         c.enrollmentID,
			ClientHash:           c.clientHash,
			Date:                 c.date,
			Type:                 c.typ,
			Status:               c.status,
			Result:               c.result,
			Score:                c.score,
			PrioritizationStatus: c.prioritizationStatus,
			ConsentVersion:       c.consentVersion,
			ShareScopes:          c.shareScopes,
			HashAlgorithm:        c.hashAlgorithm,
			EncryptionKeyID:      c.encryptionKeyID,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode xml export: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (XML) Decode(payload []byte) ([]models.ExportRecord, error) {
	var doc xmlExport
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed xml document")
	}
	if doc.XMLName.Local != "CEExport" {
		return nil, dErrors.New(dErrors.CodeValidation, "unexpected root element "+doc.XMLName.Local)
	}
	records := make([]models.ExportRecord, 0, len(doc.Records))
	for i, x := range doc.Records {
		rec, err := recordFromColumns(exportColumns{
			recordType:           x.XMLName.Local,
			recordID:             x.RecordID,
			enrollmentID:         x.EnrollmentID,
			clientHash:           x.ClientHash,
			date:                 x.Date,
			typ:                  x.Type,
			status:               x.Status,
			result:               x.Result,
			score:                x.Score,
			prioritizationStatus: x.PrioritizationStatus,
			consentVersion:       x.ConsentVersion,
			shareScopes:          x.ShareScopes,
			hashAlgorithm:        x.HashAlgorithm,
			encryptionKeyID:      x.EncryptionKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
