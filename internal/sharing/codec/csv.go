package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// CSVHeader is the fixed export column order.
var CSVHeader = []string{
	"RecordType", "RecordId", "EnrollmentId", "ClientHash", "Date", "Type",
	"Status", "Result", "Score", "PrioritizationStatus", "ConsentVersion",
	"ShareScopes", "HashAlgorithm", "EncryptionKeyId",
}

// CSV is the HUD tabular format. Encode joins fields with the delimiter and
// never quotes them, so a field containing the delimiter does not survive a
// round trip. CE field values are delimiter-free by construction.
type CSV struct {
	Delimiter rune
}

func (CSV) Format() models.Format { return models.FormatCSV }

func (c CSV) delimiter() rune {
	if c.Delimiter == 0 {
		return ','
	}
	return c.Delimiter
}

func (c CSV) Encode(_ Envelope, records []models.ExportRecord) ([]byte, error) {
	var buf bytes.Buffer
	delim := string(c.delimiter())
	writeRow := func(fields []string) {
		buf.WriteString(strings.Join(fields, delim))
		buf.WriteByte('\n')
	}

	writeRow(CSVHeader)
	for _, r := range records {
		col := columnsOf(r)
		writeRow([]string{
			col.recordType, col.recordID, col.enrollmentID, col.clientHash,
			col.date, col.typ, col.status, col.result, col.score,
			col.prioritizationStatus, col.consentVersion, col.shareScopes,
			col.hashAlgorithm, col.encryptionKeyID,
		})
	}
	return buf.Bytes(), nil
}

func (c CSV) Decode(payload []byte) ([]models.ExportRecord, error) {
	rows, err := readTable(payload, c.delimiter())
	if err != nil {
		return nil, err
	}
	records := make([]models.ExportRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromColumns(exportColumns{
			recordType:           row.values["recordtype"],
			recordID:             row.values["recordid"],
			enrollmentID:         row.values["enrollmentid"],
			clientHash:           row.values["clienthash"],
			date:                 row.values["date"],
			typ:                  row.values["type"],
			status:               row.values["status"],
			result:               row.values["result"],
			score:                row.values["score"],
			prioritizationStatus: row.values["prioritizationstatus"],
			consentVersion:       row.values["consentversion"],
			shareScopes:          row.values["sharescopes"],
			hashAlgorithm:        row.values["hashalgorithm"],
			encryptionKeyID:      row.values["encryptionkeyid"],
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", row.line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

type tableRow struct {
	line   int
	values map[string]string
}

// readTable reads a header-driven table. Header names are matched case
// insensitively; blank lines are skipped.
func readTable(payload []byte, delimiter rune) ([]tableRow, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeValidation, "missing header row")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed header row")
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var rows []tableRow
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed row")
		}
		if isBlank(fields) {
			continue
		}
		line, _ := r.FieldPos(0)
		values := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(fields) && name != "" {
				values[name] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, tableRow{line: line, values: values})
	}
	return rows, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
