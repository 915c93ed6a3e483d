package codec

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// ImportRow is one record of an import payload. Err is set when the row
// itself is unreadable; other rows are unaffected.
type ImportRow struct {
	Line   int
	Fields models.ImportFields
	Err    error
}

var (
	metadataSplitter = regexp.MustCompile(`[\n|]`)
	tagSplitter      = regexp.MustCompile(`[,;|]`)
)

// ReadImport parses payload into rows. It fails only when the payload as a
// whole cannot be read: no header row, or a malformed document.
func ReadImport(format models.ImportFormat, payload []byte, delimiter rune) ([]ImportRow, error) {
	switch format {
	case models.ImportHMISCSV:
		return readCSVImport(payload, delimiter)
	case models.ImportHMISXML:
		return readXMLImport(payload)
	case models.ImportVendorFeed:
		return readJSONImport(payload)
	}
	return nil, dErrors.New(dErrors.CodeValidation, "unsupported import format: "+string(format))
}

func readCSVImport(payload []byte, delimiter rune) ([]ImportRow, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	table, err := readTable(payload, delimiter)
	if err != nil {
		return nil, err
	}
	rows := make([]ImportRow, 0, len(table))
	for _, t := range table {
		rows = append(rows, ImportRow{Line: t.line, Fields: fieldsFromValues(t.values)})
	}
	return rows, nil
}

// fieldsFromValues lifts the packed metadata and tag columns out of a flat
// row.
func fieldsFromValues(values map[string]string) models.ImportFields {
	f := models.ImportFields{Values: values}
	if raw := values["encryptionmetadata"]; raw != "" {
		f.Metadata = parseMetadata(raw)
	}
	if raw := values["encryptiontags"]; raw != "" {
		f.Tags = parseTags(raw)
	}
	return f
}

// parseMetadata reads "k=v" pairs separated by newlines or "|".
func parseMetadata(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range metadataSplitter.Split(raw, -1) {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func parseTags(raw string) []string {
	var tags []string
	for _, t := range tagSplitter.Split(raw, -1) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type xmlImportDoc struct {
	XMLName xml.Name
	Records []xmlImportRecord `xml:",any"`
}

type xmlImportRecord struct {
	XMLName  xml.Name
	Attrs    []xml.Attr       `xml:",any,attr"`
	Children []xmlImportField `xml:",any"`
}

type xmlImportField struct {
	XMLName xml.Name
	Attrs   []xml.Attr       `xml:",any,attr"`
	Value   string           `xml:",chardata"`
	Entries []xmlImportField `xml:",any"`
}

// readXMLImport reads Assessment and Event elements under any root. Fields
// may be attributes or child elements; EncryptionMetadata children carry
// key/value attributes.
func readXMLImport(payload []byte) ([]ImportRow, error) {
	var doc xmlImportDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed xml document")
	}
	rows := make([]ImportRow, 0, len(doc.Records))
	for i, rec := range doc.Records {
		row := ImportRow{Line: i + 1}
		recordType, err := models.ParseRecordType(rec.XMLName.Local)
		if err != nil {
			row.Err = dErrors.New(dErrors.CodeValidation, "Unsupported element: "+rec.XMLName.Local)
			row.Fields = models.ImportFields{RecordType: rec.XMLName.Local}
			rows = append(rows, row)
			continue
		}

		values := map[string]string{}
		for _, a := range rec.Attrs {
			values[strings.ToLower(a.Name.Local)] = strings.TrimSpace(a.Value)
		}
		fields := fieldsFromValues(values)
		for _, child := range rec.Children {
			name := strings.ToLower(child.XMLName.Local)
			switch name {
			case "encryptionmetadata":
				if fields.Metadata == nil {
					fields.Metadata = map[string]string{}
				}
				for _, e := range child.Entries {
					k, v := xmlEntry(e)
					if k != "" {
						fields.Metadata[k] = v
					}
				}
			case "encryptiontags":
				for _, e := range child.Entries {
					if t := strings.TrimSpace(e.Value); t != "" {
						fields.Tags = append(fields.Tags, t)
					}
				}
			default:
				values[name] = strings.TrimSpace(child.Value)
			}
		}
		// XML rows must assert consent explicitly; an absent flag is false.
		if strings.TrimSpace(values["consentgranted"]) == "" {
			values["consentgranted"] = "false"
		}
		fields.RecordType = string(recordType)
		row.Fields = fields
		rows = append(rows, row)
	}
	return rows, nil
}

func xmlEntry(e xmlImportField) (string, string) {
	var key, value string
	for _, a := range e.Attrs {
		switch strings.ToLower(a.Name.Local) {
		case "key", "name":
			key = a.Value
		case "value":
			value = a.Value
		}
	}
	if key == "" {
		key = e.XMLName.Local
	}
	if value == "" {
		value = strings.TrimSpace(e.Value)
	}
	return key, value
}

// readJSONImport accepts {"records": [...]}, a bare array, or a single
// record object.
func readJSONImport(payload []byte) ([]ImportRow, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed json document")
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		if recs, ok := v["records"]; ok {
			list, ok := recs.([]any)
			if !ok {
				return nil, dErrors.New(dErrors.CodeValidation, "records must be an array")
			}
			items = list
		} else {
			items = []any{v}
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "json payload must be an object or array")
	}

	rows := make([]ImportRow, 0, len(items))
	for i, item := range items {
		row := ImportRow{Line: i + 1}
		obj, ok := item.(map[string]any)
		if !ok {
			row.Err = dErrors.New(dErrors.CodeValidation, fmt.Sprintf("record %d is not an object", i+1))
			rows = append(rows, row)
			continue
		}
		row.Fields = jsonFields(obj)
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonFields(obj map[string]any) models.ImportFields {
	values := map[string]string{}
	f := models.ImportFields{Values: values}
	for key, raw := range obj {
		name := strings.ToLower(key)
		switch v := raw.(type) {
		case nil:
		case map[string]any:
			if name == "encryptionmetadata" {
				f.Metadata = make(map[string]string, len(v))
				for mk, mv := range v {
					f.Metadata[mk] = scalarString(mv)
				}
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, scalarString(p))
			}
			if name == "encryptiontags" {
				f.Tags = slices.DeleteFunc(parts, func(s string) bool { return strings.TrimSpace(s) == "" })
				continue
			}
			values[name] = strings.Join(parts, ";")
		default:
			values[name] = scalarString(v)
		}
	}
	if f.Tags == nil {
		if raw := values["encryptiontags"]; raw != "" {
			f.Tags = parseTags(raw)
		}
	}
	if f.Metadata == nil {
		if raw := values["encryptionmetadata"]; raw != "" {
			f.Metadata = parseMetadata(raw)
		}
	}
	return f
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
