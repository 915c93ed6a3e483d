package models

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// AnonymizationLevel is a redaction tier.
type AnonymizationLevel string

const (
	AnonymizationMinimal  AnonymizationLevel = "MINIMAL"
	AnonymizationStandard AnonymizationLevel = "STANDARD"
	AnonymizationFull     AnonymizationLevel = "FULL"
)

var (
	locationFields    = []string{"locationData", "gpsCoordinates", "address", "zipCode", "location"}
	dvIndicatorFields = []string{"dvStatus", "fleeingDv", "domesticViolenceIndicator"}
	coarsenedDates    = []string{"dateOfBirth", "entryDate", "exitDate", "assessmentDate", "date", "outcomeDate"}
)

// AnonymizationRules is an immutable redaction ruleset. Build one with
// RulesForLevel and extend it with the With* methods, which return copies.
type AnonymizationRules struct {
	SuppressLocation    bool
	ReplaceHouseholdIDs bool
	RedactDVIndicators  bool
	AnonymizeDates      bool
	RedactFields        []string
	// FieldMappings renames keys, keeping values.
	FieldMappings map[string]string
	// Pseudonyms renames keys and replaces values with an opaque id derived
	// from the correlation hash.
	Pseudonyms map[string]string
}

// RulesForLevel returns the base ruleset of a tier.
func RulesForLevel(level AnonymizationLevel) AnonymizationRules {
	switch level {
	case AnonymizationMinimal:
		return AnonymizationRules{}
	case AnonymizationStandard:
		return AnonymizationRules{
			SuppressLocation:    true,
			ReplaceHouseholdIDs: true,
			AnonymizeDates:      true,
			RedactFields:        []string{"email", "phoneNumber", "ssn"},
		}
	default:
		return AnonymizationRules{
			SuppressLocation:    true,
			ReplaceHouseholdIDs: true,
			RedactDVIndicators:  true,
			AnonymizeDates:      true,
			RedactFields: []string{
				"address", "dateOfBirth", "email", "firstName",
				"lastName", "phoneNumber", "ssn",
			},
			Pseudonyms: map[string]string{
				"clientId":   "anonymousId",
				"clientHash": "anonymousId",
			},
		}
	}
}

// WithRedactions returns a copy that additionally strips fields.
func (r AnonymizationRules) WithRedactions(fields ...string) AnonymizationRules {
	out := r.clone()
	for _, f := range fields {
		if f != "" {
			out.RedactFields = append(out.RedactFields, f)
		}
	}
	slices.Sort(out.RedactFields)
	out.RedactFields = slices.Compact(out.RedactFields)
	return out
}

// WithDVRedaction returns a copy that strips DV indicators. It never relaxes
// an existing DV redaction.
func (r AnonymizationRules) WithDVRedaction() AnonymizationRules {
	out := r.clone()
	out.RedactDVIndicators = true
	return out
}

func (r AnonymizationRules) clone() AnonymizationRules {
	out := r
	out.RedactFields = slices.Clone(r.RedactFields)
	out.FieldMappings = maps.Clone(r.FieldMappings)
	out.Pseudonyms = maps.Clone(r.Pseudonyms)
	return out
}

// Apply returns a redacted copy of record. record is not modified.
func (r AnonymizationRules) Apply(record map[string]any, correlationHash string) map[string]any {
	out := maps.Clone(record)
	if out == nil {
		out = map[string]any{}
	}

	if r.SuppressLocation {
		for _, f := range locationFields {
			delete(out, f)
		}
	}
	if _, ok := out["householdId"]; ok && r.ReplaceHouseholdIDs {
		out["householdId"] = correlationHash
		out["householdHash"] = HouseholdHash(correlationHash)
	}
	if r.RedactDVIndicators {
		for _, f := range dvIndicatorFields {
			delete(out, f)
		}
	}
	if r.AnonymizeDates {
		for _, f := range coarsenedDates {
			if v, ok := out[f]; ok && v != nil {
				out[f] = coarsenDate(v)
			}
		}
	}
	for _, f := range r.RedactFields {
		delete(out, f)
	}
	for from, to := range r.FieldMappings {
		if v, ok := out[from]; ok {
			delete(out, from)
			out[to] = v
		}
	}
	for _, from := range slices.Sorted(maps.Keys(r.Pseudonyms)) {
		if v, ok := out[from]; ok {
			delete(out, from)
			out[r.Pseudonyms[from]] = AnonymousID(correlationHash, fmt.Sprint(v))
		}
	}
	return out
}

// HouseholdHash derives the household token shared with a recipient.
func HouseholdHash(correlationHash string) string {
	return "HH_" + strconv.FormatUint(xxhash.Sum64String(correlationHash), 16)
}

// AnonymousID is stable for one (correlation hash, value) pair and unlinkable
// across correlation hashes.
func AnonymousID(correlationHash, value string) string {
	mac := hmac.New(sha256.New, []byte(correlationHash))
	mac.Write([]byte(value))
	return "ANON_" + hex.EncodeToString(mac.Sum(nil))[:16]
}

func coarsenDate(v any) string {
	switch d := v.(type) {
	case time.Time:
		if !d.IsZero() {
			return monthYear(d)
		}
	case *time.Time:
		if d != nil && !d.IsZero() {
			return monthYear(*d)
		}
	case string:
		if t, err := ParseDate(d); err == nil {
			return monthYear(t)
		}
	}
	return "REDACTED"
}

func monthYear(t time.Time) string {
	return fmt.Sprintf("%02d/%d", int(t.Month()), t.Year())
}
