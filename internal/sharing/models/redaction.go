package models

import (
	"strings"

	dErrors "haven/pkg/domain-errors"
)

// DVRedactionFlag is the per-record DV confidentiality marking.
type DVRedactionFlag string

const (
	DVNoRedaction                    DVRedactionFlag = "NO_REDACTION"
	DVRedactForGeneralStaff          DVRedactionFlag = "REDACT_FOR_GENERAL_STAFF"
	DVRedactForNonDVSpecialists      DVRedactionFlag = "REDACT_FOR_NON_DV_SPECIALISTS"
	DVFullRedactionRequired          DVRedactionFlag = "FULL_REDACTION_REQUIRED"
	DVVictimRequestedConfidentiality DVRedactionFlag = "VICTIM_REQUESTED_CONFIDENTIALITY"
)

// ParseDVRedactionFlag treats blank as NO_REDACTION.
func ParseDVRedactionFlag(raw string) (DVRedactionFlag, error) {
	f := DVRedactionFlag(strings.ToUpper(strings.TrimSpace(raw)))
	switch f {
	case "":
		return DVNoRedaction, nil
	case DVNoRedaction, DVRedactForGeneralStaff, DVRedactForNonDVSpecialists,
		DVFullRedactionRequired, DVVictimRequestedConfidentiality:
		return f, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown dv redaction flag: "+raw)
}

// RedactionLevel is the outcome of a DV redaction decision.
type RedactionLevel string

const (
	RedactionNone    RedactionLevel = "NO_REDACTION"
	RedactionPartial RedactionLevel = "PARTIAL_DV_REDACTION"
	RedactionFull    RedactionLevel = "FULL_DV_REDACTION"
)

// Stricter returns the more restrictive of l and other.
func (l RedactionLevel) Stricter(other RedactionLevel) RedactionLevel {
	if l.rank() >= other.rank() {
		return l
	}
	return other
}

func (l RedactionLevel) rank() int {
	switch l {
	case RedactionFull:
		return 2
	case RedactionPartial:
		return 1
	}
	return 0
}
