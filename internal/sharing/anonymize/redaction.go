package anonymize

import (
	"strings"

	"haven/internal/sharing/models"
)

// Role fragments, matched against normalised AccessContext roles.
const (
	roleAdmin             = "ADMIN"
	roleDataManager       = "DATA_MANAGER"
	roleDVSpecialist      = "DV_SPECIALIST"
	roleCaseManager       = "CASE_MANAGER"
	roleSafetyCoordinator = "SAFETY_COORDINATOR"
)

// fullDVRedactions are dropped on top of the DV indicators when a caller may
// not see DV detail at all. Event outcomes can disclose a shelter placement.
var fullDVRedactions = []string{"result", "referralDestination", "encryptionMetadata"}

// RedactionLevelFor decides how much DV detail access may see in records
// marked with flag. FULL_REDACTION_REQUIRED and
// VICTIM_REQUESTED_CONFIDENTIALITY are never lifted, whatever the roles.
func RedactionLevelFor(access models.AccessContext, flag models.DVRedactionFlag) models.RedactionLevel {
	switch flag {
	case models.DVFullRedactionRequired, models.DVVictimRequestedConfidentiality:
		return models.RedactionFull
	}
	if hasAdministrativeOverride(access) {
		return models.RedactionNone
	}
	if !canAccessDVData(access) {
		return models.RedactionFull
	}
	switch flag {
	case models.DVRedactForGeneralStaff:
		if canAccessSensitiveDVData(access) {
			return models.RedactionNone
		}
		return models.RedactionPartial
	case models.DVRedactForNonDVSpecialists:
		if access.HasAnyRole(roleDVSpecialist) {
			return models.RedactionNone
		}
		return models.RedactionPartial
	}
	return models.RedactionNone
}

// WithRedactionLevel tightens rules for level. It never loosens a ruleset.
func WithRedactionLevel(rules models.AnonymizationRules, level models.RedactionLevel) models.AnonymizationRules {
	switch level {
	case models.RedactionPartial:
		return rules.WithDVRedaction()
	case models.RedactionFull:
		return rules.WithDVRedaction().WithRedactions(fullDVRedactions...)
	}
	return rules
}

// CanApprove reports whether access may release an export held for approval.
func CanApprove(access models.AccessContext) bool {
	return hasAdministrativeOverride(access)
}

func hasAdministrativeOverride(a models.AccessContext) bool {
	return hasRoleLike(a, roleAdmin, roleDataManager)
}

func canAccessDVData(a models.AccessContext) bool {
	return hasRoleLike(a, roleDVSpecialist, roleAdmin, roleCaseManager, roleSafetyCoordinator)
}

func canAccessSensitiveDVData(a models.AccessContext) bool {
	return hasRoleLike(a, roleDVSpecialist, roleAdmin, roleSafetyCoordinator)
}

// hasRoleLike matches fragments so SYSTEM_ADMINISTRATOR counts as ADMIN.
func hasRoleLike(a models.AccessContext, fragments ...string) bool {
	for _, role := range a.Roles {
		for _, f := range fragments {
			if strings.Contains(role, f) {
				return true
			}
		}
	}
	return false
}
