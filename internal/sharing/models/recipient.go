package models

import (
	"regexp"
	"strings"
)

// RecipientCategory classifies a third-party recipient for VAWA purposes.
type RecipientCategory string

const (
	RecipientVictimServiceProvider RecipientCategory = "VICTIM_SERVICE_PROVIDER"
	RecipientLegalAid              RecipientCategory = "LEGAL_AID"
	RecipientLawEnforcement        RecipientCategory = "LAW_ENFORCEMENT"
	RecipientHealthcareProvider    RecipientCategory = "HEALTHCARE_PROVIDER"
	RecipientGovernmentAgency      RecipientCategory = "GOVERNMENT_AGENCY"
	RecipientResearchInstitution   RecipientCategory = "RESEARCH_INSTITUTION"
	RecipientCocLead               RecipientCategory = "COC_LEAD"
	RecipientHMISLead              RecipientCategory = "HMIS_LEAD"
	RecipientEmergencyShelter      RecipientCategory = "EMERGENCY_SHELTER"
	RecipientTransitionalHousing   RecipientCategory = "TRANSITIONAL_HOUSING"
	RecipientInternalUse           RecipientCategory = "INTERNAL_USE"
	RecipientClientRequest         RecipientCategory = "CLIENT_REQUEST"
	RecipientUnauthorized          RecipientCategory = "UNAUTHORIZED"
)

type categoryTraits struct {
	authorizedForVictimData bool
	fullVAWACompliance      bool
	code                    string
}

var recipientCategories = map[RecipientCategory]categoryTraits{
	RecipientVictimServiceProvider: {true, true, "VSP"},
	RecipientLegalAid:              {true, false, "LEGAL"},
	RecipientLawEnforcement:        {false, false, "LE"},
	RecipientHealthcareProvider:    {true, false, "HEALTH"},
	RecipientGovernmentAgency:      {false, false, "GOV"},
	RecipientResearchInstitution:   {false, false, "RESEARCH"},
	RecipientCocLead:               {true, false, "COC"},
	RecipientHMISLead:              {true, false, "HMIS"},
	RecipientEmergencyShelter:      {true, true, "SHELTER"},
	RecipientTransitionalHousing:   {true, false, "TH"},
	RecipientInternalUse:           {true, true, "INTERNAL"},
	RecipientClientRequest:         {true, true, "CLIENT"},
	RecipientUnauthorized:          {false, false, "UNAUTHORIZED"},
}

func (c RecipientCategory) IsValid() bool {
	_, ok := recipientCategories[c]
	return ok
}

func (c RecipientCategory) AuthorizedForVictimData() bool {
	return recipientCategories[c].authorizedForVictimData
}

func (c RecipientCategory) FullVAWACompliance() bool {
	return recipientCategories[c].fullVAWACompliance
}

// Code is the short category code used in audit payloads.
func (c RecipientCategory) Code() string {
	if t, ok := recipientCategories[c]; ok {
		return t.code
	}
	return recipientCategories[RecipientUnauthorized].code
}

// AnonymizationLevel is the redaction tier required for the category.
// Unknown categories are treated as unauthorized.
func (c RecipientCategory) AnonymizationLevel() AnonymizationLevel {
	switch {
	case !c.AuthorizedForVictimData():
		return AnonymizationFull
	case c.FullVAWACompliance():
		return AnonymizationMinimal
	default:
		return AnonymizationStandard
	}
}

// ParseRecipientCategory accepts an exact category name or an organization
// type understood by CategoryFromOrganizationType.
func ParseRecipientCategory(raw string) RecipientCategory {
	c := RecipientCategory(strings.ToUpper(strings.TrimSpace(raw)))
	if c.IsValid() {
		return c
	}
	return CategoryFromOrganizationType(raw)
}

var nonLetters = regexp.MustCompile(`[^A-Z]`)

// CategoryFromOrganizationType maps a free-form organization type to a
// category. Anything unrecognised is UNAUTHORIZED.
func CategoryFromOrganizationType(orgType string) RecipientCategory {
	switch nonLetters.ReplaceAllString(strings.ToUpper(orgType), "") {
	case "VSP", "VICTIMSERVICEPROVIDER":
		return RecipientVictimServiceProvider
	case "LEGAL", "LEGALAID":
		return RecipientLegalAid
	case "LE", "LAWENFORCEMENT", "POLICE":
		return RecipientLawEnforcement
	case "HEALTH", "HEALTHCARE", "MEDICAL":
		return RecipientHealthcareProvider
	case "GOV", "GOVERNMENT":
		return RecipientGovernmentAgency
	case "RESEARCH", "UNIVERSITY", "IRB":
		return RecipientResearchInstitution
	case "COC", "COCLEAD", "CONTINUUM":
		return RecipientCocLead
	case "HMIS", "HMISLEAD":
		return RecipientHMISLead
	case "SHELTER", "EMERGENCY":
		return RecipientEmergencyShelter
	case "TH", "TRANSITIONAL":
		return RecipientTransitionalHousing
	case "INTERNAL", "AGENCY":
		return RecipientInternalUse
	case "CLIENT", "SELF":
		return RecipientClientRequest
	}
	return RecipientUnauthorized
}
