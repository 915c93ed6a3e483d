package models

import (
	"regexp"
	"slices"
	"strings"

	dErrors "haven/pkg/domain-errors"
)

// ShareScope names a category of data sharing a consent can permit.
type ShareScope string

const (
	ScopeCoordinatedEntry       ShareScope = "COC_COORDINATED_ENTRY"
	ScopeAssessmentData         ShareScope = "ASSESSMENT_DATA"
	ScopeReferralData           ShareScope = "REFERRAL_DATA"
	ScopeDVData                 ShareScope = "DV_DATA"
	ScopeVAWARestrictedPartners ShareScope = "VAWA_RESTRICTED_PARTNERS"
)

// DefaultShareScope is applied when a packet is requested without scopes.
const DefaultShareScope = ScopeCoordinatedEntry

const scopeListSeparator = ";"

var knownScopes = map[ShareScope]bool{
	ScopeCoordinatedEntry:       true,
	ScopeAssessmentData:         true,
	ScopeReferralData:           true,
	ScopeDVData:                 true,
	ScopeVAWARestrictedPartners: true,
}

func (s ShareScope) IsValid() bool {
	return knownScopes[s]
}

// RequiresVAWAClearance reports whether sharing under this scope is limited to
// VAWA-protected consents and fully compliant recipients.
func (s ShareScope) RequiresVAWAClearance() bool {
	return s == ScopeDVData || s == ScopeVAWARestrictedPartners
}

// ScopeSet is a sorted, duplicate-free list of scopes. The zero value is empty.
type ScopeSet []ShareScope

// NewScopeSet validates, deduplicates and sorts scopes.
func NewScopeSet(scopes ...ShareScope) (ScopeSet, error) {
	out := make(ScopeSet, 0, len(scopes))
	for _, s := range scopes {
		s = ShareScope(strings.ToUpper(strings.TrimSpace(string(s))))
		if s == "" {
			continue
		}
		if !s.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown share scope: "+string(s))
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

var scopeSplitter = regexp.MustCompile(`[;,]`)

// ParseScopes reads a ";" or "," separated scope list.
func ParseScopes(raw string) (ScopeSet, error) {
	if strings.TrimSpace(raw) == "" {
		return ScopeSet{}, nil
	}
	parts := scopeSplitter.Split(raw, -1)
	scopes := make([]ShareScope, 0, len(parts))
	for _, p := range parts {
		scopes = append(scopes, ShareScope(p))
	}
	return NewScopeSet(scopes...)
}

func (s ScopeSet) Contains(scope ShareScope) bool {
	return slices.Contains(s, scope)
}

// Missing returns the scopes of required that s does not contain, in order.
func (s ScopeSet) Missing(required ScopeSet) []ShareScope {
	var missing []ShareScope
	for _, r := range required {
		if !s.Contains(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

func (s ScopeSet) ContainsAll(required ScopeSet) bool {
	return len(s.Missing(required)) == 0
}

// RequiresVAWAClearance reports whether any scope in the set requires it.
func (s ScopeSet) RequiresVAWAClearance() bool {
	return slices.ContainsFunc(s, ShareScope.RequiresVAWAClearance)
}

// Strings returns the scope names in set order.
func (s ScopeSet) Strings() []string {
	out := make([]string, len(s))
	for i, scope := range s {
		out[i] = string(scope)
	}
	return out
}

// String joins the set with ";", the tabular interchange separator.
func (s ScopeSet) String() string {
	return strings.Join(s.Strings(), scopeListSeparator)
}
