package models

import (
	"slices"
	"strings"
	"time"
)

// AccessContext identifies who is asking for a redaction decision and why.
// It is passed explicitly into every redaction call.
type AccessContext struct {
	Roles     []string
	Reason    string
	Timestamp time.Time
}

// NewAccessContext normalises roles (upper case, "ROLE_" prefix stripped).
func NewAccessContext(roles []string, reason string, at time.Time) AccessContext {
	normalised := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		r = strings.TrimPrefix(r, "ROLE_")
		if r != "" {
			normalised = append(normalised, r)
		}
	}
	slices.Sort(normalised)
	return AccessContext{
		Roles:     slices.Compact(normalised),
		Reason:    strings.TrimSpace(reason),
		Timestamp: at,
	}
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (a AccessContext) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}
