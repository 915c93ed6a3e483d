package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsentStatus is the lifecycle state of a client consent as reported by the
// consent domain.
type ConsentStatus string

const (
	ConsentStatusGranted ConsentStatus = "GRANTED"
	ConsentStatusRevoked ConsentStatus = "REVOKED"
	ConsentStatusExpired ConsentStatus = "EXPIRED"
	ConsentStatusPending ConsentStatus = "PENDING"
)

// Consent is a read-only view of a client consent. The consent domain owns
// the record; this module only consults it.
type Consent struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	Status        ConsentStatus
	Version       int
	EffectiveAt   time.Time
	ExpiresAt     *time.Time
	Scopes        ScopeSet
	VAWAProtected bool
}

// IsValidForUse reports whether the consent may back a data share at now.
func (c Consent) IsValidForUse(now time.Time) bool {
	if c.Status != ConsentStatusGranted {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// ConsentLedgerEntry is the client-profile projection of a consent decision
// that import payloads may reference.
type ConsentLedgerEntry struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Status   ConsentStatus
}
