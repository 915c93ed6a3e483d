package models

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

// HashAlgorithm selects the identity hashing scheme for a packet.
type HashAlgorithm string

const (
	HashPBKDF2SHA256 HashAlgorithm = "PBKDF2_SHA256"
	HashSHA256Salt   HashAlgorithm = "SHA256_SALT"
	HashArgon2ID     HashAlgorithm = "ARGON2ID"
	// HashBcrypt is accepted on the wire but cannot produce a deterministic
	// token from an external salt, so the hasher rejects it.
	HashBcrypt HashAlgorithm = "BCRYPT"
)

// DefaultHashAlgorithm is used when a caller does not pick one.
const DefaultHashAlgorithm = HashPBKDF2SHA256

// DefaultHashIterations is the iteration count recorded on new packets.
const DefaultHashIterations = 100_000

// DefaultEncryptionScheme names the authenticated-encryption mode used for
// export artifacts: 12-byte nonce, 16-byte tag.
const DefaultEncryptionScheme = "AES-256-GCM"

// Packet is the consent-scoped, hashed snapshot every shared record is tagged
// with.
//
// Invariants:
//   - AllowedScopes is never empty
//   - consent snapshot fields are copied at creation and never change; a
//     consent status change requires a new packet
//   - at most one packet with a GRANTED snapshot exists per (ConsentID,
//     EnrollmentID); stores enforce this with a uniqueness constraint
//   - packets are never deleted
type Packet struct {
	ID           uuid.UUID
	ClientID     uuid.UUID // owned by the case-management domain; never exported
	EnrollmentID uuid.UUID // uuid.Nil when the packet is not enrollment-scoped

	ConsentID          uuid.UUID
	ConsentStatus      ConsentStatus
	ConsentVersion     int
	ConsentEffectiveAt time.Time
	ConsentExpiresAt   *time.Time

	ClientHash    string
	HashAlgorithm HashAlgorithm
	Salt          []byte
	Iterations    int
	AllowedScopes ScopeSet

	EncryptionScheme   string
	EncryptionKeyID    string
	EncryptionMetadata map[string]string
	EncryptionTags     []string

	Checksum      string
	LedgerEntryID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PacketSpec carries the values a packet is built from.
type PacketSpec struct {
	ID                 uuid.UUID
	ClientID           uuid.UUID
	EnrollmentID       uuid.UUID
	Consent            Consent
	ClientHash         string
	HashAlgorithm      HashAlgorithm
	Salt               []byte
	Iterations         int
	AllowedScopes      ScopeSet
	EncryptionScheme   string
	EncryptionKeyID    string
	EncryptionMetadata map[string]string
	EncryptionTags     []string
	Checksum           string
	LedgerEntryID      *uuid.UUID
}

// NewPacket validates spec and snapshots the consent.
func NewPacket(spec PacketSpec, now time.Time) (*Packet, error) {
	if spec.ID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "packet id is required")
	}
	if spec.ClientID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client id is required")
	}
	if spec.Consent.ID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent id is required")
	}
	if len(spec.AllowedScopes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "packet must allow at least one share scope")
	}
	if spec.ClientHash == "" || len(spec.Salt) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "packet requires a client hash and salt")
	}
	if spec.EncryptionKeyID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "encryption key id is required")
	}
	var expires *time.Time
	if spec.Consent.ExpiresAt != nil {
		e := *spec.Consent.ExpiresAt
		expires = &e
	}
	return &Packet{
		ID:                 spec.ID,
		ClientID:           spec.ClientID,
		EnrollmentID:       spec.EnrollmentID,
		ConsentID:          spec.Consent.ID,
		ConsentStatus:      spec.Consent.Status,
		ConsentVersion:     spec.Consent.Version,
		ConsentEffectiveAt: spec.Consent.EffectiveAt,
		ConsentExpiresAt:   expires,
		ClientHash:         spec.ClientHash,
		HashAlgorithm:      spec.HashAlgorithm,
		Salt:               slices.Clone(spec.Salt),
		Iterations:         spec.Iterations,
		AllowedScopes:      slices.Clone(spec.AllowedScopes),
		EncryptionScheme:   spec.EncryptionScheme,
		EncryptionKeyID:    spec.EncryptionKeyID,
		EncryptionMetadata: maps.Clone(spec.EncryptionMetadata),
		EncryptionTags:     slices.Clone(spec.EncryptionTags),
		Checksum:           spec.Checksum,
		LedgerEntryID:      spec.LedgerEntryID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// IsActive reports whether the packet's consent snapshot was GRANTED.
func (p *Packet) IsActive() bool {
	return p.ConsentStatus == ConsentStatusGranted
}

// MissingScopes returns the required scopes this packet does not allow.
func (p *Packet) MissingScopes(required ScopeSet) []ShareScope {
	return p.AllowedScopes.Missing(required)
}

// AllowsAll reports whether every required scope is allowed.
func (p *Packet) AllowsAll(required ScopeSet) bool {
	return p.AllowedScopes.ContainsAll(required)
}
