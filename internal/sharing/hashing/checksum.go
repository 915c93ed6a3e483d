package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"maps"
	"slices"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
)

// ChecksumInput lists the packet fields covered by the integrity checksum.
type ChecksumInput struct {
	ClientHash   string
	Salt         []byte
	ConsentID    uuid.UUID
	EnrollmentID uuid.UUID
	Scopes       models.ScopeSet
	Metadata     map[string]string
	Tags         []string
}

// Checksum is order independent for scopes and metadata; tags are covered
// in the order given.
func Checksum(in ChecksumInput) string {
	d := sha256.New()
	field(d, in.ClientHash)
	field(d, hex.EncodeToString(in.Salt))
	field(d, in.ConsentID.String())
	if in.EnrollmentID != uuid.Nil {
		field(d, in.EnrollmentID.String())
	}
	scopes := slices.Clone(in.Scopes)
	slices.Sort(scopes)
	for _, s := range scopes {
		field(d, string(s))
	}
	for _, k := range slices.Sorted(maps.Keys(in.Metadata)) {
		field(d, k)
		field(d, in.Metadata[k])
	}
	for _, t := range in.Tags {
		field(d, t)
	}
	return hex.EncodeToString(d.Sum(nil))
}

// PacketChecksum recomputes the checksum of a stored packet.
func PacketChecksum(p *models.Packet) string {
	return Checksum(ChecksumInput{
		ClientHash:   p.ClientHash,
		Salt:         p.Salt,
		ConsentID:    p.ConsentID,
		EnrollmentID: p.EnrollmentID,
		Scopes:       p.AllowedScopes,
		Metadata:     p.EncryptionMetadata,
		Tags:         p.EncryptionTags,
	})
}

// ImportPayloadHash identifies an imported record for ledger reconciliation.
func ImportPayloadHash(rec models.ImportRecord) string {
	d := sha256.New()
	field(d, rec.ConsentID.String())
	field(d, rec.EnrollmentID.String())
	field(d, string(rec.RecordType))
	field(d, rec.RecordDate().Format(models.DateLayout))
	if rec.Event != nil && rec.Event.OutcomeDate != nil {
		field(d, rec.Event.OutcomeDate.Format(models.DateLayout))
	}
	scopes := slices.Clone(rec.ShareScopes)
	slices.Sort(scopes)
	for _, s := range scopes {
		field(d, string(s))
	}
	return hex.EncodeToString(d.Sum(nil))
}

// field writes v followed by a separator so adjacent values cannot run
// together.
func field(h hash.Hash, v string) {
	h.Write([]byte(v))
	h.Write([]byte{0})
}
