// Package hashing derives the pseudonymous client tokens carried by packets.
package hashing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

// SaltSize is the length of a generated salt in bytes.
const SaltSize = 16

// Argon2 parameters. The packet's iteration count is the Argon2 time cost.
const (
	DefaultArgon2Time = 3
	argon2MemoryKiB   = 64 * 1024
	argon2Threads     = 2
	keyLength         = 32
)

// ErrUnsupportedAlgorithm is returned for algorithms that cannot produce a
// deterministic token from an external salt. It is never downgraded.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// SaltSource supplies salts from the key manager.
type SaltSource interface {
	GenerateSalt(ctx context.Context) ([]byte, error)
}

// Hasher produces deterministic client hashes.
type Hasher struct {
	salts SaltSource
}

type Option func(*Hasher)

// WithSaltSource draws salts from src instead of crypto/rand.
func WithSaltSource(src SaltSource) Option {
	return func(h *Hasher) {
		h.salts = src
	}
}

func New(opts ...Option) *Hasher {
	h := &Hasher{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IterationsFor returns the work factor recorded on new packets for alg.
func IterationsFor(alg models.HashAlgorithm) int {
	if alg == models.HashArgon2ID {
		return DefaultArgon2Time
	}
	return models.DefaultHashIterations
}

// Supported reports whether alg can be used for new packets.
func Supported(alg models.HashAlgorithm) bool {
	switch alg {
	case models.HashPBKDF2SHA256, models.HashSHA256Salt, models.HashArgon2ID:
		return true
	}
	return false
}

// Hash derives the hex client hash. The same inputs always give the same
// output.
func (h *Hasher) Hash(clientID uuid.UUID, salt []byte, iterations int, alg models.HashAlgorithm) (string, error) {
	if clientID == uuid.Nil {
		return "", dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if len(salt) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "salt is required")
	}
	if iterations <= 0 {
		return "", dErrors.New(dErrors.CodeValidation, "iterations must be positive")
	}

	id := []byte(clientID.String())
	switch alg {
	case models.HashPBKDF2SHA256:
		return hex.EncodeToString(pbkdf2.Key(id, salt, iterations, keyLength, sha256.New)), nil
	case models.HashSHA256Salt:
		return hex.EncodeToString(iteratedDigest(id, salt, iterations)), nil
	case models.HashArgon2ID:
		return hex.EncodeToString(argon2.IDKey(id, salt, uint32(iterations), argon2MemoryKiB, argon2Threads, keyLength)), nil
	}
	return "", dErrors.Wrap(ErrUnsupportedAlgorithm, dErrors.CodeInvalidConfig,
		fmt.Sprintf("hash algorithm %q is not supported", alg))
}

// iteratedDigest computes h0 = sha256(salt||id), hN = sha256(salt||hN-1).
func iteratedDigest(id, salt []byte, iterations int) []byte {
	d := sha256.New()
	d.Write(salt)
	d.Write(id)
	sum := d.Sum(nil)
	for i := 1; i < iterations; i++ {
		d.Reset()
		d.Write(salt)
		d.Write(sum)
		sum = d.Sum(sum[:0])
	}
	return sum
}

// GenerateSalt returns SaltSize random bytes.
func (h *Hasher) GenerateSalt(ctx context.Context) ([]byte, error) {
	if h.salts != nil {
		salt, err := h.salts.GenerateSalt(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to generate salt")
		}
		if len(salt) < SaltSize {
			return nil, dErrors.New(dErrors.CodeCryptoFailure, "salt source returned a short salt")
		}
		return salt[:SaltSize], nil
	}
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to generate salt")
	}
	return salt, nil
}
