package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"haven/internal/sharing/models"
	dErrors "haven/pkg/domain-errors"
)

type HasherSuite struct {
	suite.Suite
	hasher   *Hasher
	clientID uuid.UUID
	salt     []byte
}

func TestHasherSuite(t *testing.T) {
	suite.Run(t, new(HasherSuite))
}

func (s *HasherSuite) SetupTest() {
	s.hasher = New()
	s.clientID = uuid.MustParse("7b1e6d2a-4c1f-4f7e-9a57-3b8f8e0c2d11")
	s.salt = []byte("0123456789abcdef")
}

func (s *HasherSuite) TestDeterministic() {
	for _, alg := range []models.HashAlgorithm{models.HashPBKDF2SHA256, models.HashSHA256Salt, models.HashArgon2ID} {
		s.Run(string(alg), func() {
			iterations := 10
			if alg == models.HashArgon2ID {
				iterations = 1
			}
			a, err := s.hasher.Hash(s.clientID, s.salt, iterations, alg)
			s.Require().NoError(err)
			b, err := s.hasher.Hash(s.clientID, s.salt, iterations, alg)
			s.Require().NoError(err)
			s.Equal(a, b)
			s.Len(a, 64)

			other, err := s.hasher.Hash(s.clientID, []byte("fedcba9876543210"), iterations, alg)
			s.Require().NoError(err)
			s.NotEqual(a, other, "salt changes the hash")
			s.NotContains(a, s.clientID.String())
		})
	}
}

func (s *HasherSuite) TestIteratedDigest() {
	s.Run("single iteration is one salted digest", func() {
		got, err := s.hasher.Hash(s.clientID, s.salt, 1, models.HashSHA256Salt)
		s.Require().NoError(err)
		want := sha256.Sum256(append(append([]byte{}, s.salt...), []byte(s.clientID.String())...))
		s.Equal(hex.EncodeToString(want[:]), got)
	})

	s.Run("iteration count changes the output", func() {
		one, _ := s.hasher.Hash(s.clientID, s.salt, 1, models.HashSHA256Salt)
		two, _ := s.hasher.Hash(s.clientID, s.salt, 2, models.HashSHA256Salt)
		s.NotEqual(one, two)
	})
}

func (s *HasherSuite) TestRejectsUnsupported() {
	_, err := s.hasher.Hash(s.clientID, s.salt, 10, models.HashBcrypt)
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnsupportedAlgorithm)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	s.False(Supported(models.HashBcrypt))

	_, err = s.hasher.Hash(uuid.Nil, s.salt, 10, models.HashSHA256Salt)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

type staticSalts struct {
	salt []byte
	err  error
}

func (f staticSalts) GenerateSalt(context.Context) ([]byte, error) { return f.salt, f.err }

func (s *HasherSuite) TestGenerateSalt() {
	s.Run("crypto/rand fallback", func() {
		a, err := s.hasher.GenerateSalt(context.Background())
		s.Require().NoError(err)
		b, _ := s.hasher.GenerateSalt(context.Background())
		s.Len(a, SaltSize)
		s.NotEqual(a, b)
	})

	s.Run("key manager source", func() {
		h := New(WithSaltSource(staticSalts{salt: []byte("fedcba98765432100000")}))
		salt, err := h.GenerateSalt(context.Background())
		s.Require().NoError(err)
		s.Equal([]byte("fedcba9876543210"), salt)
	})

	s.Run("source failure is a crypto failure", func() {
		h := New(WithSaltSource(staticSalts{err: errors.New("kms down")}))
		_, err := h.GenerateSalt(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeCryptoFailure))
	})
}

func (s *HasherSuite) TestChecksum() {
	in := ChecksumInput{
		ClientHash: "abc",
		Salt:       s.salt,
		ConsentID:  uuid.New(),
		Scopes:     models.ScopeSet{models.ScopeDVData, models.ScopeCoordinatedEntry},
		Metadata:   map[string]string{"b": "2", "a": "1"},
		Tags:       []string{"consent:x"},
	}
	base := Checksum(in)

	reordered := in
	reordered.Scopes = models.ScopeSet{models.ScopeCoordinatedEntry, models.ScopeDVData}
	s.Equal(base, Checksum(reordered))

	changed := in
	changed.Metadata = map[string]string{"a": "1", "b": "3"}
	s.NotEqual(base, Checksum(changed))
}

func (s *HasherSuite) TestImportPayloadHash() {
	rec := models.ImportRecord{
		RecordType:   models.RecordAssessment,
		ConsentID:    uuid.New(),
		EnrollmentID: uuid.New(),
		ShareScopes:  models.ScopeSet{models.ScopeCoordinatedEntry},
		Assessment:   &models.ImportedAssessment{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	a := ImportPayloadHash(rec)
	s.Equal(a, ImportPayloadHash(rec))

	later := rec
	later.Assessment = &models.ImportedAssessment{Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)}
	s.NotEqual(a, ImportPayloadHash(later))
}
