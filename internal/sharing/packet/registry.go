// Package packet resolves the consent-scoped packet every shared CE record is
// tagged with.
package packet

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"haven/internal/sharing/hashing"
	"haven/internal/sharing/models"
	"haven/internal/sharing/sealing"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	"haven/pkg/requestcontext"
)

// Store persists packets. Create must report a duplicate GRANTED packet for
// the same consent and enrollment as sentinel.ErrConflict.
type Store interface {
	FindActive(ctx context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error)
	Create(ctx context.Context, p *models.Packet) error
}

// IdentityHasher derives client hashes.
type IdentityHasher interface {
	Hash(clientID uuid.UUID, salt []byte, iterations int, alg models.HashAlgorithm) (string, error)
	GenerateSalt(ctx context.Context) ([]byte, error)
}

// CreatePacketRequest describes the packet a record needs.
type CreatePacketRequest struct {
	ClientID         uuid.UUID
	EnrollmentID     uuid.UUID
	Consent          models.Consent
	EncryptionKeyID  string
	HashAlgorithm    models.HashAlgorithm
	EncryptionScheme string
	Metadata         map[string]string
	Tags             []string
	Scopes           models.ScopeSet
	LedgerEntryID    *uuid.UUID
}

// Metadata keys the registry sets on every packet. They override caller
// supplied values.
const (
	MetaConsentStatus    = "consentStatus"
	MetaConsentVersion   = "consentVersion"
	MetaHashAlgorithm    = "hashAlgorithm"
	MetaEncryptionScheme = "encryptionScheme"
	MetaNonceSize        = "nonceSize"
	MetaTagSize          = "tagSize"
	MetaConsentExpiresAt = "consentExpiresAt"
	MetaVAWAProtected    = "vawaProtected"
	MetaConsentLedgerID  = "consentLedgerId"
)

type Registry struct {
	store   Store
	hasher  IdentityHasher
	scheme  sealing.Scheme
	defAlg  models.HashAlgorithm
	group   singleflight.Group
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithDefaultHashAlgorithm selects the algorithm used when a request names
// none.
func WithDefaultHashAlgorithm(alg models.HashAlgorithm) Option {
	return func(r *Registry) {
		if alg != "" {
			r.defAlg = alg
		}
	}
}

func NewRegistry(store Store, hasher IdentityHasher, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		hasher: hasher,
		scheme: sealing.SchemeAES256GCM,
		defAlg: models.DefaultHashAlgorithm,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOrRetrieve returns the GRANTED packet for the request's consent and
// enrollment, creating it on first use. Concurrent callers for the same pair
// receive the same packet. The shared resolution is detached from any one
// caller's cancellation; a cancelled caller stops waiting on its own.
func (r *Registry) CreateOrRetrieve(ctx context.Context, req CreatePacketRequest) (*models.Packet, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key := req.Consent.ID.String() + "|" + req.EnrollmentID.String()
	ch := r.group.DoChan(key, func() (any, error) {
		return r.createOrRetrieve(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "packet resolution cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.metrics.incResolved(outcomeShared)
		}
		return res.Val.(*models.Packet), nil
	}
}

func (r *Registry) createOrRetrieve(ctx context.Context, req CreatePacketRequest) (*models.Packet, error) {
	existing, err := r.store.FindActive(ctx, req.Consent.ID, req.EnrollmentID)
	switch {
	case err == nil:
		r.metrics.incResolved(outcomeExisting)
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up packet")
	}

	p, err := r.build(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, p); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save packet")
		}
		// Another writer won the race; its packet is the packet.
		winner, findErr := r.store.FindActive(ctx, req.Consent.ID, req.EnrollmentID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load concurrently created packet")
		}
		r.metrics.incResolved(outcomeRaceLost)
		return winner, nil
	}

	r.metrics.incResolved(outcomeCreated)
	r.logger.InfoContext(ctx, "ce packet created",
		"packet_id", p.ID,
		"consent_id", p.ConsentID,
		"hash_algorithm", p.HashAlgorithm,
		"scopes", p.AllowedScopes.String(),
	)
	return p, nil
}

func (r *Registry) build(ctx context.Context, req CreatePacketRequest) (*models.Packet, error) {
	alg := req.HashAlgorithm
	if alg == "" {
		alg = r.defAlg
	}
	scheme := strings.TrimSpace(req.EncryptionScheme)
	if scheme == "" {
		scheme = models.DefaultEncryptionScheme
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = models.ScopeSet{models.DefaultShareScope}
	}

	start := time.Now()
	salt, err := r.hasher.GenerateSalt(ctx)
	if err != nil {
		return nil, err
	}
	iterations := hashing.IterationsFor(alg)
	clientHash, err := r.hasher.Hash(req.ClientID, salt, iterations, alg)
	if err != nil {
		return nil, err
	}
	r.metrics.observeHash(alg, time.Since(start))

	metadata := r.enrichMetadata(req, alg, scheme)
	tags := enrichTags(req.Tags, req.Consent, scopes)
	checksum := hashing.Checksum(hashing.ChecksumInput{
		ClientHash:   clientHash,
		Salt:         salt,
		ConsentID:    req.Consent.ID,
		EnrollmentID: req.EnrollmentID,
		Scopes:       scopes,
		Metadata:     metadata,
		Tags:         tags,
	})

	return models.NewPacket(models.PacketSpec{
		ID:                 uuid.New(),
		ClientID:           req.ClientID,
		EnrollmentID:       req.EnrollmentID,
		Consent:            req.Consent,
		ClientHash:         clientHash,
		HashAlgorithm:      alg,
		Salt:               salt,
		Iterations:         iterations,
		AllowedScopes:      scopes,
		EncryptionScheme:   scheme,
		EncryptionKeyID:    req.EncryptionKeyID,
		EncryptionMetadata: metadata,
		EncryptionTags:     tags,
		Checksum:           checksum,
		LedgerEntryID:      req.LedgerEntryID,
	}, requestcontext.Now(ctx))
}

func (r *Registry) enrichMetadata(req CreatePacketRequest, alg models.HashAlgorithm, scheme string) map[string]string {
	meta := maps.Clone(req.Metadata)
	if meta == nil {
		meta = make(map[string]string)
	}
	meta[MetaConsentStatus] = string(req.Consent.Status)
	meta[MetaConsentVersion] = strconv.Itoa(req.Consent.Version)
	meta[MetaHashAlgorithm] = string(alg)
	meta[MetaEncryptionScheme] = scheme
	meta[MetaNonceSize] = strconv.Itoa(r.scheme.NonceSize)
	meta[MetaTagSize] = strconv.Itoa(r.scheme.TagSize)
	meta[MetaVAWAProtected] = strconv.FormatBool(req.Consent.VAWAProtected)
	if req.Consent.ExpiresAt != nil {
		meta[MetaConsentExpiresAt] = req.Consent.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if req.LedgerEntryID != nil {
		meta[MetaConsentLedgerID] = req.LedgerEntryID.String()
	}
	return meta
}

// enrichTags appends consent, status and scope tags to the caller's tags,
// dropping blanks and duplicates while keeping first-seen order.
func enrichTags(tags []string, consent models.Consent, scopes models.ScopeSet) []string {
	all := slices.Clone(tags)
	all = append(all,
		"consent:"+consent.ID.String(),
		"status:"+string(consent.Status),
	)
	for _, s := range scopes {
		all = append(all, "scope:"+string(s))
	}
	seen := make(map[string]bool, len(all))
	out := make([]string, 0, len(all))
	for _, t := range all {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Get returns a packet by id.
func (r *Registry) Get(ctx context.Context, packetID uuid.UUID) (*models.Packet, error) {
	p, err := r.store.FindByID(ctx, packetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "packet not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load packet")
	}
	return p, nil
}

func validateRequest(req CreatePacketRequest) error {
	if req.ClientID == uuid.Nil {
		return dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if req.Consent.ID == uuid.Nil {
		return dErrors.New(dErrors.CodeValidation, "consent id is required")
	}
	if strings.TrimSpace(req.EncryptionKeyID) == "" {
		return dErrors.New(dErrors.CodeValidation, "encryption key id is required")
	}
	if req.HashAlgorithm != "" && !hashing.Supported(req.HashAlgorithm) {
		return dErrors.New(dErrors.CodeInvalidConfig, "unsupported hash algorithm: "+string(req.HashAlgorithm))
	}
	return nil
}
