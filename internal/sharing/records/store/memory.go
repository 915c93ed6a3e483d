package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

// PacketReader resolves the packet a stored record references.
type PacketReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error)
}

// InMemoryStore keeps records and reference projections in maps. It serves
// tests and local runs.
type InMemoryStore struct {
	packets PacketReader

	mu          sync.RWMutex
	assessments []models.Assessment
	events      []models.Event
	referrals   []models.Referral
	enrollments map[uuid.UUID]models.Enrollment
	consents    map[uuid.UUID]models.Consent
	ledger      map[uuid.UUID]models.ConsentLedgerEntry
}

func NewInMemory(packets PacketReader) *InMemoryStore {
	return &InMemoryStore{
		packets:     packets,
		enrollments: make(map[uuid.UUID]models.Enrollment),
		consents:    make(map[uuid.UUID]models.Consent),
		ledger:      make(map[uuid.UUID]models.ConsentLedgerEntry),
	}
}

func (s *InMemoryStore) PutEnrollment(e models.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
}

func (s *InMemoryStore) PutConsent(c models.Consent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[c.ID] = c
}

func (s *InMemoryStore) PutLedgerEntry(e models.ConsentLedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[e.ID] = e
}

func (s *InMemoryStore) FindEnrollment(_ context.Context, id uuid.UUID) (models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return models.Enrollment{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *InMemoryStore) FindConsent(_ context.Context, id uuid.UUID) (models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[id]
	if !ok {
		return models.Consent{}, sentinel.ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) FindLedgerEntry(_ context.Context, id uuid.UUID) (models.ConsentLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ledger[id]
	if !ok {
		return models.ConsentLedgerEntry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *InMemoryStore) SaveAssessment(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = append(s.assessments, *a)
	return nil
}

func (s *InMemoryStore) SaveEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *InMemoryStore) SaveReferral(_ context.Context, r *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals = append(s.referrals, *r)
	return nil
}

// AssessmentCount reports how many assessments were saved.
func (s *InMemoryStore) AssessmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assessments)
}

// EventCount reports how many events were saved.
func (s *InMemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) Assessments(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	s.mu.RLock()
	items := slices.Clone(s.assessments)
	s.mu.RUnlock()
	return collect(ctx, s.packets, enrollmentIDs, window, items,
		func(a models.Assessment) (uuid.UUID, uuid.UUID, time.Time) {
			return a.EnrollmentID, a.PacketID, a.AssessmentDate
		},
		func(a models.Assessment, p *models.Packet) models.ExportRecord { return models.AssessmentRecord(a, p) },
	)
}

func (s *InMemoryStore) Events(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	s.mu.RLock()
	items := slices.Clone(s.events)
	s.mu.RUnlock()
	return collect(ctx, s.packets, enrollmentIDs, window, items,
		func(e models.Event) (uuid.UUID, uuid.UUID, time.Time) {
			return e.EnrollmentID, e.PacketID, e.EventDate
		},
		func(e models.Event, p *models.Packet) models.ExportRecord { return models.EventRecord(e, p) },
	)
}

func (s *InMemoryStore) Referrals(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	s.mu.RLock()
	items := slices.Clone(s.referrals)
	s.mu.RUnlock()
	return collect(ctx, s.packets, enrollmentIDs, window, items,
		func(r models.Referral) (uuid.UUID, uuid.UUID, time.Time) {
			return r.EnrollmentID, r.PacketID, r.ReferralDate
		},
		func(r models.Referral, p *models.Packet) models.ExportRecord { return models.ReferralRecord(r, p) },
	)
}

// collect filters items to the enrollments and window, orders them like the
// SQL store does and joins each with its packet.
func collect[T any](
	ctx context.Context,
	packets PacketReader,
	enrollmentIDs []uuid.UUID,
	window models.DateRange,
	items []T,
	key func(T) (uuid.UUID, uuid.UUID, time.Time),
	project func(T, *models.Packet) models.ExportRecord,
) ([]models.ExportRecord, error) {
	type match struct {
		item     T
		position int
		packetID uuid.UUID
		date     time.Time
	}
	var matches []match
	for _, it := range items {
		enrollmentID, packetID, date := key(it)
		pos := slices.Index(enrollmentIDs, enrollmentID)
		if pos < 0 || !window.Contains(date) {
			continue
		}
		matches = append(matches, match{item: it, position: pos, packetID: packetID, date: date})
	}
	slices.SortStableFunc(matches, func(a, b match) int {
		if c := cmp.Compare(a.position, b.position); c != 0 {
			return c
		}
		return a.date.Compare(b.date)
	})

	out := make([]models.ExportRecord, 0, len(matches))
	for _, m := range matches {
		p, err := packets.FindByID(ctx, m.packetID)
		if err != nil {
			return nil, err
		}
		out = append(out, project(m.item, p))
	}
	return out, nil
}
