package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

type activeKey struct {
	consentID    uuid.UUID
	enrollmentID uuid.UUID
}

// InMemoryStore is a mutex-guarded packet store for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*models.Packet
	active map[activeKey]uuid.UUID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[uuid.UUID]*models.Packet),
		active: make(map[activeKey]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return sentinel.ErrConflict
	}
	key := activeKey{p.ConsentID, p.EnrollmentID}
	if p.IsActive() {
		if _, ok := s.active[key]; ok {
			return sentinel.ErrConflict
		}
		s.active[key] = p.ID
	}
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[activeKey{consentID, enrollmentID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Packet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
