package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	updates map[uuid.UUID]models.ConsentLedgerUpdate
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{updates: make(map[uuid.UUID]models.ConsentLedgerUpdate)}
}

func (s *InMemoryStore) SaveUpdate(_ context.Context, u models.ConsentLedgerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.updates[u.ID]; ok {
		return fmt.Errorf("save ledger update: %w", sentinel.ErrConflict)
	}
	s.updates[u.ID] = u
	return nil
}

func (s *InMemoryStore) FindUpdate(_ context.Context, id uuid.UUID) (models.ConsentLedgerUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.updates[id]
	if !ok {
		return models.ConsentLedgerUpdate{}, sentinel.ErrNotFound
	}
	return u, nil
}

func (s *InMemoryStore) MarkAcknowledged(_ context.Context, u models.ConsentLedgerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.updates[u.ID]
	if !ok || current.Status != models.LedgerUpdatePending {
		return fmt.Errorf("acknowledge ledger update: %w", sentinel.ErrConflict)
	}
	s.updates[u.ID] = u
	return nil
}

func (s *InMemoryStore) ListPending(_ context.Context, limit int) ([]models.ConsentLedgerUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConsentLedgerUpdate
	for _, u := range s.updates {
		if u.Status == models.LedgerUpdatePending {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b models.ConsentLedgerUpdate) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
