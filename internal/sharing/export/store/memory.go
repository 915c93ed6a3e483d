package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	receipts map[uuid.UUID]models.ExportReceipt
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{receipts: make(map[uuid.UUID]models.ExportReceipt)}
}

func (s *InMemoryStore) Save(_ context.Context, r *models.ExportReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.ID]; ok {
		return sentinel.ErrConflict
	}
	s.receipts[r.ID] = *r
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.ExportReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (s *InMemoryStore) ListByCoc(_ context.Context, cocID string) ([]*models.ExportReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ExportReceipt
	for _, r := range s.receipts {
		if r.CocID == cocID {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *models.ExportReceipt) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Count reports how many receipts exist.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}
