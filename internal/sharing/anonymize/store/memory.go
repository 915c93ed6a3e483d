package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

// InMemoryStore keeps exports in process. It mirrors the guarded update and
// purge semantics of the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	exports map[uuid.UUID]models.VspExport
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{exports: make(map[uuid.UUID]models.VspExport)}
}

func (s *InMemoryStore) Save(_ context.Context, e models.VspExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exports[e.ID]; ok {
		return fmt.Errorf("save vsp export: %w", sentinel.ErrConflict)
	}
	s.exports[e.ID] = clone(e)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, e models.VspExport, from models.VspExportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exports[e.ID]
	if !ok || cur.Status != from {
		return fmt.Errorf("update vsp export %s from %s: %w", e.ID, from, sentinel.ErrInvalidState)
	}
	cur.Status = e.Status
	cur.RevokedAt = e.RevokedAt
	cur.RevokedBy = e.RevokedBy
	cur.RevocationReason = e.RevocationReason
	s.exports[e.ID] = cur
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (models.VspExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exports[id]
	if !ok {
		return models.VspExport{}, sentinel.ErrNotFound
	}
	return clone(e), nil
}

func (s *InMemoryStore) ListByRecipient(_ context.Context, recipient string) ([]models.VspExport, error) {
	return s.filter(func(e models.VspExport) bool { return e.Recipient == recipient },
		func(a, b models.VspExport) int { return b.ExportedAt.Compare(a.ExportedAt) }, 0), nil
}

func (s *InMemoryStore) ListExpiring(_ context.Context, now time.Time, limit int) ([]models.VspExport, error) {
	return s.filter(func(e models.VspExport) bool {
		return !e.Status.IsTerminal() && !e.ExpiresAt.After(now)
	}, func(a, b models.VspExport) int { return a.ExpiresAt.Compare(b.ExpiresAt) }, limit), nil
}

func (s *InMemoryStore) PurgeExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.exports {
		if e.Status == models.VspExportExpired && e.ExpiresAt.Before(before) {
			delete(s.exports, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) filter(keep func(models.VspExport) bool, cmp func(a, b models.VspExport) int, limit int) []models.VspExport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VspExport
	for _, e := range s.exports {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	slices.SortFunc(out, cmp)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(e models.VspExport) models.VspExport {
	e.ShareScopes = slices.Clone(e.ShareScopes)
	e.Metadata = maps.Clone(e.Metadata)
	if e.RevokedAt != nil {
		t := *e.RevokedAt
		e.RevokedAt = &t
	}
	return e
}
