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
	mu   sync.RWMutex
	jobs map[uuid.UUID]models.ImportJob
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[uuid.UUID]models.ImportJob)}
}

func (s *InMemoryStore) Save(_ context.Context, job models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.jobs[job.ID]; ok && prev.Status.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	job.ErrorLog = slices.Clone(job.ErrorLog)
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ImportJob{}, sentinel.ErrNotFound
	}
	job.ErrorLog = slices.Clone(job.ErrorLog)
	return job, nil
}
