//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"haven/internal/sharing/models"
	"haven/internal/sharing/packet/store"
	"haven/pkg/platform/sentinel"
	"haven/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *countingBackend
	cache   *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.backend = &countingBackend{InMemoryStore: store.NewInMemory()}
	s.cache = store.NewRedisCache(s.backend, s.redis.Client, 5*time.Minute, nil)
}

func (s *RedisCacheSuite) TestReadsThroughOnce() {
	ctx := context.Background()
	p := newPacket(uuid.New(), uuid.New())
	s.Require().NoError(s.backend.InMemoryStore.Create(ctx, p))

	for range 3 {
		found, err := s.cache.FindActive(ctx, p.ConsentID, p.EnrollmentID)
		s.Require().NoError(err)
		s.Equal(p.ID, found.ID)
		s.Equal(p.Salt, found.Salt)
	}
	s.Equal(1, s.backend.reads)
}

func (s *RedisCacheSuite) TestCreatePopulatesBothKeys() {
	ctx := context.Background()
	p := newPacket(uuid.New(), uuid.New())
	s.Require().NoError(s.cache.Create(ctx, p))

	_, err := s.cache.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	_, err = s.cache.FindActive(ctx, p.ConsentID, p.EnrollmentID)
	s.Require().NoError(err)
	s.Equal(0, s.backend.reads)
}

func (s *RedisCacheSuite) TestMissesAreNotCached() {
	ctx := context.Background()
	_, err := s.cache.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

type countingBackend struct {
	*store.InMemoryStore
	reads int
}

func (b *countingBackend) FindActive(ctx context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error) {
	b.reads++
	return b.InMemoryStore.FindActive(ctx, consentID, enrollmentID)
}

func (b *countingBackend) FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error) {
	b.reads++
	return b.InMemoryStore.FindByID(ctx, id)
}
