package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"haven/internal/sharing/models"
)

const (
	activeKeyPrefix = "haven:packet:active:"
	idKeyPrefix     = "haven:packet:id:"
)

// Backend is the authoritative packet store the cache reads through to.
type Backend interface {
	FindActive(ctx context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error)
	Create(ctx context.Context, p *models.Packet) error
}

// RedisCache is a read-through cache over a Backend. Packets are immutable
// once written, so entries only ever expire and are never invalidated.
// Redis failures fall through to the backend.
type RedisCache struct {
	backend Backend
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

func NewRedisCache(backend Backend, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{backend: backend, client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) FindActive(ctx context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error) {
	key := activeKeyPrefix + consentID.String() + ":" + enrollmentID.String()
	if p, ok := c.get(ctx, key); ok {
		return p, nil
	}
	p, err := c.backend.FindActive(ctx, consentID, enrollmentID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, p)
	return p, nil
}

func (c *RedisCache) FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error) {
	if p, ok := c.get(ctx, idKeyPrefix+id.String()); ok {
		return p, nil
	}
	p, err := c.backend.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, p)
	return p, nil
}

func (c *RedisCache) Create(ctx context.Context, p *models.Packet) error {
	if err := c.backend.Create(ctx, p); err != nil {
		return err
	}
	c.put(ctx, p)
	return nil
}

func (c *RedisCache) get(ctx context.Context, key string) (*models.Packet, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "packet cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var p models.Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.WarnContext(ctx, "packet cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) put(ctx context.Context, p *models.Packet) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, idKeyPrefix+p.ID.String(), raw, c.ttl)
	if p.IsActive() {
		pipe.Set(ctx, activeKeyPrefix+p.ConsentID.String()+":"+p.EnrollmentID.String(), raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "packet cache write failed", "packet_id", p.ID, "error", err)
	}
}
