package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultProjectionTTL = 5 * time.Minute

// ProjectionCache keeps the rendered channel array of an owner in Redis.
// A nil client disables caching.
type ProjectionCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewProjectionCache(client *redis.Client, ttl time.Duration) *ProjectionCache {
	if ttl <= 0 {
		ttl = defaultProjectionTTL
	}
	return &ProjectionCache{redis: client, ttl: ttl}
}

func projectionKey(owner OwnerID) string {
	return fmt.Sprintf("usersapi:channels:%s", owner)
}

// Get reports whether a projection is cached for owner.
func (c *ProjectionCache) Get(ctx context.Context, owner OwnerID) ([]byte, bool, error) {
	if c == nil || c.redis == nil {
		return nil, false, nil
	}
	data, err := c.redis.Get(ctx, projectionKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached projection: %w", err)
	}
	return data, true, nil
}

func (c *ProjectionCache) Set(ctx context.Context, owner OwnerID, data []byte) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if err := c.redis.Set(ctx, projectionKey(owner), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache projection: %w", err)
	}
	return nil
}

func (c *ProjectionCache) Invalidate(ctx context.Context, owner OwnerID) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, projectionKey(owner)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate projection: %w", err)
	}
	return nil
}
