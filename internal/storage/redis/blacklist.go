package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "token:blacklist:"

// BlacklistCache holds revoked jtis with a TTL mirroring the token's own
// expiry, so entries vanish exactly when the token stops verifying anyway.
type BlacklistCache struct {
	client *redis.Client
}

func NewBlacklistCache(client *redis.Client) *BlacklistCache {
	return &BlacklistCache{client: client}
}

func (c *BlacklistCache) Put(ctx context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, blacklistKeyPrefix+jti, reason, ttl).Err()
}

func (c *BlacklistCache) Contains(ctx context.Context, jti string) (bool, error) {
	_, err := c.client.Get(ctx, blacklistKeyPrefix+jti).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}
