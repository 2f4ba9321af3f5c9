package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "ratelimit:"

// CounterStore implements the classic fixed-window counter: INCR the bucket
// and set the window TTL only on the first hit. Two requests racing to create
// the same counter may both run EXPIRE with an identical window, which is
// harmless.
type CounterStore struct {
	client *redis.Client
}

func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := counterKeyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
