package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps window counters as Redis integers that expire with
// their window.
type RedisCounter struct {
	redis redis.UniversalClient
}

// NewRedisCounter creates a [Counter] backed by client.
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{redis: client}
}

// Increment runs INCR and PEXPIRE in one MULTI so a counter never outlives
// its window without an expiry.
//
//	Performance: 1 round trip (MULTI INCR PEXPIRE EXEC).
func (c *RedisCounter) Increment(ctx context.Context, key string, now, expiresAt time.Time) (int64, error) {
	ttl := expiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	var incr *redis.IntCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}
