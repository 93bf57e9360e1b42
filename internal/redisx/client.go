package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkOnce sets key only if it is absent. first is false when the key was already there.
func MarkOnce(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (first bool, err error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}
