package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Daily order counter: order_seq:{yymmdd} -> last issued sequence
	KeyOrderSequence = "order_seq:%s"

	// Counters outlive their day so late retries still see them.
	TTLOrderSequence = 48 * time.Hour
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Ping verifies the connection at startup.
func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// NextInSequence atomically increments the counter for day and refreshes its TTL.
func NextInSequence(ctx context.Context, rdb *redis.Client, day string) (int64, error) {
	key := fmt.Sprintf(KeyOrderSequence, day)
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, TTLOrderSequence)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to advance %s: %w", key, err)
	}
	return incr.Val(), nil
}
