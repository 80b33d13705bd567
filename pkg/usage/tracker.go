// Package usage tracks per-user daily metric counters in Redis. Counters
// key on the UTC date and expire shortly after midnight, so "daily" limits
// reset without any sweeping job.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ITracker interface {
	// Increment bumps the counter for metric/userId today and returns the
	// new value.
	Increment(ctx context.Context, metric, userId string) (int64, error)
	// Count returns today's counter without modifying it.
	Count(ctx context.Context, metric, userId string) (int64, error)
}

type tracker struct {
	rdb *redis.Client
}

func NewTracker(rdb *redis.Client) ITracker {
	return &tracker{rdb: rdb}
}

func dailyKey(metric, userId string, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", metric, userId, now.UTC().Format("2006-01-02"))
}

func (t *tracker) Increment(ctx context.Context, metric, userId string) (int64, error) {
	now := time.Now()
	key := dailyKey(metric, userId, now)

	count, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}

	if count == 1 {
		// First hit today. Expire a bit after the UTC day rolls over so a
		// clock-skewed reader never sees a vanished key mid-day.
		midnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		ttl := time.Until(midnight) + time.Hour
		if err := t.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("failed to set usage counter expiry: %w", err)
		}
	}

	return count, nil
}

func (t *tracker) Count(ctx context.Context, metric, userId string) (int64, error) {
	key := dailyKey(metric, userId, time.Now())

	count, err := t.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return count, nil
}
