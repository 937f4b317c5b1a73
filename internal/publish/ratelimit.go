package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds how many posts one user may publish to one platform
// per day. Allow reports whether another publish fits the current window
// and, when it does not, when the window resets.
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID, platform models.Platform) (allowed bool, resetAt time.Time, err error)
}

// RedisRateLimiter counts publishes in a fixed daily UTC window. The
// counter lives in Redis so all workers share one view of the limit.
type RedisRateLimiter struct {
	rdb   *redis.Client
	limit int
}

func NewRedisRateLimiter(rdb *redis.Client, dailyLimit int) *RedisRateLimiter {
	if dailyLimit <= 0 {
		dailyLimit = 10
	}
	return &RedisRateLimiter{rdb: rdb, limit: dailyLimit}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, userID uuid.UUID, platform models.Platform) (bool, time.Time, error) {
	now := time.Now().UTC()
	windowStart := now.Truncate(24 * time.Hour)
	resetAt := windowStart.Add(24 * time.Hour)

	key := fmt.Sprintf("publish:%s:%s:%s", platform, userID, windowStart.Format("2006-01-02"))

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("incrementing publish counter: %w", err)
	}
	if count == 1 {
		// First publish of the window owns the expiry
		if err := l.rdb.ExpireAt(ctx, key, resetAt).Err(); err != nil {
			return false, time.Time{}, fmt.Errorf("setting counter expiry: %w", err)
		}
	}

	if count > int64(l.limit) {
		// Undo the speculative increment so rescheduled attempts don't
		// inflate the counter.
		_ = l.rdb.Decr(ctx, key).Err()
		return false, resetAt, nil
	}
	return true, resetAt, nil
}
