package ai

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"recipe-vault-backend/internal/logger"
)

// ErrQuotaExceeded means today's shared AI call budget is spent.
var ErrQuotaExceeded = errors.New("daily AI quota exceeded")

// QuotaGuard enforces a daily budget on Gemini calls across all
// processes, backed by a shared Redis counter keyed by UTC date.
type QuotaGuard struct {
	rdb   *redis.Client
	limit int
}

// NewQuotaGuard creates a guard. A zero or negative limit disables it.
func NewQuotaGuard(rdb *redis.Client, limit int) *QuotaGuard {
	return &QuotaGuard{rdb: rdb, limit: limit}
}

// Reserve consumes one call from today's budget. Redis being down
// fails open; refusing all AI work because the counter is unreachable
// hurts more than briefly over-spending.
func (q *QuotaGuard) Reserve(ctx context.Context) error {
	if q == nil || q.rdb == nil || q.limit <= 0 {
		return nil
	}

	key := "ai_quota:" + time.Now().UTC().Format("2006-01-02")

	count, err := q.rdb.Incr(ctx, key).Result()
	if err != nil {
		logger.Warn("AI quota check failed, allowing request", "error", err.Error())
		return nil
	}
	if count == 1 {
		// Keep yesterday's key around briefly for inspection
		q.rdb.Expire(ctx, key, 48*time.Hour)
	}

	if count > int64(q.limit) {
		return ErrQuotaExceeded
	}
	return nil
}
