package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimits configures per-client request budgets; 0 disables a period
type RateLimits struct {
	PerSecond int
	PerDay    int
}

// RateLimitMiddleware limits requests per client IP with Redis counters.
// With a nil client it passes every request through. Redis errors fail open.
func RateLimitMiddleware(rdb *redis.Client, limits RateLimits, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *fiber.Ctx) error {
		if rdb == nil {
			return c.Next()
		}

		ctx := c.UserContext()
		now := time.Now()
		client := c.IP()

		if limits.PerSecond > 0 {
			key := secondKey(client, now)
			count, err := incrWithExpiry(ctx, rdb, key, 2*time.Second)
			if err != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
				return c.Next()
			}
			if count > int64(limits.PerSecond) {
				c.Set("X-RateLimit-Limit-Second", strconv.Itoa(limits.PerSecond))
				c.Set("X-RateLimit-Remaining-Second", "0")
				c.Set("Retry-After", "1")

				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "rate_limit_exceeded",
					"message":     "Too many requests per second",
					"limit_type":  "per_second",
					"limit":       limits.PerSecond,
					"retry_after": 1,
				})
			}
			c.Set("X-RateLimit-Limit-Second", strconv.Itoa(limits.PerSecond))
		}

		if limits.PerDay > 0 {
			key := dayKey(client, now)
			// 25 hours to cover timezone differences
			count, err := incrWithExpiry(ctx, rdb, key, 25*time.Hour)
			if err != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
				return c.Next()
			}

			c.Set("X-RateLimit-Limit-Day", strconv.Itoa(limits.PerDay))
			if count > int64(limits.PerDay) {
				tomorrow := now.AddDate(0, 0, 1)
				midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
				retryAfter := int64(midnight.Sub(now).Seconds())

				c.Set("X-RateLimit-Remaining-Day", "0")
				c.Set("X-RateLimit-Reset-Day", strconv.FormatInt(midnight.Unix(), 10))
				c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "daily_quota_exceeded",
					"message":     "Daily quota exceeded",
					"limit_type":  "per_day",
					"limit":       limits.PerDay,
					"used":        count,
					"retry_after": retryAfter,
					"reset_at":    midnight.Format(time.RFC3339),
				})
			}
			c.Set("X-RateLimit-Remaining-Day", strconv.FormatInt(int64(limits.PerDay)-count, 10))
		}

		return c.Next()
	}
}

func secondKey(client string, now time.Time) string {
	return fmt.Sprintf("rl:ip:%s:second:%d", client, now.Unix())
}

func dayKey(client string, now time.Time) string {
	return fmt.Sprintf("rl:ip:%s:day:%s", client, now.Format("2006-01-02"))
}

func incrWithExpiry(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (int64, error) {
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
