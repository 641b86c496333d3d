package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rdb *redis.Client) *fiber.App {
	app := fiber.New()
	app.Use(RateLimitMiddleware(rdb, RateLimits{PerSecond: 1, PerDay: 10}, nil))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	app := newApp(nil)

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit-Second"))
	}
}

func TestRateLimitFailsOpenOnRedisError(t *testing.T) {
	// Nothing listens on port 1; every command errors
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	resp, err := newApp(rdb).Test(httptest.NewRequest("GET", "/ping", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitKeys(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "rl:ip:10.0.0.1:second:1714557600", secondKey("10.0.0.1", now))
	assert.Equal(t, "rl:ip:10.0.0.1:day:2024-05-01", dayKey("10.0.0.1", now))
}
