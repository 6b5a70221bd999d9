package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig describes a fixed-window limiter.
type RateLimitConfig struct {
	// Prefix namespaces the counters in Redis.
	Prefix string
	Max    int
	Window time.Duration
	// Key picks the subject being limited. An empty key falls back to the client IP.
	Key     func(c *fiber.Ctx) string
	Message string
}

// RateLimit counts requests per subject in Redis and rejects them once Max is
// exceeded within Window. Without Redis, or when Redis fails, requests pass.
func RateLimit(cache *redis.Client, cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Message == "" {
		cfg.Message = "too many requests, try again later"
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := ""
		if cfg.Key != nil {
			subject = cfg.Key(c)
		}
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:" + cfg.Prefix + ":" + subject

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, cfg.Window)
		}
		if cnt > int64(cfg.Max) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			}
			return fiber.NewError(http.StatusTooManyRequests, cfg.Message)
		}
		return c.Next()
	}
}

// LoginRateLimit limits login attempts per email, or per IP when no email is sent.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return RateLimit(cache, RateLimitConfig{
		Prefix: "login",
		Max:    maxPerMin,
		Window: time.Minute,
		Key: func(c *fiber.Ctx) string {
			var req struct {
				Email string `json:"email"`
			}
			_ = c.BodyParser(&req)
			return strings.ToLower(strings.TrimSpace(req.Email))
		},
		Message: "too many login attempts, try again later",
	})
}

// ReconcileRateLimit throttles manual reconcile triggers per user. Internal
// callers are not limited.
func ReconcileRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	limit := RateLimit(cache, RateLimitConfig{
		Prefix: "reconcile",
		Max:    maxPerMin,
		Window: time.Minute,
		Key: func(c *fiber.Ctx) string {
			userID, _ := c.Locals(localUserID).(string)
			return userID
		},
		Message: "too many reconcile requests, try again later",
	})
	return func(c *fiber.Ctx) error {
		if IsInternal(c) {
			return c.Next()
		}
		return limit(c)
	}
}
