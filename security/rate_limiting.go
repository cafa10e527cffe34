package security

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// ScanRateLimit bounds how fast a single device can hit the lookup and
// mark-used endpoints. A fixed one-minute window per client IP is
// plenty: a human operator scans a handful of tickets per minute, and
// a reconnecting device draining its queue stays well under the cap.
func (r *RateLimiter) ScanRateLimit(maxPerMinute int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			key := fmt.Sprintf("ratelimit:scan:%s", ip)

			count, err := r.redis.Incr(c.Request().Context(), key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(c.Request().Context(), key, time.Minute)
				}
				if count > maxPerMinute {
					return c.JSON(429, map[string]string{
						"error": "Rate limit exceeded. Please try again later.",
					})
				}
			}
			// A rate-limiter fault never blocks a check-in.

			return next(c)
		}
	}
}
