package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/infrastructure/ratelimit"
)

type RateLimitConfig struct {
	Limiter    ratelimit.RateLimiter
	ServiceRPM int
	IPRPM      int
}

// RateLimit applies a sliding-window limit keyed by the authenticated service
// when one is set, otherwise by client IP. Limiter failures let traffic
// through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, limit := determineKeyAndLimit(c, cfg)

		result, err := cfg.Limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			requestID, _ := c.Get(ContextKeyRequestID)
			slog.Error("rate limit check failed",
				"error", err,
				"key", key,
				"request_id", requestID,
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}

func determineKeyAndLimit(c *gin.Context, cfg RateLimitConfig) (string, int) {
	if serviceName, exists := c.Get(ContextKeyServiceName); exists {
		if name, ok := serviceName.(string); ok && name != "" {
			return fmt.Sprintf("ratelimit:service:%s", name), cfg.ServiceRPM
		}
	}
	return fmt.Sprintf("ratelimit:ip:%s", c.ClientIP()), cfg.IPRPM
}
