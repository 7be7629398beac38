package ratelimiter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		now := time.Now()

		allowed, retryAfter := rl.Allow(clientIP, now)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))

		if !allowed {
			retrySeconds := int((retryAfter + time.Second - 1) / time.Second)

			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retrySeconds))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Rate limit exceeded.",
					"details": "Maximum " + strconv.Itoa(rl.perMinute) + " requests per minute allowed.",
				},
				"timestamp": now.UTC().Format(time.RFC3339),
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(clientIP, now)))
		c.Next()
	}
}
