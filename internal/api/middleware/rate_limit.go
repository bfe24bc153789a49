package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"poll-service/internal/models"

	"github.com/gin-gonic/gin"
)

// RateLimiter reports whether one more request under key fits the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// RateLimitIP limits requests per client IP and path. A failing limiter lets requests through.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.FullPath())

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			slog.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Error: fmt.Sprintf("too many requests, limit %d per %v", requests, window),
			})
			return
		}

		c.Next()
	}
}
