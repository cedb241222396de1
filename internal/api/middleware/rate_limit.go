package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskplanner/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter decides whether the request identified by key fits in the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware is a no-op when built without a limiter.
type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *slog.Logger
}

func NewRateLimitMiddleware(limiter RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// RateLimit limits authenticated requests per user and path. Must run after
// RequireAuth.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			response.Fail(c, http.StatusUnauthorized, response.CodeUnauthenticated, "")
			return
		}
		rm.check(c, fmt.Sprintf("rate_limit:%s:%s", userID, c.FullPath()), requests, window)
	}
}

// RateLimitIP limits requests per client address and path. Used on the
// WebSocket handshake, which is authenticated later by the handler itself.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.check(c, fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.FullPath()), requests, window)
	}
}

func (rm *RateLimitMiddleware) check(c *gin.Context, key string, requests int, window time.Duration) {
	if rm.limiter == nil {
		c.Next()
		return
	}

	allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
	if err != nil {
		// Limiter errors let the request through.
		rm.logger.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}
	if !allowed {
		response.Fail(c, http.StatusTooManyRequests, response.CodeTooManyRequests,
			fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window))
		return
	}
	c.Next()
}
