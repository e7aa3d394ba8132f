package middleware

import (
	"net/http"
	"strconv"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/response"
)

// RateLimiter limits requests per client IP. Counters live in Redis so every
// gateway instance shares them.
type RateLimiter struct {
	handler gin.HandlerFunc
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute).
// Redis failures let the request through.
func NewRateLimiter(rdb *redis.Client, scope string, rate int, interval time.Duration) *RateLimiter {
	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: rdb,
		Rate:        interval,
		Limit:       uint(rate),
	})
	limit := strconv.Itoa(rate)

	return &RateLimiter{
		handler: ratelimit.RateLimiter(store, &ratelimit.Options{
			KeyFunc: func(c *gin.Context) string {
				return config.CacheKey.RateLimitKey(scope, c.ClientIP())
			},
			BeforeResponse: func(c *gin.Context, info ratelimit.Info) {
				c.Header("X-RateLimit-Limit", limit)
				c.Header("X-RateLimit-Remaining", strconv.FormatUint(uint64(info.RemainingHits), 10))
			},
			ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("Retry-After", strconv.Itoa(retryAfter(info.ResetTime)))
				response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			},
		}),
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.handler
}

func retryAfter(reset time.Time) int {
	secs := int(time.Until(reset).Seconds()) + 1
	if secs < 1 {
		return 1
	}
	return secs
}
