package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/kmc/ehr-api/internal/handler"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter keeps one token bucket per client IP. Idle buckets expire
// after ten minutes.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config:   config,
		limiters: cache.New(10*time.Minute, time.Minute),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// another request created it first
		if existing, ok := rl.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
