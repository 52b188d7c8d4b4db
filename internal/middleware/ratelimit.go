package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"songshare/internal/pkg/response"
)

const (
	limiterTableSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// RateLimit is a per-client-IP token bucket. Idle clients fall out of the
// table after limiterIdleTTL. rps <= 0 disables the limit.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := expirable.NewLRU[string, *rate.Limiter](limiterTableSize, nil, limiterIdleTTL)
	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters.Get(ip)
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
		}
		// re-adding refreshes the idle TTL
		limiters.Add(ip, l)
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			response.AbortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
			return
		}
		c.Next()
	}
}
