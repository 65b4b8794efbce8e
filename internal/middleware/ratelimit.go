package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"jwt-cookie-ws/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleSweep = 5 * time.Minute

type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastSweep) > limiterIdleSweep {
		l.lastSweep = time.Now()
		// A full bucket means the key has been idle.
		for k, lim := range l.limiters {
			if lim.Tokens() >= float64(l.burst) {
				delete(l.limiters, k)
			}
		}
	}

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// RateLimitByIP allows perMinute requests per client IP, all of them available
// as a burst. perMinute <= 0 disables limiting.
func RateLimitByIP(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := &ipLimiter{
		limiters:  map[string]*rate.Limiter{},
		limit:     rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:     perMinute,
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		lim := l.get(key)
		if lim.Allow() {
			c.Next()
			return
		}

		r := lim.Reserve()
		retryAfter := max(int(r.Delay().Seconds()), 1)
		r.Cancel()

		logging.FromContext(c.Request.Context()).Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("path", c.Request.URL.Path),
			zap.Int("retry_after", retryAfter),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests"})
	}
}
