package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// InMemoryRateLimiter limits requests per key (e.g. client IP) over a
// sliding window.
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	visits map[string][]time.Time
	limit  int
	window time.Duration
}

func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	l := &InMemoryRateLimiter{
		visits: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
	go l.cleanup()
	return l
}

func (l *InMemoryRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	recent := l.prune(key, time.Now().Add(-l.window))
	if len(recent) >= l.limit {
		return false
	}
	l.visits[key] = append(recent, time.Now())
	return true
}

// prune drops entries older than cutoff; caller holds the lock.
func (l *InMemoryRateLimiter) prune(key string, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range l.visits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (l *InMemoryRateLimiter) cleanup() {
	for range time.Tick(time.Minute) {
		l.mu.Lock()
		cutoff := time.Now().Add(-l.window)
		for key := range l.visits {
			if recent := l.prune(key, cutoff); len(recent) == 0 {
				delete(l.visits, key)
			} else {
				l.visits[key] = recent
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit limits by client IP.
func RateLimit(limiter *InMemoryRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
