package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	clientSweepInterval = 5 * time.Minute
	clientIdleCutoff    = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a per-client token bucket keyed by IP. Timer polling
// clients are chatty, so the burst should comfortably exceed one client's
// poll cadence. Buckets idle past the cutoff are swept periodically.
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	var buckets sync.Map

	go func() {
		ticker := time.NewTicker(clientSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			stale := time.Now().Add(-clientIdleCutoff)
			buckets.Range(func(key, v interface{}) bool {
				if v.(*clientBucket).lastSeen.Before(stale) {
					buckets.Delete(key)
				}
				return true
			})
		}
	}()

	bucketFor := func(ip string) *rate.Limiter {
		v, _ := buckets.LoadOrStore(ip, &clientBucket{limiter: rate.NewLimiter(limit, burst)})
		b := v.(*clientBucket)
		b.lastSeen = time.Now()
		return b.limiter
	}

	return func(c *gin.Context) {
		if !bucketFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
