package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newLimitedRouter(limit rate.Limit, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(limit, burst))
	r.GET("/poll", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"timer": gin.H{"status": "active"}})
	})
	return r
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := newLimitedRouter(1, 3)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/poll", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	// Burst of 3 passes, the rest of the tight loop is refused.
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusOK, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
	assert.Equal(t, http.StatusTooManyRequests, codes[4])
}

func TestRateLimit_BucketsArePerClient(t *testing.T) {
	r := newLimitedRouter(1, 1)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	r.ServeHTTP(first, req)

	exhausted := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/poll", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	r.ServeHTTP(exhausted, req)

	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/poll", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	r.ServeHTTP(other, req)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, exhausted.Code)
	// A different client draws from its own bucket.
	assert.Equal(t, http.StatusOK, other.Code)
}
