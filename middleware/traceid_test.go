package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTracedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())
	r.GET("/snapshot", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	return r
}

func TestTraceID_MintsWhenAbsent(t *testing.T) {
	r := newTracedRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	r.ServeHTTP(w, req)

	id := w.Header().Get(TraceIDHeader)
	assert.NotEmpty(t, id)
	// The handler sees the same id the client got back.
	assert.Equal(t, id, w.Body.String())
}

func TestTraceID_KeepsClientProvidedID(t *testing.T) {
	r := newTracedRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	req.Header.Set(TraceIDHeader, "pomodoro-trace-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "pomodoro-trace-1", w.Header().Get(TraceIDHeader))
	assert.Equal(t, "pomodoro-trace-1", w.Body.String())
}

func TestGetTraceID_UntracedContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetTraceID(c))
}
