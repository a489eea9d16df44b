package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/internal/config"
)

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.RateLimitConfig{RPS: 2, Burst: 3, CleanupInterval: 60, MaxAge: 120})
	assert.Equal(t, 2.0, cfg.RPS)
	assert.Equal(t, 3, cfg.Burst)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 2*time.Minute, cfg.MaxAge)

	assert.Equal(t, DefaultConfig(), FromSettings(config.RateLimitConfig{}))
}

func TestLimiter_AllowPerKey(t *testing.T) {
	l := NewLimiter(Config{RPS: 1, Burst: 2, CleanupInterval: time.Minute, MaxAge: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := l.Allow("a", now)
	assert.True(t, ok)
	ok, _ = l.Allow("a", now)
	assert.True(t, ok)
	ok, remaining := l.Allow("a", now)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _ = l.Allow("b", now)
	assert.True(t, ok, "buckets are per key")

	ok, _ = l.Allow("a", now.Add(time.Second))
	assert.True(t, ok, "bucket refills")
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Minute, MaxAge: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l.Allow("old", now)
	l.Allow("fresh", now.Add(50*time.Second))

	assert.Equal(t, 1, l.Sweep(now.Add(90*time.Second)))
	assert.Equal(t, 1, l.Len())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Minute, MaxAge: time.Minute})

	router := gin.New()
	router.Use(l.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}
