package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowAndDeny(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, setupTestLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	// Другой ключ имеет собственный bucket
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_RefillAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond, setupTestLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware_TooManyRequests(t *testing.T) {
	wrapped := RateLimitMiddleware(1, time.Minute, setupTestLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/sync/batch", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", getClientIP(req))

	req.Header.Set("X-Real-IP", "192.168.1.5")
	assert.Equal(t, "192.168.1.5", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}
