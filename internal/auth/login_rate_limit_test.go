package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limitedHandler(limiter *LoginRateLimiter) http.Handler {
	return limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func loginFrom(h http.Handler, remoteAddr, forwarded string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginRateLimiter_BlocksAfterMaxHits(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLoginRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }
	h := limitedHandler(limiter)

	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.1:1000", "").Code)
	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.1:1000", "").Code)

	blocked := loginFrom(h, "10.0.0.1:1000", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.2:1000", "").Code)

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.1:1000", "").Code)
}

func TestLoginRateLimiter_NewConnectionsShareWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)
	h := limitedHandler(limiter)

	limited := 0
	for i := 0; i < 20; i++ {
		if loginFrom(h, fmt.Sprintf("203.0.113.7:%d", 40000+i), "").Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 17, limited)
}

func TestLoginRateLimiter_IgnoresForwardedHeaderByDefault(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	h := limitedHandler(limiter)

	assert.Equal(t, http.StatusOK, loginFrom(h, "203.0.113.7:40000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "203.0.113.7:40001", "198.51.100.2").Code)
}

func TestLoginRateLimiter_TrustedProxyUsesRightMostHop(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute).TrustForwarded(true)
	h := limitedHandler(limiter)

	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.2:5000", "1.1.1.1, 203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "10.0.0.2:5001", "9.9.9.9, 203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, loginFrom(h, "10.0.0.2:5002", "203.0.113.8").Code)
}

func TestNewLoginRateLimiter_Defaults(t *testing.T) {
	limiter := NewLoginRateLimiter(0, 0)
	assert.Equal(t, 10, limiter.maxHits)
	assert.Equal(t, time.Minute, limiter.window)
	assert.False(t, limiter.trustForwarded)
}
