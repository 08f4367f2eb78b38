package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiterAllowsUpToMax(t *testing.T) {
	limiter := NewLoginRateLimiter(5, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		allowed, _ := limiter.allow("1.2.3.4", now)
		assert.True(t, allowed)
	}

	allowed, retryAfter := limiter.allow("1.2.3.4", now)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestLoginRateLimiterRecoversAfterWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(5, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		limiter.allow("1.2.3.4", now)
	}

	allowed, _ := limiter.allow("1.2.3.4", now.Add(61*time.Second))
	assert.True(t, allowed)
}

func TestLoginRateLimiterIsPerAddress(t *testing.T) {
	limiter := NewLoginRateLimiter(5, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		limiter.allow("1.2.3.4", now)
	}

	allowed, _ := limiter.allow("5.6.7.8", now)
	assert.True(t, allowed)
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	limiter := NewLoginRateLimiter(2, time.Minute)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := limiter.Middleware(next)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "1.2.3.4")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
