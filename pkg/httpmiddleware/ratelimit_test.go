package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWindowLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewWindowLimiter(2, time.Minute)
	base := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)

	d, err := l.Allow(ctx, "a", base)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), d.ResetAt)

	d, _ = l.Allow(ctx, "a", base.Add(time.Second))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = l.Allow(ctx, "a", base.Add(2*time.Second))
	assert.False(t, d.Allowed)

	d, _ = l.Allow(ctx, "b", base)
	assert.True(t, d.Allowed, "keys are independent")

	t.Run("PreviousWindowWeighted", func(t *testing.T) {
		// Halfway through the next window the previous two requests count as one.
		mid := time.Date(2026, 1, 1, 12, 1, 30, 0, time.UTC)
		d, _ := l.Allow(ctx, "a", mid)
		assert.True(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)

		d, _ = l.Allow(ctx, "a", mid)
		assert.False(t, d.Allowed)
	})
	t.Run("StaleWindowsReset", func(t *testing.T) {
		d, _ := l.Allow(ctx, "a", time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC))
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Remaining)
	})
	t.Run("Evict", func(t *testing.T) {
		l.Evict(time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC))
		assert.Empty(t, l.buckets)
	})
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewWindowLimiter(5, time.Hour)})(okHandler())

	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewWindowLimiter(2, time.Hour)})(okHandler())

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_ClientIP(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewWindowLimiter(1, time.Hour)})(okHandler())

	do := func(addr, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5678", ""))

	assert.Equal(t, http.StatusOK, do("192.168.1.1:4444", "203.0.113.50, 70.41.3.18"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.168.1.2:5555", "203.0.113.50, 70.41.3.18"),
		"first forwarded hop is the key")
}

func TestRateLimit_HeaderKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Limiter: NewWindowLimiter(1, time.Hour),
		KeyFunc: HeaderKeyFunc("api_key"),
	})(okHandler())

	do := func(key, addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if key != "" {
			req.Header.Set("api_key", key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("key-a", "10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, do("key-a", "10.0.0.2:1"), "same key from another IP shares the budget")
	assert.Equal(t, http.StatusOK, do("key-b", "10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, do("", "10.0.0.1:1"), "anonymous requests are keyed by IP")
	assert.Equal(t, http.StatusTooManyRequests, do("", "10.0.0.1:2"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("api_key", "secret-key")
	assert.NotContains(t, HeaderKeyFunc("api_key")(req), "secret-key")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimit_LimiterError(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: failingLimiter{}})(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
