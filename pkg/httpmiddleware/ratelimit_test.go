package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/orders", nil)
	req.RemoteAddr = addr
	return req
}

func newFrozenLimiter(cfg RateLimitConfig) (*RateLimiter, *time.Time) {
	l := NewRateLimiter(cfg)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	l, _ := newFrozenLimiter(RateLimitConfig{RPS: 1, Burst: 3})
	h := l.Middleware()(okHandler())

	for i := range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestFrom("10.0.0.1:1234"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"error":"RateLimited","message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_Refills(t *testing.T) {
	l, now := newFrozenLimiter(RateLimitConfig{RPS: 2, Burst: 1})
	h := l.Middleware()(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	*now = now.Add(500 * time.Millisecond)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_RejectedRequestsDoNotDrainBucket(t *testing.T) {
	l, now := newFrozenLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	h := l.Middleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))
	for range 10 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
		require.Equal(t, http.StatusTooManyRequests, w.Code)
	}

	*now = now.Add(time.Second)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PerClient(t *testing.T) {
	l, _ := newFrozenLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	h := l.Middleware()(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.2:1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PreflightIsFree(t *testing.T) {
	l, _ := newFrozenLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	h := l.Middleware()(okHandler())

	for range 5 {
		req := requestFrom("10.0.0.1:1")
		req.Method = http.MethodOptions
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_Evict(t *testing.T) {
	l, now := newFrozenLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	h := l.Middleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))
	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.2:1"))

	*now = now.Add(30 * time.Second)
	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.2:1"))

	*now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.evict())
	assert.Len(t, l.buckets, 1)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.9:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.9:1", "198.51.100.7"},
		{"peer", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"peer without port", nil, "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
