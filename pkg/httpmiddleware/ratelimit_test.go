package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := &rateLimiter{
		cfg:     RateLimitConfig{Max: 2, Window: time.Minute},
		entries: make(map[string]*window),
	}
	now := time.Now()

	remaining, _, ok := rl.allow("a", now)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	remaining, _, ok = rl.allow("a", now)
	require.True(t, ok)
	assert.Equal(t, 0, remaining)

	_, resetAt, ok := rl.allow("a", now)
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	// Independent key gets its own budget.
	_, _, ok = rl.allow("b", now)
	assert.True(t, ok)
}

func TestRateLimiter_WindowRollover(t *testing.T) {
	rl := &rateLimiter{
		cfg:     RateLimitConfig{Max: 1, Window: time.Minute},
		entries: make(map[string]*window),
	}
	now := time.Now()

	_, _, ok := rl.allow("a", now)
	require.True(t, ok)
	_, _, ok = rl.allow("a", now)
	require.False(t, ok)

	_, _, ok = rl.allow("a", now.Add(time.Minute))
	assert.True(t, ok, "budget resets when the window elapses")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := &rateLimiter{
		cfg:     RateLimitConfig{Max: 1, Window: time.Minute},
		entries: make(map[string]*window),
	}
	now := time.Now()

	rl.allow("stale", now)
	rl.allow("fresh", now.Add(90*time.Second))

	rl.cleanup(now.Add(2 * time.Minute))

	assert.NotContains(t, rl.entries, "stale")
	assert.Contains(t, rl.entries, "fresh")
}

func TestRateLimit_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mw := RateLimit(ctx, RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-Client")
		},
	})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("c1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := do("c1")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Reset"))

	other := do("c2")
	assert.Equal(t, http.StatusOK, other.Code, "limits are per client")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(r))

	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(r))
}
