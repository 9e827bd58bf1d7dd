package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(2)
	t.Cleanup(l.Close)

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:2222").Code)

	rec := call("10.0.0.1:3333")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Rate limit exceeded. Try again later."}`, rec.Body.String())

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1111").Code)
}

func TestIPRateLimiterEvictsIdleVisitors(t *testing.T) {
	l := NewIPRateLimiter(60)
	t.Cleanup(l.Close)

	now := time.Now()
	l.now = func() time.Time { return now }

	l.limiterFor("10.0.0.1")
	l.limiterFor("10.0.0.2")

	now = now.Add(5 * time.Minute)
	l.limiterFor("10.0.0.2")

	now = now.Add(6 * time.Minute)
	l.evict(visitorTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	assert.NotContains(t, l.visitors, "10.0.0.1")
	assert.Contains(t, l.visitors, "10.0.0.2")
}
