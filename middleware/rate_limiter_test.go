package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:5001", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:5002", ""))

	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, hit("10.0.0.2:5000", ""))

	// behind a proxy the first forwarded address is the client
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:5003", "203.0.113.7, 10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:5004", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:5005", "203.0.113.7"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(5, 10)
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-10 * time.Minute)
	rl.mu.Unlock()

	rl.evictIdle(3 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestRateLimiter_CleanupStops(t *testing.T) {
	rl := NewRateLimiter(5, 10)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		rl.CleanupVisitors(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CleanupVisitors did not return after stop")
	}
}
