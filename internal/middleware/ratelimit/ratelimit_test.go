package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rpm int) (*Limiter, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: rpm, Now: clk.now})
	t.Cleanup(rl.Stop)
	return rl, clk
}

func TestAllowWithinWindow(t *testing.T) {
	rl, clk := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "other clients have their own window")

	clk.advance(30 * time.Second)
	assert.False(t, rl.Allow("1.2.3.4"), "steady traffic does not reset the window")
	assert.Equal(t, 30*time.Second, rl.RetryAfter("1.2.3.4"))

	clk.advance(30 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))

	m := rl.Metrics()
	assert.Equal(t, int64(2), m.Hits)
	assert.Equal(t, 2, m.Clients)
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clk := newTestLimiter(t, 10)
	rl.Allow("a")
	clk.advance(5 * time.Minute)
	rl.Allow("b")
	clk.advance(6 * time.Minute)

	assert.Equal(t, 1, rl.cleanupStaleEntries())
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestDefaultsApplied(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	assert.Equal(t, 60, rl.requestsPerMinute)
	assert.Equal(t, 5*time.Minute, rl.cleanupInterval)
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "client" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "61", rr.Header().Get("Retry-After"))
}

func TestStopTerminatesCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
