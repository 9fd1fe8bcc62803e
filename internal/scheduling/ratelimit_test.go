package scheduling

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/booking/pkg/config"
	"github.com/medrex/booking/pkg/types"
)

func TestRateLimiter_AllowPerKey(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 1, BurstSize: 2})

	assert.True(t, limiter.Allow("user:p1"))
	assert.True(t, limiter.Allow("user:p1"))
	assert.False(t, limiter.Allow("user:p1"))
	assert.True(t, limiter.Allow("user:p2"), "keys are limited independently")
}

func TestRateLimiter_UnlimitedWhenRateUnset(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("ip:127.0.0.1"))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 1, BurstSize: 1})

	var limited error
	handler := limiter.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		limited = err
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method string, actor *types.Actor) int {
		r := httptest.NewRequest(method, "/api/v1/bookings", nil)
		if actor != nil {
			r = r.WithContext(ContextWithActor(r.Context(), *actor))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	p1 := patient("p1")
	assert.Equal(t, http.StatusOK, do(http.MethodPost, &p1))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, &p1))
	assert.ErrorIs(t, limited, types.ErrRateLimited)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, &p1), "reads are not limited")

	p2 := patient("p2")
	assert.Equal(t, http.StatusOK, do(http.MethodPost, &p2))

	assert.Equal(t, http.StatusOK, do(http.MethodPost, nil))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, nil), "anonymous callers share their IP bucket")
}

func TestRateLimiter_CleanupEvictsIdleKeys(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 5})
	clock := testNow
	limiter.now = func() time.Time { return clock }

	assert.True(t, limiter.Allow("user:idle"))
	clock = clock.Add(DefaultLimiterIdle - time.Minute)
	assert.True(t, limiter.Allow("user:busy"))

	assert.Equal(t, 0, limiter.cleanup(), "nothing idle yet")

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, limiter.cleanup())

	limiter.mu.Lock()
	_, idleKept := limiter.limiters["user:idle"]
	_, busyKept := limiter.limiters["user:busy"]
	limiter.mu.Unlock()
	assert.False(t, idleKept)
	assert.True(t, busyKept)
}

func TestRateLimiter_IdleCoversRefill(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 1, BurstSize: 30})
	assert.InDelta(t, float64(30*time.Minute), float64(limiter.idle), float64(time.Millisecond),
		"a bucket is kept until it could have refilled")
}

func TestRateLimiter_CleanupLoop(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 5})
	var mu sync.Mutex
	clock := testNow
	limiter.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	assert.True(t, limiter.Allow("ip:10.0.0.1"))
	mu.Lock()
	clock = clock.Add(time.Hour)
	mu.Unlock()

	limiter.StartCleanup(5 * time.Millisecond)
	limiter.StartCleanup(5 * time.Millisecond)
	defer limiter.StopCleanup()

	require.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.limiters) == 0
	}, time.Second, 5*time.Millisecond)

	limiter.StopCleanup()
	limiter.StopCleanup()
}
