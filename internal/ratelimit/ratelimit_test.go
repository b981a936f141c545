package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"odoomcp/internal/config"
	"odoomcp/internal/odoo"
)

func newTestLimiter(t *testing.T, rpm, maxWaitSeconds int) *Limiter {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RequestsPerMinute = rpm
	cfg.RateLimitMaxWaitSeconds = maxWaitSeconds
	l := New(&cfg)
	t.Cleanup(l.Stop)
	return l
}

// bareLimiter builds a limiter with an arbitrary refill rate and burst,
// bypassing the rpm-derived shape, so waiting behavior is testable without
// multi-second sleeps. No janitor is started.
func bareLimiter(perSecond float64, burst int, maxWait time.Duration) *Limiter {
	return &Limiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		maxWait:   maxWait,
		buckets:   make(map[string]*bucket),
	}
}

func TestLimiter_DisabledAlwaysAllows(t *testing.T) {
	l := newTestLimiter(t, 0, 0)

	for i := 0; i < 100; i++ {
		ok, retryAfter := l.Allow("client")
		assert.True(t, ok)
		assert.Zero(t, retryAfter)
	}
	assert.NoError(t, l.Wait(context.Background(), "client"))
	assert.Equal(t, 0, l.size(), "disabled limiter must not grow buckets")
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := newTestLimiter(t, 5, 0)

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("client")
		require.True(t, ok, "request %d within capacity", i)
	}

	ok, retryAfter := l.Allow("client")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 2, 0)

	l.Allow("a")
	l.Allow("a")
	ok, _ := l.Allow("a")
	require.False(t, ok, "a is exhausted")

	ok, _ = l.Allow("b")
	assert.True(t, ok, "b has its own bucket")
	assert.Equal(t, 2, l.size())
}

func TestLimiter_WaitWithoutBoundFailsImmediately(t *testing.T) {
	l := newTestLimiter(t, 1, 0)

	require.NoError(t, l.Wait(context.Background(), "client"))

	start := time.Now()
	err := l.Wait(context.Background(), "client")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "zero bound must not suspend")

	ge := odoo.AsGatewayError(err)
	assert.Equal(t, odoo.KindRateLimit, ge.Kind)
	assert.Equal(t, odoo.CodeRateLimit, ge.Code())
	assert.Contains(t, ge.Details, "retry_after_seconds")
}

func TestLimiter_WaitSuspendsUntilToken(t *testing.T) {
	l := bareLimiter(50, 1, time.Second) // token every 20ms

	ok, _ := l.Allow("client")
	require.True(t, ok)

	start := time.Now()
	err := l.Wait(context.Background(), "client")
	require.NoError(t, err, "bounded wait should obtain the next token")
	assert.Greater(t, time.Since(start), 5*time.Millisecond, "token was not immediately available")
}

func TestLimiter_WaitBoundExhausted(t *testing.T) {
	l := bareLimiter(0.1, 1, 50*time.Millisecond) // token every 10s

	ok, _ := l.Allow("client")
	require.True(t, ok)

	err := l.Wait(context.Background(), "client")
	require.Error(t, err)
	assert.Equal(t, odoo.KindRateLimit, odoo.AsGatewayError(err).Kind)
}

func TestLimiter_WaitHonorsCallerCancellation(t *testing.T) {
	l := bareLimiter(0.1, 1, 10*time.Second)

	ok, _ := l.Allow("client")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := l.Wait(ctx, "client")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must cut the wait short")
	assert.Equal(t, odoo.KindRateLimit, odoo.AsGatewayError(err).Kind)
}

func TestLimiter_EvictIdle(t *testing.T) {
	l := newTestLimiter(t, 10, 0)

	l.Allow("stale")
	l.Allow("fresh")
	require.Equal(t, 2, l.size())

	l.mu.Lock()
	l.buckets["stale"].lastSeen = time.Now().Add(-idleGrace - time.Minute)
	l.mu.Unlock()

	assert.Equal(t, 1, l.evictIdle(time.Now()))
	assert.Equal(t, 1, l.size())

	ok, _ := l.Allow("stale")
	assert.True(t, ok, "evicted key starts over with a full bucket")
}
