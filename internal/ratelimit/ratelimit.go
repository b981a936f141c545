// Package ratelimit applies a per-client token bucket to gateway requests.
//
// Each client key (session id, remote identity, or a shared fallback) owns a
// bucket holding requests_per_minute tokens that refill at capacity/60 tokens
// per second. Buckets that sit idle past a grace window are evicted by a
// background janitor.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"odoomcp/internal/config"
	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

const (
	// idleGrace is how long an untouched bucket survives before the
	// janitor drops it.
	idleGrace = 10 * time.Minute

	// janitorInterval is how often idle buckets are collected.
	janitorInterval = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out request tokens per client key.
//
// A zero or negative requests-per-minute budget disables limiting entirely;
// every call is then allowed without touching any bucket. Callers MUST call
// Stop when done to release the janitor goroutine.
type Limiter struct {
	perSecond rate.Limit
	burst     int
	maxWait   time.Duration
	disabled  bool

	mu      sync.Mutex
	buckets map[string]*bucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a limiter from the gateway configuration and starts its
// janitor.
func New(cfg *config.GatewayConfig) *Limiter {
	l := &Limiter{
		maxWait:  cfg.RateLimitMaxWait(),
		buckets:  make(map[string]*bucket),
		stopCh:   make(chan struct{}),
		disabled: cfg.RequestsPerMinute <= 0,
	}
	if !l.disabled {
		l.perSecond = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		l.burst = cfg.RequestsPerMinute
	}
	go l.janitor()
	return l
}

// Allow reports whether key may issue a request right now. When the bucket is
// empty it returns false together with the time until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.disabled {
		return true, 0
	}

	b := l.bucket(key)
	r := b.limiter.Reserve()
	if !r.OK() {
		// Unreachable with burst >= 1; treat as a full-window penalty.
		return false, time.Minute
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// Wait acquires a token for key, suspending up to the configured
// rate_limit_max_wait_seconds. With a zero bound it degenerates to Allow.
// Failure surfaces as a rate-limit error carrying retry_after.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.disabled {
		return nil
	}

	if l.maxWait <= 0 {
		ok, retryAfter := l.Allow(key)
		if !ok {
			logging.Debug("RateLimiter", "Rejected %s (retry in %v)", key, retryAfter)
			return odoo.NewRateLimitError(retryAfter.Seconds())
		}
		return nil
	}

	b := l.bucket(key)
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := b.limiter.Wait(waitCtx); err != nil {
		// Either the bound elapsed or the caller went away; report how
		// long the client should back off before retrying.
		retryAfter := b.limiter.Reserve()
		delay := retryAfter.Delay()
		retryAfter.Cancel()
		logging.Debug("RateLimiter", "Wait for %s exhausted after %v", key, l.maxWait)
		return odoo.NewRateLimitError(delay.Seconds()).WithCause(err)
	}
	return nil
}

// Stop halts the janitor. Buckets become unreachable immediately after.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.evictIdle(time.Now()); n > 0 {
				logging.Debug("RateLimiter", "Evicted %d idle buckets", n)
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleGrace {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
