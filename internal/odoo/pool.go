package odoo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"odoomcp/internal/config"
	"odoomcp/pkg/logging"

	"github.com/cenkalti/backoff/v5"
)

// PoolStats is the snapshot reported by the /health endpoint.
type PoolStats struct {
	Size  int `json:"size"`
	Idle  int `json:"idle"`
	InUse int `json:"in_use"`
}

// Pool is a bounded pool of authenticated RpcHandlers.
//
// A slot token (buffered channel send) bounds concurrent checkouts; handlers
// are constructed lazily under a held token, so at most Size handlers exist.
// Construction retries with exponential backoff and authenticates with the
// global credentials before the handler becomes visible to any caller.
type Pool struct {
	protocol       string
	opts           ClientOptions
	size           int
	acquireTimeout time.Duration
	retryBudget    int
	baseDelay      time.Duration
	healthInterval time.Duration

	slots chan struct{}

	// newHandler is the construction seam; tests substitute a fake.
	newHandler func() (RpcHandler, error)

	mu     sync.Mutex
	idle   []*PooledConn
	total  int
	inUse  int
	closed bool

	globalUID atomic.Int64
	nextID    atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PooledConn wraps one handler checked out of the pool.
type PooledConn struct {
	Handler RpcHandler

	pool     *Pool
	id       int64
	lastUsed time.Time
	failures int
	released atomic.Bool
}

// NewPool builds the pool from the gateway config. No connections are
// opened until the first Acquire (or Warm).
func NewPool(cfg *config.GatewayConfig) *Pool {
	p := &Pool{
		protocol:       cfg.Protocol,
		opts:           OptionsFromConfig(cfg),
		size:           cfg.PoolSize,
		acquireTimeout: cfg.Timeout(),
		retryBudget:    cfg.RetryCount,
		baseDelay:      cfg.BaseRetryDelay(),
		healthInterval: cfg.ConnectionHealthInterval(),
		slots:          make(chan struct{}, cfg.PoolSize),
		stopCh:         make(chan struct{}),
	}
	p.newHandler = func() (RpcHandler, error) {
		return NewHandler(p.protocol, p.opts)
	}

	if p.healthInterval > 0 {
		p.wg.Add(1)
		go p.healthLoop()
	}
	return p
}

// Acquire returns a healthy handler, waiting up to the configured timeout
// for a free slot. Every successful Acquire must be matched by exactly one
// Release on the returned connection.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	parent := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	select {
	case <-p.stopCh:
		return nil, NewPoolConnectionError("connection pool is closed")
	case <-ctx.Done():
		// The caller abandoning the request is not pool exhaustion.
		if err := parent.Err(); err != nil {
			return nil, NewPoolConnectionError("connection acquire cancelled").WithCause(err)
		}
		return nil, NewPoolTimeoutError("no connection available within %s", p.acquireTimeout)
	case p.slots <- struct{}{}:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, NewPoolConnectionError("connection pool is closed")
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.mu.Unlock()
		conn.released.Store(false)
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.construct(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.total++
	p.inUse++
	p.mu.Unlock()
	return conn, nil
}

// construct builds and authenticates one handler, retrying transient
// failures with exponential backoff. Config and credential errors are
// permanent; retrying cannot fix them.
func (p *Pool) construct(ctx context.Context) (*PooledConn, error) {
	operation := func() (RpcHandler, error) {
		h, err := p.newHandler()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		uid, err := h.Authenticate(ctx, p.opts.Database, p.opts.Username, p.opts.APIKey)
		if err != nil {
			h.Close()
			var ge *GatewayError
			if errors.As(err, &ge) && ge.Kind == KindAuth {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		p.globalUID.CompareAndSwap(0, uid)
		return h, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.baseDelay

	handler, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(p.retryBudget+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logging.Debug("Pool", "connection attempt failed, retrying in %v: %v", wait, err)
		}),
	)
	if err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) && (ge.Kind == KindAuth || ge.Kind == KindConfig) {
			return nil, ge
		}
		return nil, NewPoolConnectionError("cannot establish odoo connection").WithCause(err)
	}

	conn := &PooledConn{
		Handler:  handler,
		pool:     p,
		id:       p.nextID.Add(1),
		lastUsed: time.Now(),
	}
	logging.Debug("Pool", "connection %d established", conn.id)
	return conn, nil
}

// Release returns the connection to the pool. ok=false counts a failure;
// a connection whose failures exceed the retry budget is destroyed and its
// slot replaced lazily. Safe to call more than once; extra calls are no-ops.
func (c *PooledConn) Release(ok bool) {
	if c.released.Swap(true) {
		return
	}
	p := c.pool

	destroy := false
	p.mu.Lock()
	p.inUse--
	if !ok {
		c.failures++
	}
	if c.failures > p.retryBudget || p.closed {
		destroy = true
		p.total--
	} else {
		c.lastUsed = time.Now()
		p.idle = append(p.idle, c)
	}
	p.mu.Unlock()

	if destroy {
		c.Handler.Close()
		logging.Debug("Pool", "connection %d destroyed (failures=%d)", c.id, c.failures)
	}
	<-p.slots
}

// Warm establishes one connection up front so startup fails fast on a bad
// Odoo URL or credentials.
func (p *Pool) Warm(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release(true)
	return nil
}

// GlobalUID returns the uid obtained with the configured credentials, or 0
// before the first successful authentication.
func (p *Pool) GlobalUID() int64 {
	return p.globalUID.Load()
}

// Stats returns the snapshot used by /health.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Size: p.size, Idle: len(p.idle), InUse: p.inUse}
}

// healthLoop probes idle connections that have not been used within the
// health interval and destroys the ones that fail.
func (p *Pool) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probeStale()
		}
	}
}

// probeStale claims a slot token per probed connection so the pool bound
// holds while a probe is in flight; when no token is free the probe is
// skipped until the next tick.
func (p *Pool) probeStale() {
	for {
		select {
		case p.slots <- struct{}{}:
		default:
			return
		}

		p.mu.Lock()
		var stale *PooledConn
		for i := len(p.idle) - 1; i >= 0; i-- {
			if time.Since(p.idle[i].lastUsed) >= p.healthInterval {
				stale = p.idle[i]
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				break
			}
		}
		p.mu.Unlock()

		if stale == nil {
			<-p.slots
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := VersionProbe(ctx, stale.Handler)
		cancel()

		p.mu.Lock()
		if err != nil || p.closed {
			p.total--
			p.mu.Unlock()
			stale.Handler.Close()
			if err != nil {
				logging.Warn("Pool", "connection %d failed health probe, destroyed: %v", stale.id, err)
			}
		} else {
			stale.lastUsed = time.Now()
			p.idle = append(p.idle, stale)
			p.mu.Unlock()
		}
		<-p.slots
	}
}

// Close stops the health loop and destroys every idle connection. In-use
// connections are destroyed as they are released.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	p.mu.Unlock()

	for _, c := range idle {
		c.Handler.Close()
	}
	logging.Info("Pool", "connection pool closed")
}
