package odoo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"odoomcp/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC is a scriptable RpcHandler for pool tests.
type fakeRPC struct {
	mu         sync.Mutex
	authErr    error
	callErr    error
	authCalls  int
	closeCalls int
}

func (f *fakeRPC) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return 0, f.authErr
	}
	return 2, nil
}

func (f *fakeRPC) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.callErr
}

func (f *fakeRPC) Call(ctx context.Context, service, method string, args []interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]interface{}{"server_version": "17.0"}, f.callErr
}

func (f *fakeRPC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func poolConfig(size int) *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.OdooURL = "http://odoo.test"
	cfg.Database = "testdb"
	cfg.Username = "admin"
	cfg.APIKey = "secret"
	cfg.PoolSize = size
	cfg.RetryCount = 2
	cfg.ConnectionHealthIntervalSeconds = 0 // no background probing in tests
	return &cfg
}

func newTestPool(t *testing.T, size int, factory func() (RpcHandler, error)) *Pool {
	t.Helper()
	p := NewPool(poolConfig(size))
	p.newHandler = factory
	p.baseDelay = time.Millisecond
	t.Cleanup(p.Close)
	return p
}

func TestPool_AcquireRelease(t *testing.T) {
	p := newTestPool(t, 2, func() (RpcHandler, error) { return &fakeRPC{}, nil })

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PoolStats{Size: 2, Idle: 0, InUse: 1}, p.Stats())

	conn.Release(true)
	assert.Equal(t, PoolStats{Size: 2, Idle: 1, InUse: 0}, p.Stats())

	// The idle connection is reused, not rebuilt.
	conn2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, conn2)
	conn2.Release(true)
}

func TestPool_GlobalUID(t *testing.T) {
	p := newTestPool(t, 1, func() (RpcHandler, error) { return &fakeRPC{}, nil })
	assert.Zero(t, p.GlobalUID())

	require.NoError(t, p.Warm(context.Background()))
	assert.Equal(t, int64(2), p.GlobalUID())
}

func TestPool_FailureBudgetDestroys(t *testing.T) {
	var handlers []*fakeRPC
	p := newTestPool(t, 1, func() (RpcHandler, error) {
		h := &fakeRPC{}
		handlers = append(handlers, h)
		return h, nil
	})
	p.retryBudget = 1

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(false) // failure 1, within budget -> back to idle
	assert.Equal(t, 1, p.Stats().Idle)

	conn, err = p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(false) // failure 2, over budget -> destroyed
	assert.Equal(t, 0, p.Stats().Idle)
	assert.Equal(t, 1, handlers[0].closeCalls)

	// Next acquire constructs a fresh handler.
	conn, err = p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(true)
	assert.Len(t, handlers, 2)
}

func TestPool_AcquireTimeout(t *testing.T) {
	p := newTestPool(t, 1, func() (RpcHandler, error) { return &fakeRPC{}, nil })
	p.acquireTimeout = 50 * time.Millisecond

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release(true)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindPoolTimeout, AsGatewayError(err).Kind)
	assert.Equal(t, CodeConnection, AsGatewayError(err).Code())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPool_AcquireCancelledIsNotTimeout(t *testing.T) {
	p := newTestPool(t, 1, func() (RpcHandler, error) { return &fakeRPC{}, nil })
	p.acquireTimeout = time.Minute

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release(true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, KindPoolConnection, AsGatewayError(err).Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_AuthFailureIsPermanent(t *testing.T) {
	var attempts atomic.Int64
	p := newTestPool(t, 1, func() (RpcHandler, error) {
		attempts.Add(1)
		return &fakeRPC{authErr: NewAuthError("invalid credentials")}, nil
	})

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAuth, AsGatewayError(err).Kind)
	assert.Equal(t, int64(1), attempts.Load(), "credential failures must not retry")
}

func TestPool_TransientFailureRetries(t *testing.T) {
	var attempts atomic.Int64
	p := newTestPool(t, 1, func() (RpcHandler, error) {
		if attempts.Add(1) < 3 {
			return &fakeRPC{authErr: NewNetworkError("connection refused")}, nil
		}
		return &fakeRPC{}, nil
	})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(true)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestPool_ExhaustedRetriesSurfaceConnectionError(t *testing.T) {
	p := newTestPool(t, 1, func() (RpcHandler, error) {
		return &fakeRPC{authErr: NewNetworkError("connection refused")}, nil
	})
	p.retryBudget = 1

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindPoolConnection, AsGatewayError(err).Kind)
}

func TestPool_ReleaseIdempotent(t *testing.T) {
	p := newTestPool(t, 1, func() (RpcHandler, error) { return &fakeRPC{}, nil })

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(true)
	conn.Release(true) // extra release must not corrupt accounting
	assert.Equal(t, PoolStats{Size: 1, Idle: 1, InUse: 0}, p.Stats())
}

func TestPool_CloseDestroysIdle(t *testing.T) {
	h := &fakeRPC{}
	p := NewPool(poolConfig(1))
	p.newHandler = func() (RpcHandler, error) { return h, nil }
	p.baseDelay = time.Millisecond

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(true)

	p.Close()
	assert.Equal(t, 1, h.closeCalls)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindPoolConnection, AsGatewayError(err).Kind)
}

func TestPool_ProbeStaleDestroysUnhealthy(t *testing.T) {
	healthy := &fakeRPC{}
	p := newTestPool(t, 2, func() (RpcHandler, error) { return healthy, nil })
	p.healthInterval = time.Millisecond

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release(true)
	time.Sleep(5 * time.Millisecond)

	// Healthy probe keeps the connection.
	p.probeStale()
	assert.Equal(t, 1, p.Stats().Idle)

	// Failing probe destroys it.
	healthy.mu.Lock()
	healthy.callErr = NewNetworkError("gone")
	healthy.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	p.probeStale()
	assert.Equal(t, 0, p.Stats().Idle)
	assert.GreaterOrEqual(t, healthy.closeCalls, 1)
}
