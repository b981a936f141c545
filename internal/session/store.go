// Package session keeps authenticated gateway sessions.
//
// A session binds an opaque, cryptographically random id to an Odoo uid for
// the configured database. Sessions authorize the gateway to execute calls on
// the client's behalf; on the Odoo wire the gateway's own service credentials
// are used unless a request overrides them explicitly.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"odoomcp/internal/config"
	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// minSweepInterval bounds how often the expiry sweeper may run.
// Prevents busy-loops when the session TTL is very short.
const minSweepInterval = time.Second

// Authenticator verifies Odoo credentials and returns the authenticated uid.
// The store never talks to Odoo itself; the gateway wires this to a pooled
// connection.
type Authenticator func(ctx context.Context, username, secret string) (int64, error)

// Session is one authenticated client session.
type Session struct {
	ID         string
	UID        int64
	Username   string
	Database   string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Options configure a session store.
type Options struct {
	// Database is recorded on every session for audit context.
	Database string

	// TTL is the idle lifetime; Resolve refreshes it.
	TTL time.Duration

	// CleanupInterval is how often the background sweeper runs.
	// Defaults to TTL/2, floored at one second.
	CleanupInterval time.Duration

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int
}

// OptionsFromConfig derives store options from the gateway configuration.
func OptionsFromConfig(cfg *config.GatewayConfig) Options {
	return Options{
		Database:        cfg.Database,
		TTL:             cfg.SessionTimeout(),
		CleanupInterval: cfg.SessionCleanupInterval(),
		MaxSessions:     cfg.MaxSessions,
	}
}

// Store is a thread-safe session registry with idle expiry.
//
// Callers MUST call Stop when done to release the sweeper goroutine.
type Store struct {
	auth Authenticator
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store and starts its expiry sweeper.
func NewStore(auth Authenticator, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = time.Duration(config.DefaultSessionTimeoutMinutes) * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = opts.TTL / 2
	}
	if opts.CleanupInterval < minSweepInterval {
		opts.CleanupInterval = minSweepInterval
	}

	s := &Store{
		auth:     auth,
		opts:     opts,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Create authenticates the credentials against Odoo and registers a new
// session for the resulting uid. The session limit is checked before the
// authentication round-trip so a full store fails fast.
func (s *Store) Create(ctx context.Context, username, secret string) (*Session, error) {
	if username == "" || secret == "" {
		return nil, odoo.NewAuthError("username and password are required")
	}

	if err := s.checkCapacity(); err != nil {
		return nil, err
	}

	uid, err := s.auth(ctx, username, secret)
	if err != nil {
		return nil, odoo.AsGatewayError(err)
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		UID:        uid,
		Username:   username,
		Database:   s.opts.Database,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	s.mu.Lock()
	// Re-check under the write lock; Create races with itself.
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		return nil, odoo.NewSessionError("session limit reached (%d active)", s.opts.MaxSessions)
	}
	s.sessions[sess.ID] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	logging.Debug("SessionStore", "Created session %s for uid %d (total: %d)",
		logging.TruncateSessionID(sess.ID), uid, total)

	out := *sess
	return &out, nil
}

func (s *Store) checkCapacity() error {
	if s.opts.MaxSessions <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sessions) >= s.opts.MaxSessions {
		return odoo.NewSessionError("session limit reached (%d active)", s.opts.MaxSessions)
	}
	return nil
}

// Resolve returns the session for id and refreshes its idle timer.
// An expired session is removed on touch and reported as a session error,
// even if the sweeper has not run yet.
func (s *Store) Resolve(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, odoo.NewSessionError("unknown session %s", logging.TruncateSessionID(id))
	}
	if time.Since(sess.LastUsedAt) > s.opts.TTL {
		delete(s.sessions, id)
		return nil, odoo.NewSessionError("session %s expired", logging.TruncateSessionID(id))
	}
	sess.LastUsedAt = time.Now()

	out := *sess
	return &out, nil
}

// Destroy removes a session. Destroying an unknown id is a no-op.
func (s *Store) Destroy(id string) {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if existed {
		logging.Debug("SessionStore", "Destroyed session %s", logging.TruncateSessionID(id))
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop halts the sweeper and drops all sessions.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				logging.Debug("SessionStore", "Swept %d expired sessions", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastUsedAt) > s.opts.TTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
