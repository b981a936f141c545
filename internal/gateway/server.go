package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"odoomcp/internal/actions"
	"odoomcp/internal/bus"
	"odoomcp/internal/cache"
	"odoomcp/internal/config"
	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/internal/ratelimit"
	"odoomcp/internal/resources"
	"odoomcp/internal/security"
	"odoomcp/internal/session"
	"odoomcp/internal/tools"
	"odoomcp/pkg/logging"
)

const serverName = "odoo-mcp-gateway"

// Server owns every gateway component and the MCP server they plug into.
// Construct with NewServer, then Start; Stop tears everything down in
// reverse order.
type Server struct {
	cfg *config.GatewayConfig

	pool       *odoo.Pool
	sessions   *session.Store
	schema     *odoo.SchemaTracker
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	injector   *security.Injector
	masker     *security.Masker
	audit      *security.AuditLogger
	bus        *bus.Bus
	poller     *bus.Poller
	dispatcher *Dispatcher
	resources  *resources.Manager
	actions    *actions.Service

	mcp *server.MCPServer

	// Transport-specific servers, populated by Start.
	stdioServer          *server.StdioServer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server

	subs subscriptionSet

	ctx          context.Context
	cancelFunc   context.CancelFunc
	transportErr chan error
	wg           sync.WaitGroup
	mu           sync.Mutex
	started      bool
}

// NewServer assembles the gateway from its configuration. No connections
// are opened and nothing listens until Start.
func NewServer(cfg *config.GatewayConfig, version string) (*Server, error) {
	registry, err := actions.LoadRegistry(cfg.ActionsRegistryPath)
	if err != nil {
		return nil, err
	}

	pool := odoo.NewPool(cfg)
	exec := poolExecutor(pool)
	schema := odoo.NewSchemaTracker(exec, cfg.SchemaCacheTTL())

	// The poller is the one fallible construction besides the registry;
	// build it before anything that spawns background work so a bad TLS
	// config fails NewServer without leaving sweepers behind.
	updates := bus.New(cfg.SSEQueueMaxSize)
	var poller *bus.Poller
	if cfg.BusEnabled {
		poller, err = bus.NewPoller(odoo.OptionsFromConfig(cfg), cfg.BusChannels, updates)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	s := &Server{
		cfg:      cfg,
		pool:     pool,
		sessions: session.NewStore(sessionAuthenticator(cfg), session.OptionsFromConfig(cfg)),
		schema:   schema,
		cache:    cache.New(cfg),
		limiter:  ratelimit.New(cfg),
		injector: security.NewInjector(cfg.ImplicitDomains, exec, schema),
		masker:   security.NewMasker(cfg.PIIMasking, cfg.PIIFields),
		audit:    security.NewAuditLogger(cfg.AuditLogging),
		bus:      updates,
		poller:   poller,
		subs:     subscriptionSet{uris: make(map[string]int)},

		transportErr: make(chan error, 1),
	}

	s.mcp = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)

	s.dispatcher = NewDispatcher(DispatcherDeps{
		Config:   cfg,
		Pool:     pool,
		Sessions: s.sessions,
		Schema:   schema,
		Cache:    s.cache,
		Injector: s.injector,
		Masker:   s.masker,
		Audit:    s.audit,
		Bus:      s.bus,
		Notifier: s.mcp,
	})

	// Workflow calls ride the full pipeline so they are audited,
	// invalidate caches, and publish updates like any other write.
	s.actions = actions.NewService(s.dispatchExecutor(), registry, schema)

	compiler := domain.NewCompiler(cfg.MaxPayloadSize)
	serviceResolver := func(ctx context.Context) domain.Resolver {
		return s.dispatcher.ResolverFor(ctx, "")
	}
	s.resources = resources.NewManager(s.dispatcher, compiler, serviceResolver, cfg.MaxRecordsLimit)

	s.registerTools(compiler)
	s.registerResources()
	s.registerPrompts()

	return s, nil
}

// sessionAuthenticator verifies per-user credentials on a dedicated
// handler, outside the pool: pooled connections stay bound to the service
// account.
func sessionAuthenticator(cfg *config.GatewayConfig) session.Authenticator {
	return func(ctx context.Context, username, secret string) (int64, error) {
		h, err := odoo.NewHandler(cfg.Protocol, odoo.OptionsFromConfig(cfg))
		if err != nil {
			return 0, err
		}
		defer h.Close()
		return h.Authenticate(ctx, cfg.Database, username, secret)
	}
}

// dispatchExecutor adapts the dispatcher into the Executor shape the
// actions service expects.
func (s *Server) dispatchExecutor() odoo.Executor {
	return func(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return s.dispatcher.Invoke(ctx, tools.Call{
			Tool:   "actions",
			Model:  model,
			Method: method,
			Args:   args,
			Kwargs: kwargs,
			Write:  actions.IsActionMethod(method),
		})
	}
}

func (s *Server) registerTools(compiler *domain.Compiler) {
	deps := tools.Deps{
		Config:      s.cfg,
		Invoker:     s.dispatcher,
		Sessions:    s.sessions,
		Schema:      s.schema,
		Actions:     s.actions,
		Normalizer:  tools.NewNormalizer(compiler, s.cfg.MaxFieldsLimit, s.cfg.MaxRecordsLimit),
		Ops:         tools.NewOpLog(0),
		ResolverFor: s.dispatcher.ResolverFor,
		Subscribe:   s.subscribe,
		Unsubscribe: s.unsubscribe,
	}

	defs := tools.Catalog(deps)
	for _, def := range defs {
		s.mcp.AddTool(def.Tool, wrapTool(def, s.limiter))
	}
	logging.Info("Gateway", "Registered %d tools", len(defs))
}

func (s *Server) registerResources() {
	for _, t := range s.resources.Templates() {
		s.mcp.AddResourceTemplate(t.Template, t.Handler)
	}
}

// Start connects to Odoo, launches the optional bus poller, and brings up
// the configured transport. It returns once the transport is accepting
// requests (stdio serves in the background).
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("gateway already started")
	}
	s.started = true
	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.pool.Warm(s.ctx); err != nil {
		return err
	}
	logging.Info("Gateway", "Connected to %s database %q as uid %d",
		s.cfg.OdooURL, s.cfg.Database, s.pool.GlobalUID())

	if s.poller != nil {
		s.poller.Start(s.ctx)
		logging.Info("Gateway", "Odoo bus poller started for %d channels", len(s.cfg.BusChannels))
	}

	return s.startTransport()
}

// Stop shuts the transport down gracefully, then releases every component
// in reverse construction order.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancelFunc
	s.mu.Unlock()

	logging.Info("Gateway", "Stopping gateway")
	if cancel != nil {
		cancel()
	}

	s.stopTransport(ctx)
	s.wg.Wait()

	if s.poller != nil {
		<-s.poller.Done()
	}
	s.bus.Close()
	s.limiter.Stop()
	s.sessions.Stop()
	s.pool.Close()
	return nil
}

// Wait blocks until the transport terminates on its own (stdio EOF, a
// listener failure) or ctx is cancelled. Clean termination returns nil;
// the caller still runs Stop to release components.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.transportErr:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// reportTransportExit hands the transport goroutine's outcome to Wait.
// Non-blocking: nobody may be waiting.
func (s *Server) reportTransportExit(err error) {
	select {
	case s.transportErr <- err:
	default:
	}
}

// done exposes the server lifecycle channel to request handlers. Before
// Start it returns nil, which blocks forever in a select.
func (s *Server) done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Done()
}

// subscribe registers interest in a resource URI. The URI must match a
// known template; update notifications broadcast to connected clients
// whether or not a subscription exists, so this is refcounted bookkeeping
// plus validation.
func (s *Server) subscribe(_ context.Context, uri string) error {
	if err := s.resources.Validate(uri); err != nil {
		return err
	}
	s.subs.mu.Lock()
	s.subs.uris[uri]++
	n := s.subs.uris[uri]
	s.subs.mu.Unlock()
	logging.Debug("Gateway", "Subscription added for %s (now %d)", uri, n)
	return nil
}

// unsubscribe drops one registration for the URI. Unknown URIs are a
// no-op so unsubscribe stays idempotent.
func (s *Server) unsubscribe(_ context.Context, uri string) error {
	s.subs.mu.Lock()
	if n, ok := s.subs.uris[uri]; ok {
		if n <= 1 {
			delete(s.subs.uris, uri)
		} else {
			s.subs.uris[uri] = n - 1
		}
	}
	s.subs.mu.Unlock()
	logging.Debug("Gateway", "Subscription removed for %s", uri)
	return nil
}

// SubscriptionCount reports the active registrations for a URI.
func (s *Server) SubscriptionCount(uri string) int {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	return s.subs.uris[uri]
}

type subscriptionSet struct {
	mu   sync.Mutex
	uris map[string]int
}

// healthSnapshot is the /health response body.
type healthSnapshot struct {
	OK       bool           `json:"ok"`
	Pool     odoo.PoolStats `json:"pool"`
	Sessions sessionCount   `json:"sessions"`
}

type sessionCount struct {
	Count int `json:"count"`
}

func (s *Server) health() healthSnapshot {
	stats := s.pool.Stats()
	return healthSnapshot{
		OK:       stats.Idle+stats.InUse > 0,
		Pool:     stats,
		Sessions: sessionCount{Count: s.sessions.Count()},
	}
}
