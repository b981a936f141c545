// Package gateway assembles the MCP server around a single dispatch
// pipeline. Every tool call and resource read flows through the Dispatcher:
// resolve the effective uid, inject implicit domains, consult the result
// cache, execute on a pooled connection, mask PII, publish resource updates
// for writes, and record the audit trail. The transports then expose the
// assembled server over stdio or HTTP.
package gateway

import (
	"context"
	"strings"
	"time"

	"odoomcp/internal/bus"
	"odoomcp/internal/cache"
	"odoomcp/internal/config"
	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/internal/resources"
	"odoomcp/internal/security"
	"odoomcp/internal/session"
	"odoomcp/internal/tools"
	"odoomcp/pkg/logging"
)

// serviceClient names dispatches that run under the pool's configured
// credentials with no explicit session. It doubles as the shared rate
// bucket for stdio callers.
const serviceClient = "service"

// Notifier broadcasts a notification to every connected MCP client.
// *server.MCPServer satisfies it.
type Notifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// DispatcherDeps carries the shared components the dispatcher coordinates.
type DispatcherDeps struct {
	Config   *config.GatewayConfig
	Pool     *odoo.Pool
	Sessions *session.Store
	Schema   *odoo.SchemaTracker
	Cache    *cache.Cache
	Injector *security.Injector
	Masker   *security.Masker
	Audit    *security.AuditLogger
	Bus      *bus.Bus
	Notifier Notifier
}

// Dispatcher runs every operation through the gateway pipeline. It is the
// one Invoker behind both tools and resources, so caching, masking, and
// auditing behave identically no matter how a call arrives.
type Dispatcher struct {
	cfg      *config.GatewayConfig
	pool     *odoo.Pool
	sessions *session.Store
	schema   *odoo.SchemaTracker
	cache    *cache.Cache
	injector *security.Injector
	masker   *security.Masker
	audit    *security.AuditLogger
	bus      *bus.Bus
	notifier Notifier
}

// NewDispatcher creates the dispatcher from its dependencies.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		cfg:      deps.Config,
		pool:     deps.Pool,
		sessions: deps.Sessions,
		schema:   deps.Schema,
		cache:    deps.Cache,
		injector: deps.Injector,
		masker:   deps.Masker,
		audit:    deps.Audit,
		bus:      deps.Bus,
		notifier: deps.Notifier,
	}
}

// Invoke implements tools.Invoker.
func (d *Dispatcher) Invoke(ctx context.Context, call tools.Call) (interface{}, error) {
	start := time.Now()

	uid, client, err := d.authorize(ctx, call.SessionID)
	if err != nil {
		d.logOutcome(client, call, nil, time.Since(start), err)
		return nil, err
	}

	call.Args = d.injectDomain(ctx, call, uid)

	key, cacheable := d.cacheKey(ctx, call, uid)
	if cacheable {
		if hit, ok := d.cache.Get(key); ok {
			logging.Debug("Gateway", "cache hit for %s.%s", call.Model, call.Method)
			d.logOutcome(client, call, hit, time.Since(start), nil)
			return hit, nil
		}
	}

	result, err := d.execute(ctx, call)
	if err != nil {
		d.logOutcome(client, call, nil, time.Since(start), err)
		return nil, err
	}

	result = d.masker.MaskRecords(result)
	if cacheable {
		d.cache.Put(key, result)
	}
	if call.Write {
		// Updates must be observable before the caller sees the result.
		d.afterWrite(call, result)
	}

	d.logOutcome(client, call, result, time.Since(start), nil)
	return result, nil
}

// authorize resolves the uid a call executes as. A session id binds the
// call to that session's user; otherwise the pool's service credentials
// apply. A cold pool is warmed first so the service uid is known before
// any domain is compiled against it.
func (d *Dispatcher) authorize(ctx context.Context, sessionID string) (int64, string, error) {
	if sessionID != "" {
		s, err := d.sessions.Resolve(sessionID)
		if err != nil {
			return 0, "session:" + logging.TruncateSessionID(sessionID), err
		}
		return s.UID, "session:" + logging.TruncateSessionID(s.ID), nil
	}

	uid := d.pool.GlobalUID()
	if uid == 0 {
		if err := d.pool.Warm(ctx); err != nil {
			return 0, serviceClient, err
		}
		uid = d.pool.GlobalUID()
	}
	return uid, serviceClient, nil
}

// domainMethods lists the methods whose first positional argument is a
// search domain eligible for implicit filters.
var domainMethods = map[string]bool{
	"search":       true,
	"search_read":  true,
	"search_count": true,
	"read_group":   true,
}

func (d *Dispatcher) injectDomain(ctx context.Context, call tools.Call, uid int64) []interface{} {
	if !domainMethods[call.Method] || len(call.Args) == 0 {
		return call.Args
	}
	base, ok := call.Args[0].([]interface{})
	if !ok {
		return call.Args
	}
	args := make([]interface{}, len(call.Args))
	copy(args, call.Args)
	args[0] = d.injector.Apply(ctx, call.Model, uid, base)
	return args
}

// cacheKey builds the cache key for a read call. Writes and non-cacheable
// methods report ok=false.
func (d *Dispatcher) cacheKey(ctx context.Context, call tools.Call, uid int64) (cache.Key, bool) {
	if call.Write || !cache.Cacheable(call.Method) {
		return cache.Key{}, false
	}
	version := d.schema.Version(ctx)
	return cache.NewKey(d.cfg.Database, uid, call.Model, call.Method, call.Args, call.Kwargs, version), true
}

// execute runs the call on a pooled connection. The release verdict
// follows the error kind: transport failures count against the
// connection, application faults do not.
func (d *Dispatcher) execute(ctx context.Context, call tools.Call) (interface{}, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	result, err := conn.Handler.ExecuteKw(ctx, call.Model, call.Method, call.Args, call.Kwargs)
	conn.Release(connHealthy(err))
	return result, err
}

// connHealthy reports whether the connection that produced err can be
// reused. Application-level faults travel over a working connection.
func connHealthy(err error) bool {
	if err == nil {
		return true
	}
	switch odoo.AsGatewayError(err).Kind {
	case odoo.KindNetwork, odoo.KindProtocol:
		return false
	}
	return true
}

// afterWrite drops cached reads for the model and publishes a resource
// update for every affected record plus the model's list URI. Writes to
// the ir.model family change the schema itself, so the schema version is
// invalidated too.
func (d *Dispatcher) afterWrite(call tools.Call, result interface{}) {
	d.cache.InvalidateModel(d.cfg.Database, call.Model)
	if strings.HasPrefix(call.Model, "ir.model") {
		d.schema.Invalidate()
	}

	for _, id := range affectedIDs(call, result) {
		d.publish(resources.RecordURI(call.Model, id), call)
	}
	d.publish(resources.ListURI(call.Model), call)
}

func (d *Dispatcher) publish(uri string, call tools.Call) {
	update := bus.NewUpdate(uri, map[string]interface{}{
		"model":  call.Model,
		"method": call.Method,
	})
	d.bus.Publish(update)
	if d.notifier != nil {
		d.notifier.SendNotificationToAllClients(bus.MethodResourcesUpdated, update.Params)
	}
}

// affectedIDs extracts the record ids a write touched: create reads them
// from the result, the other write methods carry them as the first
// positional argument.
func affectedIDs(call tools.Call, result interface{}) []int64 {
	if call.Method == "create" {
		return idsFromValue(result)
	}
	if len(call.Args) > 0 {
		return idsFromValue(call.Args[0])
	}
	return nil
}

func idsFromValue(v interface{}) []int64 {
	switch n := v.(type) {
	case []interface{}:
		var ids []int64
		for _, item := range n {
			ids = append(ids, idsFromValue(item)...)
		}
		return ids
	case int64:
		return []int64{n}
	case int:
		return []int64{int64(n)}
	case float64:
		return []int64{int64(n)}
	}
	return nil
}

func (d *Dispatcher) logOutcome(client string, call tools.Call, result interface{}, elapsed time.Duration, err error) {
	d.audit.Log(security.Event{
		Client:   client,
		Tool:     call.Tool,
		Model:    call.Model,
		Method:   call.Method,
		Args:     call.Args,
		Kwargs:   call.Kwargs,
		Duration: elapsed,
		Success:  err == nil,
		Err:      err,
		Result:   result,
	})
}

// ResolverFor builds the placeholder resolver for a call: the effective
// uid plus that user's allowed companies. Lookup failures degrade to an
// empty company list rather than failing compilation.
func (d *Dispatcher) ResolverFor(ctx context.Context, sessionID string) domain.Resolver {
	uid, _, err := d.authorize(ctx, sessionID)
	if err != nil {
		return domain.Resolver{}
	}
	companies, err := d.injector.CompanyIDs(ctx, uid)
	if err != nil {
		logging.Debug("Gateway", "company lookup for uid %d failed: %v", uid, err)
	}
	return domain.Resolver{UID: uid, CompanyIDs: companies}
}

// poolExecutor adapts the pool into the raw Executor that the schema
// tracker, the domain injector, and the actions service run their
// internal reads on. These bypass the dispatch pipeline: no caching,
// masking, or auditing applies to gateway plumbing.
func poolExecutor(pool *odoo.Pool) odoo.Executor {
	return func(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		result, err := conn.Handler.ExecuteKw(ctx, model, method, args, kwargs)
		conn.Release(connHealthy(err))
		return result, err
	}
}
