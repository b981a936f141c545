package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odoomcp/internal/bus"
	"odoomcp/internal/cache"
	"odoomcp/internal/config"
	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/internal/security"
	"odoomcp/internal/session"
	"odoomcp/internal/tools"
)

// rpcCall is one recorded execute_kw round-trip.
type rpcCall struct {
	Model  string
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// fakeOdoo scripts a /jsonrpc Odoo endpoint: authentication against a
// credential table, canned introspection answers, and a per-test hook for
// business calls.
type fakeOdoo struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	calls     []rpcCall
	authCalls int

	creds map[string]string
	uids  map[string]int64

	// script answers business calls; handled=false falls back to the
	// built-in introspection answers.
	script func(c rpcCall) (result interface{}, fault map[string]interface{}, handled bool)
}

func newFakeOdoo(t *testing.T) *fakeOdoo {
	t.Helper()
	f := &fakeOdoo{
		t:     t,
		creds: map[string]string{"svc": "secret", "alice": "wonderland"},
		uids:  map[string]int64{"svc": 2, "alice": 7},
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOdoo) URL() string { return f.srv.URL }

func (f *fakeOdoo) setScript(fn func(c rpcCall) (interface{}, map[string]interface{}, bool)) {
	f.mu.Lock()
	f.script = fn
	f.mu.Unlock()
}

// callsFor returns the recorded calls for a model, optionally narrowed to
// one method.
func (f *fakeOdoo) callsFor(model, method string) []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcCall
	for _, c := range f.calls {
		if c.Model == model && (method == "" || c.Method == method) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeOdoo) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}

func (f *fakeOdoo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Params struct {
			Service string        `json:"service"`
			Method  string        `json:"method"`
			Args    []interface{} `json:"args"`
		} `json:"params"`
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result interface{}
	var fault map[string]interface{}
	switch {
	case req.Params.Service == "common" && req.Params.Method == "authenticate":
		result = f.authenticate(req.Params.Args)
	case req.Params.Service == "object" && req.Params.Method == "execute_kw":
		result, fault = f.executeKw(req.Params.Args)
	default:
		fault = map[string]interface{}{"code": -32601, "message": "unknown service " + req.Params.Service}
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if fault != nil {
		resp["error"] = fault
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		f.t.Logf("fake odoo: encode response: %v", err)
	}
}

func (f *fakeOdoo) authenticate(args []interface{}) interface{} {
	f.mu.Lock()
	f.authCalls++
	f.mu.Unlock()

	if len(args) < 3 {
		return false
	}
	login, _ := args[1].(string)
	secret, _ := args[2].(string)
	if secret == "" || f.creds[login] != secret {
		return false
	}
	return f.uids[login]
}

func (f *fakeOdoo) executeKw(args []interface{}) (interface{}, map[string]interface{}) {
	require.GreaterOrEqual(f.t, len(args), 6, "execute_kw wire args")
	c := rpcCall{}
	c.Model, _ = args[3].(string)
	c.Method, _ = args[4].(string)
	c.Args, _ = args[5].([]interface{})
	if len(args) > 6 {
		c.Kwargs, _ = args[6].(map[string]interface{})
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	script := f.script
	f.mu.Unlock()

	if script != nil {
		if result, fault, handled := script(c); handled {
			return result, fault
		}
	}
	if result, ok := f.introspection(c); ok {
		return result, nil
	}
	return nil, map[string]interface{}{
		"code":    200,
		"message": "Odoo Server Error",
		"data":    map[string]interface{}{"debug": "unscripted call " + c.Model + "." + c.Method},
	}
}

// introspection answers the reads the gateway issues on its own: schema
// fingerprinting, field listing, and company resolution.
func (f *fakeOdoo) introspection(c rpcCall) (interface{}, bool) {
	switch {
	case c.Model == "ir.model" && c.Method == "search_read":
		return []interface{}{
			map[string]interface{}{"model": "res.partner", "name": "Contact"},
			map[string]interface{}{"model": "sale.order", "name": "Sales Order"},
			map[string]interface{}{"model": "mail.message", "name": "Message"},
		}, true
	case c.Model == "ir.model.fields" && c.Method == "search_read":
		return filterFieldRows(c.Args), true
	case c.Model == "res.users" && c.Method == "read":
		return []interface{}{map[string]interface{}{
			"id":          float64(2),
			"company_id":  []interface{}{float64(1), "Main Company"},
			"company_ids": []interface{}{float64(1), float64(3)},
		}}, true
	}
	return nil, false
}

func fieldRows() []interface{} {
	row := func(model, name, ttype string, required, readonly bool, relation string) map[string]interface{} {
		r := map[string]interface{}{
			"model": model, "name": name, "ttype": ttype,
			"required": required, "readonly": readonly, "store": true,
		}
		if relation != "" {
			r["relation"] = relation
		}
		return r
	}
	return []interface{}{
		row("res.partner", "id", "integer", false, true, ""),
		row("res.partner", "name", "char", true, false, ""),
		row("res.partner", "email", "char", false, false, ""),
		row("res.partner", "company_id", "many2one", false, false, "res.company"),
		row("sale.order", "name", "char", true, false, ""),
		row("sale.order", "company_id", "many2one", false, false, "res.company"),
		row("sale.order", "user_id", "many2one", false, false, "res.users"),
		row("mail.message", "user_id", "many2one", false, false, "res.users"),
	}
}

// filterFieldRows honours a [["model","=",X]] domain the way Odoo would;
// the schema fingerprint probe passes an empty domain and gets everything.
func filterFieldRows(args []interface{}) []interface{} {
	model := domainModelFilter(args)
	rows := fieldRows()
	if model == "" {
		return rows
	}
	out := []interface{}{}
	for _, r := range rows {
		if rec, ok := r.(map[string]interface{}); ok && rec["model"] == model {
			out = append(out, rec)
		}
	}
	return out
}

func domainModelFilter(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	dom, ok := args[0].([]interface{})
	if !ok {
		return ""
	}
	for _, leaf := range dom {
		triple, ok := leaf.([]interface{})
		if !ok || len(triple) != 3 {
			continue
		}
		if triple[0] == "model" && triple[1] == "=" {
			s, _ := triple[2].(string)
			return s
		}
	}
	return ""
}

// testGatewayConfig points a default configuration at the fake backend.
// Masking and audit are off so tests opt in to exactly what they assert.
func testGatewayConfig(url string) *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.OdooURL = url
	cfg.Database = "testdb"
	cfg.Username = "svc"
	cfg.APIKey = "secret"
	cfg.Protocol = config.ProtocolJSONRPC
	cfg.ConnectionType = config.TransportHTTP
	cfg.PoolSize = 2
	cfg.TimeoutSeconds = 5
	cfg.RetryCount = 0
	cfg.BaseRetryDelaySeconds = 0.01
	cfg.ConnectionHealthIntervalSeconds = 0
	cfg.PIIMasking = false
	cfg.AuditLogging = false
	return &cfg
}

type recordingNotifier struct {
	mu      sync.Mutex
	methods []string
	params  []map[string]any
}

func (n *recordingNotifier) SendNotificationToAllClients(method string, params map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, method)
	n.params = append(n.params, params)
}

func (n *recordingNotifier) uris() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, p := range n.params {
		if uri, ok := p["uri"].(string); ok {
			out = append(out, uri)
		}
	}
	return out
}

type dispatcherFixture struct {
	fake     *fakeOdoo
	cfg      *config.GatewayConfig
	pool     *odoo.Pool
	sessions *session.Store
	cache    *cache.Cache
	bus      *bus.Bus
	notifier *recordingNotifier
	d        *Dispatcher
}

func newDispatcherFixture(t *testing.T, cfgFn func(*config.GatewayConfig)) *dispatcherFixture {
	t.Helper()

	fake := newFakeOdoo(t)
	cfg := testGatewayConfig(fake.URL())
	if cfgFn != nil {
		cfgFn(cfg)
	}

	pool := odoo.NewPool(cfg)
	t.Cleanup(pool.Close)
	exec := poolExecutor(pool)
	schema := odoo.NewSchemaTracker(exec, cfg.SchemaCacheTTL())

	sessions := session.NewStore(func(ctx context.Context, username, secret string) (int64, error) {
		if secret == "" || fake.creds[username] != secret {
			return 0, odoo.NewAuthError("odoo rejected the credentials")
		}
		return fake.uids[username], nil
	}, session.OptionsFromConfig(cfg))
	t.Cleanup(sessions.Stop)

	b := bus.New(cfg.SSEQueueMaxSize)
	t.Cleanup(b.Close)

	fx := &dispatcherFixture{
		fake:     fake,
		cfg:      cfg,
		pool:     pool,
		sessions: sessions,
		cache:    cache.New(cfg),
		bus:      b,
		notifier: &recordingNotifier{},
	}
	fx.d = NewDispatcher(DispatcherDeps{
		Config:   cfg,
		Pool:     pool,
		Sessions: sessions,
		Schema:   schema,
		Cache:    fx.cache,
		Injector: security.NewInjector(cfg.ImplicitDomains, exec, schema),
		Masker:   security.NewMasker(cfg.PIIMasking, cfg.PIIFields),
		Audit:    security.NewAuditLogger(cfg.AuditLogging),
		Bus:      b,
		Notifier: fx.notifier,
	})
	return fx
}

func requireUpdate(t *testing.T, sink *bus.Sink) bus.Update {
	t.Helper()
	select {
	case u, ok := <-sink.Events():
		require.True(t, ok, "sink closed before an update arrived")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no resource update within 2s")
		return bus.Update{}
	}
}

func partnerRecords() []interface{} {
	return []interface{}{map[string]interface{}{
		"id":    float64(1),
		"name":  "Azure Interior",
		"email": "azure@example.com",
	}}
}

func TestDispatcherExecutesReads(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "search_read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	result, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool:   "odoo.search_read",
		Model:  "res.partner",
		Method: "search_read",
		Args:   []interface{}{[]interface{}{}},
		Kwargs: map[string]interface{}{"limit": float64(5)},
	})
	require.NoError(t, err)

	records, ok := result.([]interface{})
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "Azure Interior", records[0].(map[string]interface{})["name"])

	calls := fx.fake.callsFor("res.partner", "search_read")
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{[]interface{}{}}, calls[0].Args, "empty domain passes through")
	assert.Equal(t, float64(5), calls[0].Kwargs["limit"])
}

func TestDispatcherCachesRepeatedReads(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "search_read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	call := tools.Call{
		Tool: "odoo.search_read", Model: "res.partner", Method: "search_read",
		Args: []interface{}{[]interface{}{}}, Kwargs: map[string]interface{}{"limit": float64(5)},
	}
	first, err := fx.d.Invoke(context.Background(), call)
	require.NoError(t, err)
	second, err := fx.d.Invoke(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, fx.fake.callsFor("res.partner", "search_read"), 1, "second read must come from cache")

	// A different shape misses.
	call.Kwargs = map[string]interface{}{"limit": float64(6)}
	_, err = fx.d.Invoke(context.Background(), call)
	require.NoError(t, err)
	assert.Len(t, fx.fake.callsFor("res.partner", "search_read"), 2)
}

func TestDispatcherWriteInvalidatesAndPublishes(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		switch {
		case c.Model == "res.partner" && c.Method == "search_read":
			return partnerRecords(), nil, true
		case c.Model == "res.partner" && c.Method == "write":
			return true, nil, true
		}
		return nil, nil, false
	})

	read := tools.Call{
		Tool: "odoo.search_read", Model: "res.partner", Method: "search_read",
		Args: []interface{}{[]interface{}{}},
	}
	_, err := fx.d.Invoke(context.Background(), read)
	require.NoError(t, err)
	_, err = fx.d.Invoke(context.Background(), read)
	require.NoError(t, err)
	require.Len(t, fx.fake.callsFor("res.partner", "search_read"), 1, "read should be cached before the write")

	recordSink := fx.bus.Subscribe("odoo://res.partner/1")
	defer recordSink.Close()
	listSink := fx.bus.Subscribe("odoo://res.partner/list")
	defer listSink.Close()

	result, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.write", Model: "res.partner", Method: "write", Write: true,
		Args: []interface{}{[]interface{}{float64(1)}, map[string]interface{}{"name": "Zed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result)

	u := requireUpdate(t, recordSink)
	assert.Equal(t, "odoo://res.partner/1", u.Params["uri"])
	assert.Equal(t, "res.partner", u.Params["model"])
	assert.Equal(t, "write", u.Params["method"])
	assert.Equal(t, "odoo://res.partner/list", requireUpdate(t, listSink).Params["uri"])

	assert.Contains(t, fx.notifier.uris(), "odoo://res.partner/1")
	assert.Contains(t, fx.notifier.uris(), "odoo://res.partner/list")
	for _, m := range fx.notifier.methods {
		assert.Equal(t, bus.MethodResourcesUpdated, m)
	}

	// The write dropped the cached read.
	_, err = fx.d.Invoke(context.Background(), read)
	require.NoError(t, err)
	assert.Len(t, fx.fake.callsFor("res.partner", "search_read"), 2)
}

func TestDispatcherCreatePublishesNewRecordID(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "create" {
			return float64(42), nil, true
		}
		return nil, nil, false
	})

	sink := fx.bus.Subscribe("odoo://res.partner/42")
	defer sink.Close()

	result, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.create", Model: "res.partner", Method: "create", Write: true,
		Args: []interface{}{map[string]interface{}{"name": "New"}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(42), result)
	assert.Equal(t, "odoo://res.partner/42", requireUpdate(t, sink).Params["uri"])
}

func TestDispatcherSchemaWritesInvalidateFingerprint(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		switch {
		case c.Model == "res.partner" && c.Method == "search_read":
			return partnerRecords(), nil, true
		case c.Model == "ir.model.fields" && c.Method == "create":
			return float64(901), nil, true
		}
		return nil, nil, false
	})

	read := tools.Call{
		Tool: "odoo.search_read", Model: "res.partner", Method: "search_read",
		Args: []interface{}{[]interface{}{}},
	}
	_, err := fx.d.Invoke(context.Background(), read)
	require.NoError(t, err)
	probes := len(fx.fake.callsFor("ir.model", "search_read"))
	require.Equal(t, 1, probes, "one fingerprint pass for the first cacheable read")

	_, err = fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.create", Model: "ir.model.fields", Method: "create", Write: true,
		Args: []interface{}{map[string]interface{}{"name": "x_custom"}},
	})
	require.NoError(t, err)

	_, err = fx.d.Invoke(context.Background(), read)
	require.NoError(t, err)
	assert.Equal(t, 2, len(fx.fake.callsFor("ir.model", "search_read")),
		"a data-dictionary write must force re-introspection")
}

func TestDispatcherInjectsUserScope(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "mail.message" && c.Method == "search" {
			return []interface{}{}, nil, true
		}
		return nil, nil, false
	})

	sess, err := fx.sessions.Create(context.Background(), "alice", "wonderland")
	require.NoError(t, err)
	require.Equal(t, int64(7), sess.UID)

	_, err = fx.d.Invoke(context.Background(), tools.Call{
		SessionID: sess.ID,
		Tool:      "odoo.search_read", Model: "mail.message", Method: "search",
		Args: []interface{}{[]interface{}{}},
	})
	require.NoError(t, err)

	calls := fx.fake.callsFor("mail.message", "search")
	require.Len(t, calls, 1)
	dom, ok := calls[0].Args[0].([]interface{})
	require.True(t, ok)
	require.Len(t, dom, 1)
	leaf, ok := dom[0].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"user_id", "=", float64(7)}, leaf,
		"the session uid, not the service uid, scopes the query")
}

func TestDispatcherInjectsCompanyScope(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "sale.order" && c.Method == "search_read" {
			return []interface{}{}, nil, true
		}
		return nil, nil, false
	})

	base := []interface{}{[]interface{}{"state", "=", "sale"}}
	_, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.search_read", Model: "sale.order", Method: "search_read",
		Args: []interface{}{base},
	})
	require.NoError(t, err)

	calls := fx.fake.callsFor("sale.order", "search_read")
	require.Len(t, calls, 1)
	dom, ok := calls[0].Args[0].([]interface{})
	require.True(t, ok)
	require.Len(t, dom, 3, "prefix AND of base and company filter")
	assert.Equal(t, "&", dom[0])
	assert.Equal(t, []interface{}{"state", "=", "sale"}, dom[1])
	assert.Equal(t, []interface{}{"company_id", "in", []interface{}{float64(1), float64(3)}}, dom[2])
}

func TestDispatcherImplicitDomainsDisabled(t *testing.T) {
	fx := newDispatcherFixture(t, func(cfg *config.GatewayConfig) {
		cfg.ImplicitDomains = false
	})
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "sale.order" && c.Method == "search_read" {
			return []interface{}{}, nil, true
		}
		return nil, nil, false
	})

	base := []interface{}{[]interface{}{"state", "=", "sale"}}
	_, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.search_read", Model: "sale.order", Method: "search_read",
		Args: []interface{}{base},
	})
	require.NoError(t, err)

	calls := fx.fake.callsFor("sale.order", "search_read")
	require.Len(t, calls, 1)
	dom, ok := calls[0].Args[0].([]interface{})
	require.True(t, ok)
	require.Len(t, dom, 1, "domain must pass through untouched")
	assert.Equal(t, []interface{}{"state", "=", "sale"}, dom[0])
}

func TestDispatcherMasksAndCachesMaskedResult(t *testing.T) {
	fx := newDispatcherFixture(t, func(cfg *config.GatewayConfig) {
		cfg.PIIMasking = true
	})
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "search_read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	call := tools.Call{
		Tool: "odoo.search_read", Model: "res.partner", Method: "search_read",
		Args: []interface{}{[]interface{}{}},
	}
	result, err := fx.d.Invoke(context.Background(), call)
	require.NoError(t, err)
	rec := result.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "a***e@example.com", rec["email"])
	assert.Equal(t, "Azure Interior", rec["name"])

	// The cache holds the masked copy; a hit cannot leak the raw value.
	cached, err := fx.d.Invoke(context.Background(), call)
	require.NoError(t, err)
	assert.Len(t, fx.fake.callsFor("res.partner", "search_read"), 1)
	assert.Equal(t, "a***e@example.com",
		cached.([]interface{})[0].(map[string]interface{})["email"])
}

func TestDispatcherRejectsUnknownSession(t *testing.T) {
	fx := newDispatcherFixture(t, nil)

	_, err := fx.d.Invoke(context.Background(), tools.Call{
		SessionID: "not-a-session",
		Tool:      "odoo.read", Model: "res.partner", Method: "read",
		Args: []interface{}{[]interface{}{float64(1)}},
	})
	require.Error(t, err)
	assert.Equal(t, odoo.KindSession, odoo.AsGatewayError(err).Kind)
	assert.Empty(t, fx.fake.callsFor("res.partner", ""), "rejected calls must not reach Odoo")
}

func TestDispatcherPropagatesOdooFaults(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "unlink" {
			return nil, map[string]interface{}{
				"code":    200,
				"message": "Odoo Server Error",
				"data": map[string]interface{}{
					"name":  "odoo.exceptions.UserError",
					"debug": "UserError: cannot delete a partner with invoices",
				},
			}, true
		}
		if c.Model == "res.partner" && c.Method == "search_read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	_, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.unlink", Model: "res.partner", Method: "unlink", Write: true,
		Args: []interface{}{[]interface{}{float64(1)}},
	})
	require.Error(t, err)
	assert.Equal(t, odoo.KindValidation, odoo.AsGatewayError(err).Kind)

	// An application fault travels over a working connection; the pool
	// keeps serving.
	_, err = fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.search_read", Model: "res.partner", Method: "search_read",
		Args: []interface{}{[]interface{}{}},
	})
	require.NoError(t, err)
}

func TestDispatcherWarmsColdPool(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	require.Equal(t, int64(0), fx.pool.GlobalUID(), "pool starts cold")

	_, err := fx.d.Invoke(context.Background(), tools.Call{
		Tool: "odoo.read", Model: "res.partner", Method: "read",
		Args: []interface{}{[]interface{}{float64(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), fx.pool.GlobalUID(), "authorize must warm the pool for the service uid")
	assert.GreaterOrEqual(t, fx.fake.authCount(), 1)
}

func TestConnHealthy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no error", err: nil, want: true},
		{name: "network failure poisons", err: odoo.NewNetworkError("connection reset"), want: false},
		{name: "protocol failure poisons", err: odoo.NewProtocolError("bad envelope"), want: false},
		{name: "validation fault survives", err: odoo.NewValidationError(odoo.ValidationGeneric, "nope"), want: true},
		{name: "auth fault survives", err: odoo.NewAuthError("denied"), want: true},
		{name: "untagged error survives", err: errors.New("boom"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connHealthy(tt.err))
		})
	}
}

func TestAffectedIDs(t *testing.T) {
	tests := []struct {
		name   string
		call   tools.Call
		result interface{}
		want   []int64
	}{
		{
			name:   "create reads ids from the result",
			call:   tools.Call{Method: "create"},
			result: float64(42),
			want:   []int64{42},
		},
		{
			name:   "batch create",
			call:   tools.Call{Method: "create"},
			result: []interface{}{float64(7), float64(8)},
			want:   []int64{7, 8},
		},
		{
			name: "write reads ids from the first argument",
			call: tools.Call{Method: "write", Args: []interface{}{
				[]interface{}{float64(1), float64(2)}, map[string]interface{}{"name": "x"},
			}},
			result: true,
			want:   []int64{1, 2},
		},
		{
			name:   "unlink",
			call:   tools.Call{Method: "unlink", Args: []interface{}{[]interface{}{int64(3)}}},
			result: true,
			want:   []int64{3},
		},
		{
			name:   "workflow action on one record",
			call:   tools.Call{Method: "action_confirm", Args: []interface{}{[]interface{}{float64(5)}}},
			result: true,
			want:   []int64{5},
		},
		{
			name: "no positional arguments",
			call: tools.Call{Method: "write"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, affectedIDs(tt.call, tt.result))
		})
	}
}

func TestIdsFromValue(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, idsFromValue([]interface{}{
		float64(1), []interface{}{int(2), int64(3)},
	}))
	assert.Nil(t, idsFromValue("not an id"))
	assert.Nil(t, idsFromValue(nil))
	assert.Nil(t, idsFromValue(map[string]interface{}{"id": 1}))
}

func TestResolverFor(t *testing.T) {
	fx := newDispatcherFixture(t, nil)

	res := fx.d.ResolverFor(context.Background(), "")
	assert.Equal(t, int64(2), res.UID)
	assert.Equal(t, []int64{1, 3}, res.CompanyIDs)
	assert.NotEqual(t, domain.TokenToday, res.Resolve(domain.TokenToday),
		"zero-clock resolver falls back to the wall clock")

	sess, err := fx.sessions.Create(context.Background(), "alice", "wonderland")
	require.NoError(t, err)
	res = fx.d.ResolverFor(context.Background(), sess.ID)
	assert.Equal(t, int64(7), res.UID)

	res = fx.d.ResolverFor(context.Background(), "bogus")
	assert.Zero(t, res.UID)
	assert.Empty(t, res.CompanyIDs)
	assert.NotEqual(t, domain.TokenToday, res.Resolve(domain.TokenToday),
		"placeholder compilation still needs a clock")
}

func TestPoolExecutorSkipsPipeline(t *testing.T) {
	fx := newDispatcherFixture(t, func(cfg *config.GatewayConfig) {
		cfg.PIIMasking = true
	})
	fx.fake.setScript(func(c rpcCall) (interface{}, map[string]interface{}, bool) {
		if c.Model == "res.partner" && c.Method == "read" {
			return partnerRecords(), nil, true
		}
		return nil, nil, false
	})

	exec := poolExecutor(fx.pool)
	result, err := exec(context.Background(), "res.partner", "read",
		[]interface{}{[]interface{}{1}}, nil)
	require.NoError(t, err)
	rec := result.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "azure@example.com", rec["email"],
		"plumbing reads bypass masking")
}
