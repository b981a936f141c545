package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"odoomcp/pkg/logging"
)

// JSONRPCHandler talks to Odoo's /jsonrpc endpoint over a keep-alive HTTP
// client. All services route through the single endpoint; the service name
// travels inside the JSON-RPC params.
type JSONRPCHandler struct {
	opts     ClientOptions
	endpoint string
	client   *http.Client
	nextID   atomic.Int64

	mu  sync.Mutex
	uid int64
}

// NewJSONRPCHandler builds the handler with its TLS-configured client.
func NewJSONRPCHandler(opts ClientOptions) (*JSONRPCHandler, error) {
	tr, err := NewHTTPTransport(opts.TLS)
	if err != nil {
		return nil, err
	}
	return &JSONRPCHandler{
		opts:     opts,
		endpoint: opts.URL + "/jsonrpc",
		client: &http.Client{
			Transport: tr,
			Timeout:   opts.Timeout,
		},
	}, nil
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  jsonrpcParams `json:"params"`
	ID      int64         `json:"id"`
}

type jsonrpcParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpcFault   `json:"error"`
}

type jsonrpcFault struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// rpc posts one JSON-RPC call and decodes the result. HTTP status >= 400 is
// a network failure; an error object in the body goes through the fault
// classifier.
func (h *JSONRPCHandler) rpc(ctx context.Context, service, method string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	payload := jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  jsonrpcParams{Service: service, Method: method, Args: args},
		ID:      h.nextID.Add(1),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProtocolError("cannot encode json-rpc request for %s.%s", service, method).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewNetworkError("cannot build request for %s", h.endpoint).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, NewNetworkError("json-rpc %s.%s failed", service, method).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, NewNetworkError("odoo returned HTTP %d for %s.%s", resp.StatusCode, service, method)
	}

	var decoded jsonrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, NewProtocolError("cannot decode json-rpc response for %s.%s", service, method).WithCause(err)
	}

	if decoded.Error != nil {
		return nil, classifyJSONRPCFault(decoded.Error)
	}

	if len(decoded.Result) == 0 {
		return nil, nil
	}
	var result interface{}
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		return nil, NewProtocolError("cannot decode json-rpc result for %s.%s", service, method).WithCause(err)
	}
	return result, nil
}

// classifyJSONRPCFault maps Odoo's JSON-RPC error object to the taxonomy.
// Odoo puts the exception name and traceback under error.data, so the whole
// object feeds the shared string classifier; code 100 is always a session /
// access failure regardless of text.
func classifyJSONRPCFault(fault *jsonrpcFault) *GatewayError {
	combined := fault.Message
	if len(fault.Data) > 0 {
		combined = combined + "\n" + string(fault.Data)
	}
	if fault.Code == 100 {
		return NewAuthError("odoo denied access").WithDetail("fault", truncateFault(combined))
	}
	ge := ClassifyFault(combined)
	return ge.WithDetail("odoo_code", fault.Code)
}

// Authenticate implements RpcHandler.
func (h *JSONRPCHandler) Authenticate(ctx context.Context, db, username, secret string) (int64, error) {
	raw, err := h.rpc(ctx, ServiceCommon, "authenticate", []interface{}{db, username, secret, map[string]interface{}{}})
	if err != nil {
		return 0, err
	}
	uid, err := uidToInt64(raw)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	h.uid = uid
	h.mu.Unlock()
	logging.Debug("Odoo", "json-rpc authenticated %s on %s as uid %d", username, db, uid)
	return uid, nil
}

func (h *JSONRPCHandler) ensureUID(ctx context.Context) (int64, error) {
	h.mu.Lock()
	uid := h.uid
	h.mu.Unlock()
	if uid != 0 {
		return uid, nil
	}
	return h.Authenticate(ctx, h.opts.Database, h.opts.Username, h.opts.APIKey)
}

// ExecuteKw implements RpcHandler.
func (h *JSONRPCHandler) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid, err := h.ensureUID(ctx)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{h.opts.Database, uid, h.opts.APIKey, model, method, args, kwargs}
	return h.rpc(ctx, ServiceObject, "execute_kw", params)
}

// Call implements RpcHandler.
func (h *JSONRPCHandler) Call(ctx context.Context, service, method string, args []interface{}) (interface{}, error) {
	switch service {
	case ServiceCommon, ServiceObject, "db":
		return h.rpc(ctx, service, method, args)
	default:
		return nil, NewProtocolError("unknown json-rpc service %q", service)
	}
}

// Close implements RpcHandler.
func (h *JSONRPCHandler) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// String identifies the handler in pool logs.
func (h *JSONRPCHandler) String() string {
	return fmt.Sprintf("jsonrpc(%s)", h.endpoint)
}
