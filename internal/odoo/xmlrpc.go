package odoo

import (
	"context"
	"errors"
	"net/rpc"
	"regexp"
	"sync"

	"odoomcp/pkg/logging"

	"github.com/kolo/xmlrpc"
)

// XMLRPCHandler talks to Odoo's /xmlrpc/2/common and /xmlrpc/2/object
// endpoints through two kolo clients sharing one configured transport.
//
// The kolo client blocks for the duration of a call, so every RPC runs on
// its own goroutine and the caller waits on a result channel; cancellation
// returns control immediately even though the RPC may still complete at
// Odoo.
type XMLRPCHandler struct {
	opts   ClientOptions
	common *xmlrpc.Client
	object *xmlrpc.Client

	mu  sync.Mutex
	uid int64
}

// NewXMLRPCHandler connects the two endpoint clients. No network traffic
// happens until the first call.
func NewXMLRPCHandler(opts ClientOptions) (*XMLRPCHandler, error) {
	tr, err := NewHTTPTransport(opts.TLS)
	if err != nil {
		return nil, err
	}

	common, err := xmlrpc.NewClient(opts.URL+"/xmlrpc/2/common", tr)
	if err != nil {
		return nil, NewNetworkError("cannot create client for %s/xmlrpc/2/common", opts.URL).WithCause(err)
	}
	object, err := xmlrpc.NewClient(opts.URL+"/xmlrpc/2/object", tr)
	if err != nil {
		common.Close()
		return nil, NewNetworkError("cannot create client for %s/xmlrpc/2/object", opts.URL).WithCause(err)
	}

	return &XMLRPCHandler{opts: opts, common: common, object: object}, nil
}

type xmlrpcResult struct {
	value interface{}
	err   error
}

// call runs one blocking kolo call on a worker goroutine. The reply value
// lives inside the goroutine and travels through the channel, so an
// abandoned call can never race with the caller.
func (h *XMLRPCHandler) call(ctx context.Context, client *xmlrpc.Client, method string, args []interface{}) (interface{}, error) {
	if deadline, ok := ctx.Deadline(); !ok || deadline.IsZero() {
		if h.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
			defer cancel()
		}
	}

	resCh := make(chan xmlrpcResult, 1)
	go func() {
		var out interface{}
		err := client.Call(method, args, &out)
		resCh <- xmlrpcResult{value: out, err: err}
	}()

	select {
	case <-ctx.Done():
		logging.Debug("Odoo", "xml-rpc %s abandoned: %v", method, ctx.Err())
		return nil, NewNetworkError("xml-rpc %s did not complete in time", method).WithCause(ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			return nil, classifyXMLRPCError(res.err, method)
		}
		return res.value, nil
	}
}

// faultPrefix is the "Fault(N): " marker kolo prepends when it stringifies
// a server fault into the rpc response header.
var faultPrefix = regexp.MustCompile(`^Fault\((-?\d+)\): `)

// classifyXMLRPCError maps kolo errors into the gateway taxonomy. Server
// faults go through the shared fault classifier; anything else is network.
//
// kolo does not surface faults as xmlrpc.FaultError: its codec folds them
// into the net/rpc response header, so they arrive here as rpc.ServerError
// strings of the form "Fault(1): <message>".
func classifyXMLRPCError(err error, method string) *GatewayError {
	var remote rpc.ServerError
	if errors.As(err, &remote) {
		return ClassifyFault(faultPrefix.ReplaceAllString(string(remote), ""))
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return ClassifyFault(fault.String)
	}
	return NewNetworkError("xml-rpc %s failed", method).WithCause(err)
}

// Authenticate implements RpcHandler.
func (h *XMLRPCHandler) Authenticate(ctx context.Context, db, username, secret string) (int64, error) {
	raw, err := h.call(ctx, h.common, "authenticate", []interface{}{db, username, secret, map[string]interface{}{}})
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
	logging.Debug("Odoo", "xml-rpc authenticated %s on %s as uid %d", username, db, uid)
	return uid, nil
}

// ensureUID lazily authenticates with the configured global credentials.
func (h *XMLRPCHandler) ensureUID(ctx context.Context) (int64, error) {
	h.mu.Lock()
	uid := h.uid
	h.mu.Unlock()
	if uid != 0 {
		return uid, nil
	}
	return h.Authenticate(ctx, h.opts.Database, h.opts.Username, h.opts.APIKey)
}

// ExecuteKw implements RpcHandler.
func (h *XMLRPCHandler) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
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
	return h.call(ctx, h.object, "execute_kw", params)
}

// Call implements RpcHandler. The service name selects the endpoint.
func (h *XMLRPCHandler) Call(ctx context.Context, service, method string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	switch service {
	case ServiceCommon:
		return h.call(ctx, h.common, method, args)
	case ServiceObject:
		return h.call(ctx, h.object, method, args)
	default:
		return nil, NewProtocolError("unknown xml-rpc service %q", service)
	}
}

// Close implements RpcHandler.
func (h *XMLRPCHandler) Close() error {
	err1 := h.common.Close()
	err2 := h.object.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
