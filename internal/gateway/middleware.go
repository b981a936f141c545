package gateway

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"odoomcp/internal/ratelimit"
	"odoomcp/internal/tools"
)

type clientAddrKey struct{}

// WithClientAddr records the transport-level peer identity on the
// context. The HTTP transports install it so callers without a session
// rate-limit per remote address instead of sharing one bucket.
func WithClientAddr(ctx context.Context, addr string) context.Context {
	if addr == "" {
		return ctx
	}
	return context.WithValue(ctx, clientAddrKey{}, addr)
}

// ClientAddr returns the peer identity recorded by the transport, if any.
func ClientAddr(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddrKey{}).(string)
	return addr
}

// rateKey picks the bucket a call counts against: the session when one
// is offered, then the transport peer, then the shared service bucket
// (stdio has exactly one caller).
func rateKey(ctx context.Context, args map[string]interface{}) string {
	if sid, ok := args["session_id"].(string); ok && sid != "" {
		return "session:" + sid
	}
	if addr := ClientAddr(ctx); addr != "" {
		return "addr:" + addr
	}
	return serviceClient
}

// wrapTool layers argument validation and rate limiting over a tool
// handler. Rejected calls never reach the dispatcher, and both failure
// modes surface as structured tool errors rather than protocol errors.
func wrapTool(def tools.Definition, limiter *ratelimit.Limiter) server.ToolHandlerFunc {
	inner := def.Handler
	schema := def.Schema
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := tools.Arguments(req.Params.Arguments)

		if err := tools.ValidateArguments(schema, args); err != nil {
			return tools.ErrorResult(err), nil
		}
		if err := limiter.Wait(ctx, rateKey(ctx, args)); err != nil {
			return tools.ErrorResult(err), nil
		}
		return inner(ctx, req)
	}
}
