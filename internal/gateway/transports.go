package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"odoomcp/internal/bus"
	"odoomcp/internal/config"
	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// readHeaderTimeout guards the HTTP listener against Slowloris clients.
// Only the header phase is bounded: /events and the MCP endpoints hold
// their streams open indefinitely.
const readHeaderTimeout = 10 * time.Second

// keepAliveInterval paces SSE keepalive comments on /events and the MCP
// SSE transport.
const keepAliveInterval = 30 * time.Second

// shutdownGrace bounds how long Stop waits for in-flight requests.
const shutdownGrace = 5 * time.Second

func (s *Server) startTransport() error {
	switch s.cfg.ConnectionType {
	case config.TransportStdio, "":
		return s.startStdio()
	case config.TransportHTTP, config.TransportStreamableHTTP, config.TransportSSE:
		return s.startHTTP()
	default:
		return odoo.NewConfigError("unknown connection_type %q", s.cfg.ConnectionType)
	}
}

// startStdio serves MCP over stdin/stdout. Logging goes exclusively to
// stderr in this mode; the app layer configures that before Start.
func (s *Server) startStdio() error {
	logging.Info("Gateway", "Serving MCP over stdio")
	s.stdioServer = server.NewStdioServer(s.mcp)
	stdio := s.stdioServer

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := stdio.Listen(s.ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Gateway", err, "stdio server error")
		}
		s.reportTransportExit(err)
	}()
	return nil
}

// startHTTP brings up the shared listener: the MCP endpoint for the
// selected transport flavour, /health, and the /events broadcast stream,
// all behind the CORS policy.
func (s *Server) startHTTP() error {
	addr := s.cfg.ListenAddr()

	var mcpHandler http.Handler
	switch s.cfg.ConnectionType {
	case config.TransportSSE:
		s.sseServer = server.NewSSEServer(
			s.mcp,
			server.WithBaseURL(fmt.Sprintf("http://%s", addr)),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(keepAliveInterval),
			server.WithSSEContextFunc(clientAddrContext),
		)
		mcpHandler = s.sseServer
	case config.TransportHTTP:
		// Classic single-shot POST /mcp: one request, one response, no
		// server-held session state.
		s.streamableHTTPServer = server.NewStreamableHTTPServer(
			s.mcp,
			server.WithEndpointPath("/mcp"),
			server.WithStateLess(true),
			server.WithHTTPContextFunc(clientAddrContext),
		)
		mcpHandler = s.streamableHTTPServer
	default: // streamable_http
		s.streamableHTTPServer = server.NewStreamableHTTPServer(
			s.mcp,
			server.WithEndpointPath("/mcp"),
			server.WithHTTPContextFunc(clientAddrContext),
		)
		mcpHandler = s.streamableHTTPServer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.Handle("/", mcpHandler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.cfg.AllowedOrigins, mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logging.Info("Gateway", "Serving MCP over %s at http://%s", s.cfg.ConnectionType, addr)
	srv := s.httpServer
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Gateway", err, "HTTP server error")
		}
		s.reportTransportExit(err)
	}()
	return nil
}

func (s *Server) stopTransport(ctx context.Context) {
	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Gateway", err, "Error shutting down HTTP server")
		}
	}
	// The stdio server stops when its context is cancelled.
}

// clientAddrContext records the remote host on the request context so
// callers without a session rate-limit per peer.
func clientAddrContext(ctx context.Context, r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return WithClientAddr(ctx, host)
}

// handleHealth reports pool and session liveness: 200 once at least one
// connection exists, 503 before warm-up or after the pool drains.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.health()
	w.Header().Set("Content-Type", "application/json")
	if !snap.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logging.Debug("Gateway", "health encode failed: %v", err)
	}
}

// handleEvents streams resource updates as text/event-stream. An optional
// ?uri= query narrows the stream to a single resource; the default stream
// carries every update.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var sink *bus.Sink
	if uri := r.URL.Query().Get("uri"); uri != "" {
		if err := s.resources.Validate(uri); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sink = s.bus.Subscribe(uri)
	} else {
		sink = s.bus.SubscribeAll()
	}
	defer sink.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(keepAliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case update, open := <-sink.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  bus.MethodResourcesUpdated,
				"params":  update.Params,
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// corsMiddleware applies the allowed_origins policy: origins match
// exactly unless the list carries "*". Preflights are answered here; an
// empty list disables CORS handling entirely.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	if len(allowed) == 0 {
		return next
	}
	wildcard := false
	exact := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			wildcard = true
			continue
		}
		exact[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case exact[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, Last-Event-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
