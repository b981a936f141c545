package odoo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"odoomcp/internal/config"
)

// Odoo service names addressed through Call.
const (
	ServiceCommon = "common"
	ServiceObject = "object"
)

// RpcHandler is the protocol-neutral surface for talking to one Odoo
// backend. Both the XML-RPC and JSON-RPC variants implement it; the pool
// hands out handlers without callers knowing which wire protocol is in use.
//
// Handlers keep the authenticated uid internally and re-authenticate lazily
// with the configured global credentials when it is unset.
type RpcHandler interface {
	// Authenticate exchanges credentials for a numeric uid via the common
	// service. The uid is retained for subsequent ExecuteKw calls.
	Authenticate(ctx context.Context, db, username, secret string) (int64, error)

	// ExecuteKw invokes object.execute_kw on the given model and method
	// with positional args and named kwargs.
	ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

	// Call is the generic fallthrough for non-execute_kw service methods
	// (common.version, common.authenticate, ...). Args are sent verbatim.
	Call(ctx context.Context, service, method string, args []interface{}) (interface{}, error)

	// Close releases the handler's network resources.
	Close() error
}

// ClientOptions carries everything a handler needs to reach Odoo. Narrower
// than GatewayConfig so handlers stay constructible in tests.
type ClientOptions struct {
	URL      string
	Database string
	Username string
	APIKey   string
	Timeout  time.Duration
	TLS      TLSOptions
}

// TLSOptions configures the TLS client side of the Odoo connection.
type TLSOptions struct {
	MinVersion         string // "1.2" | "1.3"; default 1.3
	CACertPath         string
	ClientCertPath     string
	ClientKeyPath      string
	InsecureSkipVerify bool
}

// OptionsFromConfig extracts handler options from the gateway config.
func OptionsFromConfig(cfg *config.GatewayConfig) ClientOptions {
	return ClientOptions{
		URL:      cfg.OdooURL,
		Database: cfg.Database,
		Username: cfg.Username,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout(),
		TLS: TLSOptions{
			MinVersion:         cfg.TLS.Version,
			CACertPath:         cfg.TLS.CACertPath,
			ClientCertPath:     cfg.TLS.ClientCertPath,
			ClientKeyPath:      cfg.TLS.ClientKeyPath,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}
}

// NewHandler constructs the RpcHandler variant selected by protocol.
func NewHandler(protocol string, opts ClientOptions) (RpcHandler, error) {
	switch protocol {
	case config.ProtocolXMLRPC:
		return NewXMLRPCHandler(opts)
	case config.ProtocolJSONRPC:
		return NewJSONRPCHandler(opts)
	default:
		return nil, NewConfigError("unknown rpc protocol %q", protocol)
	}
}

// NewHTTPTransport builds the TLS-configured transport shared by the
// handler variants and the bus poller.
func NewHTTPTransport(opts TLSOptions) (*http.Transport, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if opts.MinVersion == "1.2" {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
	if opts.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
	}

	if opts.CACertPath != "" {
		pem, err := os.ReadFile(opts.CACertPath)
		if err != nil {
			return nil, NewConfigError("cannot read CA bundle %s", opts.CACertPath).WithCause(err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, NewConfigError("no certificates found in CA bundle %s", opts.CACertPath)
		}
		tlsCfg.RootCAs = pool
	}

	if opts.ClientCertPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.ClientCertPath, opts.ClientKeyPath)
		if err != nil {
			return nil, NewConfigError("cannot load client certificate %s", opts.ClientCertPath).WithCause(err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsCfg,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}, nil
}

// uidToInt64 coerces the authenticate result. Odoo returns an integer uid on
// success and boolean false on bad credentials.
func uidToInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if !x {
			return 0, NewAuthError("invalid credentials")
		}
		return 0, NewProtocolError("unexpected boolean uid from authenticate")
	default:
		return 0, NewProtocolError("unexpected authenticate result type %T", v)
	}
}

// VersionProbe issues the cheap common.version call used as a health check.
func VersionProbe(ctx context.Context, h RpcHandler) error {
	_, err := h.Call(ctx, ServiceCommon, "version", nil)
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}
	return nil
}
