package config

import "time"

// RPC protocol selection for the Odoo backend.
const (
	ProtocolXMLRPC  = "xmlrpc"
	ProtocolJSONRPC = "jsonrpc"
)

// Transport selection for the MCP side.
const (
	TransportStdio          = "stdio"
	TransportHTTP           = "http"
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
)

// GatewayConfig is the top-level configuration for the gateway.
// Immutable after start; every component receives it (or a slice of it) at
// construction time. Durations are expressed in the unit named by the key
// (seconds unless stated otherwise) so the YAML surface stays plain.
type GatewayConfig struct {
	// Odoo backend connection
	OdooURL  string `yaml:"odoo_url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
	Protocol string `yaml:"protocol,omitempty"` // xmlrpc | jsonrpc

	// MCP transport
	ConnectionType string `yaml:"connection_type,omitempty"` // stdio | http | streamable_http | sse

	// Connection pool
	PoolSize                        int     `yaml:"pool_size,omitempty"`
	TimeoutSeconds                  int     `yaml:"timeout,omitempty"`
	RetryCount                      int     `yaml:"retry_count,omitempty"`
	BaseRetryDelaySeconds           float64 `yaml:"base_retry_delay,omitempty"`
	ConnectionHealthIntervalSeconds int     `yaml:"connection_health_interval,omitempty"`

	// Sessions
	SessionTimeoutMinutes         int `yaml:"session_timeout_minutes,omitempty"`
	SessionCleanupIntervalSeconds int `yaml:"session_cleanup_interval,omitempty"`
	MaxSessions                   int `yaml:"max_sessions,omitempty"`

	// Rate limiting
	RequestsPerMinute       int `yaml:"requests_per_minute,omitempty"`
	RateLimitMaxWaitSeconds int `yaml:"rate_limit_max_wait_seconds,omitempty"`

	// Caching
	CacheTTLSeconds       int `yaml:"cache_ttl,omitempty"`
	CacheMaxEntries       int `yaml:"cache_max_entries,omitempty"`
	SchemaCacheTTLSeconds int `yaml:"schema_cache_ttl,omitempty"`

	// Request shaping
	MaxPayloadSize  int `yaml:"max_payload_size,omitempty"`
	MaxFieldsLimit  int `yaml:"max_fields_limit,omitempty"`
	MaxRecordsLimit int `yaml:"max_records_limit,omitempty"`

	// Optional YAML file describing curated workflow actions per model.
	ActionsRegistryPath string `yaml:"actions_registry,omitempty"`

	// Security
	PIIMasking      bool     `yaml:"pii_masking"`
	PIIFields       []string `yaml:"pii_fields,omitempty"` // extends the built-in field list
	AuditLogging    bool     `yaml:"audit_logging"`
	ImplicitDomains bool     `yaml:"implicit_domains"`

	// Event streaming
	AllowedOrigins  []string `yaml:"allowed_origins,omitempty"`
	SSEQueueMaxSize int      `yaml:"sse_queue_maxsize,omitempty"`
	BusEnabled      bool     `yaml:"bus_enabled,omitempty"`
	BusChannels     []string `yaml:"bus_channels,omitempty"`

	TLS     TLSConfig     `yaml:"tls,omitempty"`
	HTTP    HTTPConfig    `yaml:"http,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// TLSConfig carries the TLS options for the Odoo backend connection.
type TLSConfig struct {
	Version            string `yaml:"version,omitempty"` // "1.2" | "1.3"
	CACertPath         string `yaml:"ca_cert_path,omitempty"`
	ClientCertPath     string `yaml:"client_cert_path,omitempty"`
	ClientKeyPath      string `yaml:"client_key_path,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// HTTPConfig defines the bind address for the HTTP-family transports.
type HTTPConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// LoggingConfig selects log verbosity and output encoding.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug | info | warn | error
	Format string `yaml:"format,omitempty"` // text | json
}

// Timeout returns the per-request timeout as a duration.
func (c *GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BaseRetryDelay returns the initial backoff interval for pool construction.
func (c *GatewayConfig) BaseRetryDelay() time.Duration {
	return time.Duration(c.BaseRetryDelaySeconds * float64(time.Second))
}

// ConnectionHealthInterval returns how long a connection may sit idle before
// the health loop probes it.
func (c *GatewayConfig) ConnectionHealthInterval() time.Duration {
	return time.Duration(c.ConnectionHealthIntervalSeconds) * time.Second
}

// SessionTimeout returns the session inactivity TTL.
func (c *GatewayConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// SessionCleanupInterval returns the sweep cadence for expired sessions.
func (c *GatewayConfig) SessionCleanupInterval() time.Duration {
	return time.Duration(c.SessionCleanupIntervalSeconds) * time.Second
}

// RateLimitMaxWait returns the bound on waiting for a rate-limit token.
func (c *GatewayConfig) RateLimitMaxWait() time.Duration {
	return time.Duration(c.RateLimitMaxWaitSeconds) * time.Second
}

// CacheTTL returns the TTL for cached read results.
func (c *GatewayConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SchemaCacheTTL returns how long the schema version fingerprint is trusted.
func (c *GatewayConfig) SchemaCacheTTL() time.Duration {
	return time.Duration(c.SchemaCacheTTLSeconds) * time.Second
}

// ListenAddr returns the host:port string for HTTP-family transports.
func (c *GatewayConfig) ListenAddr() string {
	host := c.HTTP.Host
	if host == "" {
		host = "localhost"
	}
	port := c.HTTP.Port
	if port == 0 {
		port = DefaultHTTPPort
	}
	return hostPort(host, port)
}

// IsStdio reports whether the gateway runs on the stdio transport.
func (c *GatewayConfig) IsStdio() bool {
	return c.ConnectionType == TransportStdio
}
