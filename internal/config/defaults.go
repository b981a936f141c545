package config

import (
	"net"
	"strconv"
)

// Default values applied before the YAML file is unmarshalled. Keys absent
// from the file keep these values, so a minimal config only needs the Odoo
// connection details.
const (
	DefaultProtocol       = ProtocolXMLRPC
	DefaultConnectionType = TransportStdio

	DefaultPoolSize                = 10
	DefaultTimeoutSeconds          = 30
	DefaultRetryCount              = 3
	DefaultBaseRetryDelaySeconds   = 1.0
	DefaultHealthIntervalSeconds   = 60
	DefaultSessionTimeoutMinutes   = 120
	DefaultSessionCleanupSeconds   = 60
	DefaultMaxSessions             = 100
	DefaultRequestsPerMinute       = 120
	DefaultRateLimitMaxWaitSeconds = 0
	DefaultCacheTTLSeconds         = 300
	DefaultCacheMaxEntries         = 128
	DefaultSchemaCacheTTLSeconds   = 600
	DefaultMaxPayloadSize          = 1024 * 1024
	DefaultMaxFieldsLimit          = 100
	DefaultMaxRecordsLimit         = 200
	DefaultSSEQueueMaxSize         = 32
	DefaultHTTPHost                = "localhost"
	DefaultHTTPPort                = 8080
	DefaultTLSVersion              = "1.3"
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "text"
)

// DefaultConfig returns the gateway configuration with every tunable at its
// default. Credentials and the Odoo URL have no defaults; Validate rejects a
// config that leaves them empty.
func DefaultConfig() GatewayConfig {
	return GatewayConfig{
		Protocol:       DefaultProtocol,
		ConnectionType: DefaultConnectionType,

		PoolSize:                        DefaultPoolSize,
		TimeoutSeconds:                  DefaultTimeoutSeconds,
		RetryCount:                      DefaultRetryCount,
		BaseRetryDelaySeconds:           DefaultBaseRetryDelaySeconds,
		ConnectionHealthIntervalSeconds: DefaultHealthIntervalSeconds,

		SessionTimeoutMinutes:         DefaultSessionTimeoutMinutes,
		SessionCleanupIntervalSeconds: DefaultSessionCleanupSeconds,
		MaxSessions:                   DefaultMaxSessions,

		RequestsPerMinute:       DefaultRequestsPerMinute,
		RateLimitMaxWaitSeconds: DefaultRateLimitMaxWaitSeconds,

		CacheTTLSeconds:       DefaultCacheTTLSeconds,
		CacheMaxEntries:       DefaultCacheMaxEntries,
		SchemaCacheTTLSeconds: DefaultSchemaCacheTTLSeconds,

		MaxPayloadSize:  DefaultMaxPayloadSize,
		MaxFieldsLimit:  DefaultMaxFieldsLimit,
		MaxRecordsLimit: DefaultMaxRecordsLimit,

		PIIMasking:      true,
		AuditLogging:    true,
		ImplicitDomains: true,

		AllowedOrigins:  []string{"*"},
		SSEQueueMaxSize: DefaultSSEQueueMaxSize,

		TLS: TLSConfig{Version: DefaultTLSVersion},
		HTTP: HTTPConfig{
			Host: DefaultHTTPHost,
			Port: DefaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
