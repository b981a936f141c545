package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single invalid configuration field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add appends a new validation error.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{Field: field, Value: val, Message: message})
}

var validProtocols = []string{ProtocolXMLRPC, ProtocolJSONRPC}

var validTransports = []string{
	TransportStdio, TransportHTTP, TransportStreamableHTTP, TransportSSE,
}

// Validate checks the configuration for completeness and consistency.
// All problems are collected so an operator fixes the file in one pass.
func (c *GatewayConfig) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.OdooURL) == "" {
		errs.Add("odoo_url", "is required")
	} else if u, err := url.Parse(c.OdooURL); err != nil {
		errs.Add("odoo_url", fmt.Sprintf("is not a valid URL: %v", err), c.OdooURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("odoo_url", "scheme must be http or https", c.OdooURL)
	}

	if strings.TrimSpace(c.Database) == "" {
		errs.Add("database", "is required")
	}
	if strings.TrimSpace(c.Username) == "" {
		errs.Add("username", "is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		errs.Add("api_key", "is required (set it in the file or via "+EnvOdooAPIKey+")")
	}

	if !oneOf(c.Protocol, validProtocols) {
		errs.Add("protocol", fmt.Sprintf("must be one of %s", strings.Join(validProtocols, ", ")), c.Protocol)
	}
	if !oneOf(c.ConnectionType, validTransports) {
		errs.Add("connection_type", fmt.Sprintf("must be one of %s", strings.Join(validTransports, ", ")), c.ConnectionType)
	}

	if c.PoolSize < 1 {
		errs.Add("pool_size", "must be at least 1", c.PoolSize)
	}
	if c.TimeoutSeconds < 1 {
		errs.Add("timeout", "must be at least 1 second", c.TimeoutSeconds)
	}
	if c.RetryCount < 0 {
		errs.Add("retry_count", "must not be negative", c.RetryCount)
	}
	if c.BaseRetryDelaySeconds <= 0 {
		errs.Add("base_retry_delay", "must be positive", c.BaseRetryDelaySeconds)
	}
	if c.SessionTimeoutMinutes < 1 {
		errs.Add("session_timeout_minutes", "must be at least 1 minute", c.SessionTimeoutMinutes)
	}
	if c.MaxSessions < 1 {
		errs.Add("max_sessions", "must be at least 1", c.MaxSessions)
	}
	if c.RateLimitMaxWaitSeconds < 0 {
		errs.Add("rate_limit_max_wait_seconds", "must not be negative", c.RateLimitMaxWaitSeconds)
	}
	if c.CacheTTLSeconds < 0 {
		errs.Add("cache_ttl", "must not be negative", c.CacheTTLSeconds)
	}
	if c.CacheMaxEntries < 1 {
		errs.Add("cache_max_entries", "must be at least 1", c.CacheMaxEntries)
	}
	if c.MaxPayloadSize < 1 {
		errs.Add("max_payload_size", "must be at least 1 byte", c.MaxPayloadSize)
	}
	if c.MaxFieldsLimit < 1 {
		errs.Add("max_fields_limit", "must be at least 1", c.MaxFieldsLimit)
	}
	if c.MaxRecordsLimit < 1 {
		errs.Add("max_records_limit", "must be at least 1", c.MaxRecordsLimit)
	}
	if c.SSEQueueMaxSize < 1 {
		errs.Add("sse_queue_maxsize", "must be at least 1", c.SSEQueueMaxSize)
	}

	switch c.TLS.Version {
	case "", "1.2", "1.3":
	default:
		errs.Add("tls.version", "must be 1.2 or 1.3", c.TLS.Version)
	}
	if c.TLS.ClientCertPath != "" && c.TLS.ClientKeyPath == "" {
		errs.Add("tls.client_key_path", "is required when tls.client_cert_path is set")
	}

	if c.ConnectionType != TransportStdio {
		if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
			errs.Add("http.port", "must be between 1 and 65535", c.HTTP.Port)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
