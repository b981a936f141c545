package odoo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the failure class of a gateway error. The string value
// travels on the wire in the JSON-RPC error envelope under data.kind.
type Kind string

const (
	KindGeneral            Kind = "general"
	KindAuth               Kind = "auth"
	KindNetwork            Kind = "network"
	KindProtocol           Kind = "protocol"
	KindConfig             Kind = "configuration"
	KindPoolTimeout        Kind = "pool_timeout"
	KindPoolConnection     Kind = "pool_connection"
	KindSession            Kind = "session"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "record_not_found"
	KindMethodNotFound     Kind = "method_not_found_on_model"
	KindRateLimit          Kind = "rate_limit"
	KindResource           Kind = "resource"
	KindTool               Kind = "tool"
	KindOdooMethodNotFound Kind = "odoo_method_not_found"
	KindInternal           Kind = "internal"
)

// ValidationKind narrows a validation failure. Carried in data.details.
type ValidationKind string

const (
	ValidationDomain      ValidationKind = "domain"
	ValidationField       ValidationKind = "field"
	ValidationSchema      ValidationKind = "schema"
	ValidationAggregation ValidationKind = "aggregation"
	ValidationGeneric     ValidationKind = "generic"
)

// JSON-RPC error codes. The standard codes (-32700..-32603) belong to the
// protocol layer; the -320xx block is reserved for gateway failure kinds.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeGeneral             = -32000
	CodeAuth                = -32001
	CodeNetwork             = -32002
	CodeProtocol            = -32003
	CodeConfig              = -32004
	CodeConnection          = -32005
	CodeSession             = -32006
	CodeValidation          = -32007
	CodeRecordNotFound      = -32008
	CodeModelMethodNotFound = -32009
	CodeRateLimit           = -32010
	CodeResource            = -32011
	CodeTool                = -32012
	CodeOdooMethodNotFound  = -32016
)

// CodeForKind maps every Kind to its JSON-RPC error code. Total: unknown
// kinds fall back to the general gateway code.
func CodeForKind(k Kind) int {
	switch k {
	case KindAuth:
		return CodeAuth
	case KindNetwork:
		return CodeNetwork
	case KindProtocol:
		return CodeProtocol
	case KindConfig:
		return CodeConfig
	case KindPoolTimeout, KindPoolConnection:
		return CodeConnection
	case KindSession:
		return CodeSession
	case KindValidation:
		return CodeValidation
	case KindNotFound:
		return CodeRecordNotFound
	case KindMethodNotFound:
		return CodeModelMethodNotFound
	case KindRateLimit:
		return CodeRateLimit
	case KindResource:
		return CodeResource
	case KindTool:
		return CodeTool
	case KindOdooMethodNotFound:
		return CodeOdooMethodNotFound
	case KindInternal:
		return CodeInternal
	default:
		return CodeGeneral
	}
}

// GatewayError is the single error carrier crossing component boundaries.
// Message stays sanitized for clients; the wrapped cause is for logs only.
type GatewayError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Code returns the JSON-RPC error code for this error.
func (e *GatewayError) Code() int {
	return CodeForKind(e.Kind)
}

// WithCause attaches the underlying error without changing the client-facing
// message.
func (e *GatewayError) WithCause(err error) *GatewayError {
	e.cause = err
	return e
}

// WithDetail adds one key to the details payload.
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// JSONRPCError renders the gateway's error envelope for the given request id.
// The wrapped cause never leaks; details carry only sanitized values.
func (e *GatewayError) JSONRPCError(id interface{}) map[string]interface{} {
	errObj := map[string]interface{}{
		"code":    e.Code(),
		"message": e.Message,
		"data": map[string]interface{}{
			"kind": string(e.Kind),
		},
	}
	if len(e.Details) > 0 {
		errObj["data"].(map[string]interface{})["details"] = e.Details
	}
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   errObj,
	}
}

// NewError builds a GatewayError with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *GatewayError {
	return &GatewayError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewConfigError reports an invalid or incomplete gateway configuration.
func NewConfigError(format string, args ...interface{}) *GatewayError {
	return NewError(KindConfig, format, args...)
}

// NewNetworkError reports a transport-level failure talking to Odoo.
func NewNetworkError(format string, args ...interface{}) *GatewayError {
	return NewError(KindNetwork, format, args...)
}

// NewProtocolError reports a malformed or unexpected RPC exchange.
func NewProtocolError(format string, args ...interface{}) *GatewayError {
	return NewError(KindProtocol, format, args...)
}

// NewAuthError reports failed authentication or denied access.
func NewAuthError(format string, args ...interface{}) *GatewayError {
	return NewError(KindAuth, format, args...)
}

// NewSessionError reports an unknown or expired session id.
func NewSessionError(format string, args ...interface{}) *GatewayError {
	return NewError(KindSession, format, args...)
}

// NewPoolTimeoutError reports that no connection became available in time.
func NewPoolTimeoutError(format string, args ...interface{}) *GatewayError {
	return NewError(KindPoolTimeout, format, args...)
}

// NewPoolConnectionError reports a failed connection construction.
func NewPoolConnectionError(format string, args ...interface{}) *GatewayError {
	return NewError(KindPoolConnection, format, args...)
}

// NewRateLimitError reports an exhausted token bucket; retryAfterSeconds
// tells the client when a retry may succeed.
func NewRateLimitError(retryAfterSeconds float64) *GatewayError {
	e := NewError(KindRateLimit, "rate limit exceeded, retry later")
	return e.WithDetail("retry_after_seconds", retryAfterSeconds)
}

// NewValidationError reports rejected input with its validation subkind.
func NewValidationError(vk ValidationKind, format string, args ...interface{}) *GatewayError {
	e := NewError(KindValidation, format, args...)
	return e.WithDetail("validation", string(vk))
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(format string, args ...interface{}) *GatewayError {
	return NewError(KindNotFound, format, args...)
}

// NewMethodNotFoundError reports a method the gateway refuses to route for
// the model (unknown target method or disallowed action name).
func NewMethodNotFoundError(model, method string) *GatewayError {
	e := NewError(KindMethodNotFound, "method '%s' is not available on model '%s'", method, model)
	e.WithDetail("model", model)
	return e.WithDetail("method", method)
}

// NewOdooMethodNotFoundError reports Odoo's own method-does-not-exist fault.
func NewOdooMethodNotFoundError(model, method string) *GatewayError {
	e := NewError(KindOdooMethodNotFound, "the method '%s' does not exist on the model '%s'", method, model)
	e.WithDetail("model", model)
	return e.WithDetail("method", method)
}

// NewToolError reports a failure inside a tool handler.
func NewToolError(format string, args ...interface{}) *GatewayError {
	return NewError(KindTool, format, args...)
}

// NewResourceError reports an unreadable or malformed resource URI.
func NewResourceError(format string, args ...interface{}) *GatewayError {
	return NewError(KindResource, format, args...)
}

// NewInternalError reports an unexpected gateway failure. The message is
// generic; the cause carries the specifics for the log.
func NewInternalError(err error) *GatewayError {
	e := NewError(KindInternal, "internal gateway error")
	return e.WithCause(err)
}

// AsGatewayError coerces any error into a *GatewayError. Errors that already
// carry a kind pass through; everything else becomes Internal.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return NewInternalError(err)
}

// Fault string patterns Odoo returns for well-known failures. Odoo renders
// these inside the XML-RPC faultString / JSON-RPC error data, frequently
// wrapped in a Python traceback, so matching is substring-based.
var (
	methodNotExistRe = regexp.MustCompile(`(?i)the method ['"]([^'"]+)['"] does not exist on the model ['"]([^'"]+)['"]`)
	recordMissingRe  = regexp.MustCompile(`(?i)record[^\n]*does not exist|does not exist or has been deleted`)
	aggregationRe    = regexp.MustCompile(`(?i)funzione di aggregazione[^\n]*non valida|invalid aggregation function`)
)

var authFaultMarkers = []string{
	"AccessDenied",
	"AccessError",
	"Session expired",
	"Invalid credentials",
	"authenticate",
}

// ClassifyFault maps an Odoo fault string into the gateway taxonomy. The
// classifier is shared by both RPC variants so a given backend failure
// surfaces identically regardless of protocol.
func ClassifyFault(fault string) *GatewayError {
	if m := methodNotExistRe.FindStringSubmatch(fault); m != nil {
		return NewOdooMethodNotFoundError(m[2], m[1])
	}
	if aggregationRe.MatchString(fault) {
		return NewValidationError(ValidationAggregation, "invalid aggregation function in read_group request").
			WithDetail("fault", truncateFault(fault))
	}
	if strings.Contains(fault, "UserError") || strings.Contains(fault, "ValidationError") {
		return NewValidationError(ValidationGeneric, "odoo rejected the request: %s", firstFaultLine(fault)).
			WithDetail("fault", truncateFault(fault))
	}
	if recordMissingRe.MatchString(fault) {
		return NewNotFoundError("record does not exist or has been deleted").
			WithDetail("fault", truncateFault(fault))
	}
	for _, marker := range authFaultMarkers {
		if strings.Contains(fault, marker) {
			return NewAuthError("odoo denied access").WithDetail("fault", truncateFault(fault))
		}
	}
	return NewProtocolError("odoo fault: %s", firstFaultLine(fault)).
		WithDetail("fault", truncateFault(fault))
}

const maxFaultDetailLen = 512

// truncateFault bounds the fault text carried in error details; Odoo fault
// strings often embed full tracebacks.
func truncateFault(fault string) string {
	fault = strings.TrimSpace(fault)
	if len(fault) > maxFaultDetailLen {
		return fault[:maxFaultDetailLen] + "..."
	}
	return fault
}

// firstFaultLine extracts the most useful single line from a fault string:
// the last non-empty line of a traceback, else the first line.
func firstFaultLine(fault string) string {
	lines := strings.Split(strings.TrimSpace(fault), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return fault
}
