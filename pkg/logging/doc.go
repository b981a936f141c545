// Package logging provides a structured logging system for the gateway with
// unified log handling and flexible output formatting.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// # Structured Logging
// All log entries include:
//   - Timestamp
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional formatting
//   - Optional error information
//
// # Usage
//
//	import "odoomcp/pkg/logging"
//
//	// Initialize with Info level text logging to stderr
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	// Or select JSON output for machine-readable logs
//	logging.Init(logging.LevelDebug, logging.FormatJSON, os.Stderr)
//
//	// Log messages
//	logging.Info("Gateway", "Listening on %s", addr)
//	logging.Debug("Pool", "Connection %d acquired", id)
//	logging.Warn("RateLimit", "Client %s throttled", key)
//	logging.Error("Odoo", err, "execute_kw failed for %s.%s", model, method)
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Gateway**: server lifecycle and transport selection
//   - **Dispatcher**: per-request pipeline decisions
//   - **Pool**: connection construction, health, acquire/release
//   - **Odoo**: RPC traffic and fault classification
//   - **SessionStore**: session lifecycle and sweeping
//   - **Cache**: hits, misses, invalidation
//   - **Audit**: one structured record per dispatched tool call
//
// When the gateway runs on the stdio transport, logs MUST go to stderr;
// stdout carries the JSON-RPC protocol stream.
package logging
