package security

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// Event captures one dispatched operation for the audit trail.
type Event struct {
	Client   string
	Tool     string
	Model    string
	Method   string
	Args     []interface{}
	Kwargs   map[string]interface{}
	Duration time.Duration
	Success  bool
	Err      error
	Result   interface{}
}

// AuditLogger writes one structured record per dispatched operation.
// Arguments are digested, never logged verbatim, so the trail itself leaks
// no record content.
type AuditLogger struct {
	enabled bool
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// Enabled reports whether audit logging is active.
func (a *AuditLogger) Enabled() bool {
	return a.enabled
}

// Log emits the audit record for ev. Disabled loggers drop it.
func (a *AuditLogger) Log(ev Event) {
	if !a.enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("client", ev.Client),
		slog.String("tool", ev.Tool),
		slog.String("model", ev.Model),
		slog.String("method", ev.Method),
		slog.String("arg_digest", DigestArgs(ev.Args, ev.Kwargs)),
		slog.String("result_summary", summarizeResult(ev.Result)),
		slog.Int64("duration_ms", ev.Duration.Milliseconds()),
		slog.Bool("success", ev.Success),
	}
	if ev.Err != nil {
		ge := odoo.AsGatewayError(ev.Err)
		attrs = append(attrs,
			slog.String("error_kind", string(ge.Kind)),
			slog.Int("code", ge.Code()),
		)
	}
	logging.Record("Audit", "operation dispatched", attrs...)
}

// DigestArgs produces a short stable digest of a call's arguments. Map keys
// marshal in sorted order, so equal calls digest equally.
func DigestArgs(args []interface{}, kwargs map[string]interface{}) string {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	payload, err := json.Marshal(struct {
		Args   []interface{}          `json:"args"`
		Kwargs map[string]interface{} `json:"kwargs"`
	}{args, kwargs})
	if err != nil {
		payload = []byte(fmt.Sprint(args, kwargs))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:12]
}

// summarizeResult describes a result's shape without exposing its content.
func summarizeResult(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return "none"
	case []interface{}:
		return fmt.Sprintf("list(%d)", len(v))
	case map[string]interface{}:
		return fmt.Sprintf("object(%d)", len(v))
	default:
		return "scalar"
	}
}
