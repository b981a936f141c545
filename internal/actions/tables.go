// Package actions discovers and executes workflow methods on Odoo records.
// Discovery merges a curated registry, per-model baselines and state
// transition tables; execution only admits method names matching the safety
// allowlist.
package actions

import "strings"

// allowedMethodPrefixes name the method families an MCP client may trigger.
// Anything else is refused at the gateway, before Odoo sees it.
var allowedMethodPrefixes = []string{
	"action_", "button_", "wizard_", "send_", "confirm_", "cancel_",
	"approve_", "reject_", "validate_", "process_", "generate_",
}

// coreMethods are the ORM primitives. They have dedicated tools with
// normalization, caching and masking, so the action surface refuses them.
var coreMethods = map[string]bool{
	"create": true, "copy": true, "unlink": true, "write": true, "read": true,
	"search": true, "search_read": true, "name_get": true,
	"name_search": true, "fields_get": true, "fields_view_get": true,
}

// stateActions maps model → state → the workflow methods that make sense
// from that state.
var stateActions = map[string]map[string][]string{
	"sale.order": {
		"draft":  {"action_confirm", "action_cancel"},
		"sent":   {"action_confirm", "action_cancel"},
		"sale":   {"action_cancel", "action_done"},
		"done":   {"action_cancel"},
		"cancel": {"action_draft"},
	},
	"account.move": {
		"draft":  {"action_post", "action_cancel"},
		"posted": {"action_cancel", "action_reverse"},
		"cancel": {"action_draft"},
	},
	"stock.picking": {
		"draft":     {"action_confirm", "action_cancel"},
		"confirmed": {"action_assign", "action_cancel"},
		"assigned":  {"action_assign", "button_validate"},
		"done":      {"action_cancel"},
		"cancel":    {"action_draft"},
	},
	"crm.lead": {
		"new":       {"action_set_won", "action_set_lost"},
		"qualified": {"action_set_won", "action_set_lost"},
		"won":       {"action_set_lost"},
		"lost":      {"action_set_won"},
	},
}

// baselineActions are always offered for well-known models, independent of
// the record's state.
var baselineActions = map[string][]Action{
	"sale.order": {
		{Method: "action_confirm", Label: "Confirm Order", Category: "workflow"},
		{Method: "action_cancel", Label: "Cancel Order", Category: "workflow"},
		{Method: "action_done", Label: "Mark Done", Category: "workflow"},
	},
	"account.move": {
		{Method: "action_post", Label: "Post Entry", Category: "workflow"},
		{Method: "action_cancel", Label: "Cancel Entry", Category: "workflow"},
		{Method: "action_reverse", Label: "Reverse Entry", Category: "workflow"},
	},
	"stock.picking": {
		{Method: "action_confirm", Label: "Confirm Transfer", Category: "workflow"},
		{Method: "action_assign", Label: "Assign Operations", Category: "workflow"},
		{Method: "button_validate", Label: "Validate Transfer", Category: "workflow"},
	},
}

// IsActionMethod reports whether method matches the workflow allowlist.
func IsActionMethod(method string) bool {
	for _, prefix := range allowedMethodPrefixes {
		if strings.HasPrefix(method, prefix) && len(method) > len(prefix) {
			return true
		}
	}
	return false
}

// IsCoreMethod reports whether method is an ORM primitive.
func IsCoreMethod(method string) bool {
	return coreMethods[method]
}

// MethodAllowed reports whether a raw execute_kw passthrough may invoke
// method: ORM primitives or allowlisted workflow methods.
func MethodAllowed(method string) bool {
	return IsCoreMethod(method) || IsActionMethod(method)
}

// StateActions returns the workflow methods suggested for a model in the
// given state.
func StateActions(model, state string) []string {
	return stateActions[model][state]
}

// labelFor derives a human label from a method name: action_set_won
// becomes "Action Set Won".
func labelFor(method string) string {
	words := strings.Split(method, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
