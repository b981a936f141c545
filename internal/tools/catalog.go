package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"odoomcp/internal/actions"
	"odoomcp/internal/config"
	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/internal/session"
	"odoomcp/pkg/logging"
)

// Call is one normalized Odoo invocation handed to the dispatcher.
type Call struct {
	SessionID string
	Tool      string
	Model     string
	Method    string
	Args      []interface{}
	Kwargs    map[string]interface{}
	// Write routes around the cache and triggers invalidation plus
	// resource-update notifications.
	Write    bool
	Warnings []string
}

// Invoker runs a normalized call through the dispatch pipeline:
// authorization, rate limiting, caching, execution, masking and audit.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (interface{}, error)
}

// Deps wires the catalog handlers to the gateway's components.
type Deps struct {
	Config     *config.GatewayConfig
	Invoker    Invoker
	Sessions   *session.Store
	Schema     *odoo.SchemaTracker
	Actions    *actions.Service
	Normalizer *Normalizer
	Ops        *OpLog

	// ResolverFor yields the placeholder resolver for the effective caller
	// (session uid + allowed companies, or the gateway's global identity).
	ResolverFor func(ctx context.Context, sessionID string) domain.Resolver

	// Subscribe / Unsubscribe bind the calling client to resource-update
	// notifications for a URI.
	Subscribe   func(ctx context.Context, uri string) error
	Unsubscribe func(ctx context.Context, uri string) error
}

// Definition pairs a tool declaration with its validation schema and
// handler. The gateway wraps Handler with schema validation and rate
// limiting before registering it.
type Definition struct {
	Tool    mcp.Tool
	Schema  map[string]interface{}
	Handler server.ToolHandlerFunc
}

func define(name, description string, schema map[string]interface{}, handler server.ToolHandlerFunc) Definition {
	props, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)
	return Definition{
		Tool: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: mcp.ToolInputSchema{Type: "object", Properties: props, Required: required},
		},
		Schema:  schema,
		Handler: handler,
	}
}

// Catalog builds every tool the gateway exposes.
func Catalog(d Deps) []Definition {
	defs := []Definition{
		d.echoTool(),
		d.createSessionTool(),
		d.destroySessionTool(),
		d.schemaVersionTool(),
		d.schemaModelsTool(),
		d.schemaFieldsTool(),
		d.domainValidateTool(),
		d.searchReadTool("odoo.search_read"),
		d.readTool("odoo.read"),
		d.createTool("odoo.create"),
		d.writeTool("odoo.write"),
		d.unlinkTool("odoo.unlink"),
		d.nameSearchTool(),
		d.picklistsTool(),
		d.nextStepsTool(),
		d.actionCallTool(),
		d.executeKwTool(),
		d.callMethodTool(),
		d.searchReadTool("odoo_search_read"),
		d.readTool("odoo_read"),
		d.createTool("odoo_create"),
		d.writeTool("odoo_write"),
		d.unlinkTool("odoo_unlink"),
		d.subscribeTool(),
		d.unsubscribeTool(),
	}
	return defs
}

// --- shared handler plumbing ---

func requestArguments(req mcp.CallToolRequest) map[string]interface{} {
	return Arguments(req.Params.Arguments)
}

func sessionIDOf(args map[string]interface{}) string {
	v, _ := args["session_id"].(string)
	return v
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	if v, ok := asInt(args[key]); ok {
		return v
	}
	return fallback
}

// jsonResult renders a tool result as pretty-printed JSON text content.
func jsonResult(v interface{}) *mcp.CallToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult(odoo.NewInternalError(fmt.Errorf("encoding result: %w", err)))
	}
	return mcp.NewToolResultText(string(payload))
}

// ErrorResult renders a failure as the taxonomy envelope inside an
// is-error tool result, so clients see {code, message, data:{kind,details}}
// regardless of transport.
func ErrorResult(err error) *mcp.CallToolResult {
	ge := odoo.AsGatewayError(err)
	body := map[string]interface{}{
		"code":    ge.Code(),
		"message": ge.Message,
		"data":    map[string]interface{}{"kind": string(ge.Kind)},
	}
	if len(ge.Details) > 0 {
		body["data"].(map[string]interface{})["details"] = ge.Details
	}
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return mcp.NewToolResultError(ge.Message)
	}
	return mcp.NewToolResultError(string(payload))
}

func logWarnings(tool string, warnings []string) {
	for _, w := range warnings {
		logging.Warn("Tools", "%s: %s", tool, w)
	}
}

// isWriteMethod reports whether a method mutates records and must bypass
// the cache.
func isWriteMethod(method string) bool {
	switch method {
	case "create", "write", "unlink", "copy":
		return true
	}
	return actions.IsActionMethod(method)
}

// passthroughMethods are the non-core read methods execute_kw admits on
// top of the shared allowlist.
var passthroughMethods = map[string]bool{
	"search_count": true,
	"read_group":   true,
	"default_get":  true,
}

func executeKwAllowed(method string) bool {
	return actions.MethodAllowed(method) || passthroughMethods[method]
}

// --- gateway tools ---

func (d Deps) echoTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"message": strProp("Text to echo back"),
	}, "message")
	return define("echo", "Round-trip a message through the gateway to verify connectivity.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			return jsonResult(map[string]interface{}{"message": stringArg(args, "message")}), nil
		})
}

func (d Deps) createSessionTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"username": strProp("Odoo login"),
		"api_key":  strProp("Odoo API key or password"),
	}, "username", "api_key")
	return define("create_session", "Authenticate against Odoo and obtain a gateway session id.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			sess, err := d.Sessions.Create(ctx, stringArg(args, "username"), stringArg(args, "api_key"))
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"session_id": sess.ID, "uid": sess.UID}), nil
		})
}

func (d Deps) destroySessionTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"session_id": strProp("Session id to discard"),
	}, "session_id")
	return define("destroy_session", "Discard a gateway session.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			d.Sessions.Destroy(stringArg(args, "session_id"))
			return jsonResult(map[string]interface{}{"ok": true}), nil
		})
}

func (d Deps) schemaVersionTool() Definition {
	return define("odoo.schema.version", "Report the current schema fingerprint of the Odoo database.",
		objectSchema(map[string]interface{}{}),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(map[string]interface{}{"version": d.Schema.Version(ctx)}), nil
		})
}

func (d Deps) schemaModelsTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"with_access": boolProp("Only list models the effective user can read (default true)"),
		"session_id":  strProp("Optional session id"),
	})
	return define("odoo.schema.models", "List model names available in the Odoo database.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			withAccess := true
			if v, ok := args["with_access"].(bool); ok {
				withAccess = v
			}
			res := d.ResolverFor(ctx, sessionIDOf(args))
			models, err := d.Schema.ListModels(ctx, res.UID, withAccess)
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"models": models}), nil
		})
}

func (d Deps) schemaFieldsTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model": strProp("Model name, e.g. res.partner"),
	}, "model")
	return define("odoo.schema.fields", "Describe the fields of one model.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			fields, err := d.Schema.ListFields(ctx, stringArg(args, "model"))
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"fields": fields}), nil
		})
}

func (d Deps) domainValidateTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":       strProp("Model the domain targets"),
		"domain_json": anyProp("Domain in raw array, object, or stringified form"),
		"session_id":  strProp("Optional session id"),
	}, "model")
	return define("odoo.domain.validate", "Validate and compile a domain expression without executing it.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			res := d.ResolverFor(ctx, sessionIDOf(args))

			hints := []string{
				fmt.Sprintf("placeholders: %s", strings.Join(domain.PlaceholderTokens(), ", ")),
				fmt.Sprintf("presets: %s", strings.Join(domain.PresetNames(), ", ")),
			}

			compiled, err := d.Normalizer.Compile(args["domain_json"], res)
			if err != nil {
				ge := odoo.AsGatewayError(err)
				errs := []string{ge.Message}
				if recorded, ok := ge.Details["errors"].([]string); ok {
					errs = recorded
				}
				return jsonResult(map[string]interface{}{
					"ok": false, "compiled": nil, "errors": errs, "hints": hints,
				}), nil
			}
			return jsonResult(map[string]interface{}{
				"ok":       true,
				"compiled": compiled.Domain,
				"errors":   []string{},
				"hints":    append(compiled.Warnings, hints...),
			}), nil
		})
}

// --- CRUD tools (modern and legacy names share handlers) ---

func (d Deps) searchReadTool(name string) Definition {
	schema := objectSchema(map[string]interface{}{
		"model":       strProp("Model to query"),
		"domain_json": anyProp("Search domain (array, object, or string form)"),
		"domain":      anyProp("Legacy alias for domain_json"),
		"fields":      strListProp("Fields to return"),
		"limit":       boundedIntProp("Maximum records to return", 0, d.maxRecords()),
		"offset":      map[string]interface{}{"type": "integer", "minimum": 0, "description": "Records to skip"},
		"order":       strProp("Sort specification, e.g. 'date_order desc'"),
		"session_id":  strProp("Optional session id"),
	}, "model")
	return define(name, "Search a model and read matching records in one call.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			sid := sessionIDOf(args)
			if _, ok := args["limit"]; !ok && d.Config.MaxRecordsLimit > 0 {
				args["limit"] = d.Config.MaxRecordsLimit
			}
			call, err := d.Normalizer.SearchFamily("search_read", args, d.ResolverFor(ctx, sid))
			if err != nil {
				return ErrorResult(err), nil
			}
			logWarnings(name, call.Warnings)

			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sid, Tool: name, Model: stringArg(args, "model"),
				Method: "search_read", Args: call.Args, Kwargs: call.Kwargs,
				Warnings: call.Warnings,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			count := 0
			if records, ok := out.([]interface{}); ok {
				count = len(records)
			}
			return jsonResult(map[string]interface{}{
				"records": out, "count": count, "domain": call.Domain,
			}), nil
		})
}

func (d Deps) readTool(name string) Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model to read"),
		"record_ids": idListProp("Record id or list of ids"),
		"ids":        idListProp("Legacy alias for record_ids"),
		"fields":     strListProp("Fields to return (defaults to id and name)"),
		"session_id": strProp("Optional session id"),
	}, "model")
	return define(name, "Read records by id.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			call, err := d.Normalizer.Read(args)
			if err != nil {
				return ErrorResult(err), nil
			}
			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sessionIDOf(args), Tool: name, Model: stringArg(args, "model"),
				Method: "read", Args: call.Args, Kwargs: call.Kwargs,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"records": out}), nil
		})
}

func (d Deps) createTool(name string) Definition {
	schema := objectSchema(map[string]interface{}{
		"model":        strProp("Model to create in"),
		"values":       objProp("Field values for the new record"),
		"operation_id": strProp("Idempotency key; replays return the prior result"),
		"session_id":   strProp("Optional session id"),
	}, "model")
	return define(name, "Create one record.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			op := stringArg(args, "operation_id")
			if prior, ok := d.Ops.Lookup(op); ok {
				return jsonResult(prior), nil
			}
			call, err := d.Normalizer.Create(args)
			if err != nil {
				return ErrorResult(err), nil
			}
			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sessionIDOf(args), Tool: name, Model: stringArg(args, "model"),
				Method: "create", Args: call.Args, Kwargs: call.Kwargs, Write: true,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			payload := map[string]interface{}{"id": out}
			d.Ops.Record(op, payload)
			return jsonResult(payload), nil
		})
}

func (d Deps) writeTool(name string) Definition {
	schema := objectSchema(map[string]interface{}{
		"model":        strProp("Model to update"),
		"record_ids":   idListProp("Record id or list of ids"),
		"ids":          idListProp("Legacy alias for record_ids"),
		"values":       objProp("Field values to write"),
		"operation_id": strProp("Idempotency key; replays return the prior result"),
		"session_id":   strProp("Optional session id"),
	}, "model")
	return define(name, "Update records by id.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			op := stringArg(args, "operation_id")
			if prior, ok := d.Ops.Lookup(op); ok {
				return jsonResult(prior), nil
			}
			call, err := d.Normalizer.Write(args)
			if err != nil {
				return ErrorResult(err), nil
			}
			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sessionIDOf(args), Tool: name, Model: stringArg(args, "model"),
				Method: "write", Args: call.Args, Kwargs: call.Kwargs, Write: true,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			payload := map[string]interface{}{"updated": out}
			d.Ops.Record(op, payload)
			return jsonResult(payload), nil
		})
}

func (d Deps) unlinkTool(name string) Definition {
	schema := objectSchema(map[string]interface{}{
		"model":        strProp("Model to delete from"),
		"record_ids":   idListProp("Record id or list of ids"),
		"ids":          idListProp("Legacy alias for record_ids"),
		"operation_id": strProp("Idempotency key; replays return the prior result"),
		"session_id":   strProp("Optional session id"),
	}, "model")
	return define(name, "Delete records by id.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			op := stringArg(args, "operation_id")
			if prior, ok := d.Ops.Lookup(op); ok {
				return jsonResult(prior), nil
			}
			call, err := d.Normalizer.Unlink(args)
			if err != nil {
				return ErrorResult(err), nil
			}
			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sessionIDOf(args), Tool: name, Model: stringArg(args, "model"),
				Method: "unlink", Args: call.Args, Kwargs: call.Kwargs, Write: true,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			payload := map[string]interface{}{"deleted": out}
			d.Ops.Record(op, payload)
			return jsonResult(payload), nil
		})
}

func (d Deps) nameSearchTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model to search"),
		"name":       strProp("Display-name fragment to match"),
		"operator":   strProp("Match operator (default ilike)"),
		"limit":      intProp("Maximum results (default 10)"),
		"session_id": strProp("Optional session id"),
	}, "model", "name")
	return define("odoo.name_search", "Find records whose display name matches a fragment.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			call, err := d.Normalizer.NameSearch(args)
			if err != nil {
				return ErrorResult(err), nil
			}
			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sessionIDOf(args), Tool: "odoo.name_search",
				Model: stringArg(args, "model"), Method: "name_search",
				Args: call.Args, Kwargs: call.Kwargs,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"results": out}), nil
		})
}

// --- workflow tools ---

func (d Deps) picklistsTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model owning the field"),
		"field":      strProp("Selection or relational field name"),
		"limit":      intProp("Maximum values for relational fields (default 100)"),
		"session_id": strProp("Optional session id"),
	}, "model", "field")
	return define("odoo.picklists", "List the accepted values for a selection or relational field.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			values, err := d.Actions.Picklist(ctx,
				stringArg(args, "model"), stringArg(args, "field"),
				intArg(args, "limit", 0))
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"values": values}), nil
		})
}

func (d Deps) nextStepsTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model of the record"),
		"record_id":  intProp("Record id"),
		"session_id": strProp("Optional session id"),
	}, "model", "record_id")
	return define("odoo.actions.next_steps", "Suggest workflow actions applicable to a record in its current state.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			recordID, ok := asInt64(args["record_id"])
			if !ok {
				return ErrorResult(odoo.NewValidationError(odoo.ValidationGeneric, "record_id must be a number")), nil
			}
			steps, err := d.Actions.NextSteps(ctx, stringArg(args, "model"), recordID)
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(steps), nil
		})
}

func (d Deps) actionCallTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":        strProp("Model of the record"),
		"record_id":    intProp("Record id"),
		"method":       strProp("Workflow method to invoke, e.g. action_confirm"),
		"parameters":   objProp("Optional method parameters"),
		"operation_id": strProp("Idempotency key; replays return the prior result"),
		"session_id":   strProp("Optional session id"),
	}, "model", "record_id", "method")
	return define("odoo.actions.call", "Invoke a whitelisted workflow method on a record.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			op := stringArg(args, "operation_id")
			if prior, ok := d.Ops.Lookup(op); ok {
				return jsonResult(prior), nil
			}
			recordID, ok := asInt64(args["record_id"])
			if !ok {
				return ErrorResult(odoo.NewValidationError(odoo.ValidationGeneric, "record_id must be a number")), nil
			}
			parameters, _ := args["parameters"].(map[string]interface{})
			result, err := d.Actions.Call(ctx, stringArg(args, "model"), recordID, stringArg(args, "method"), parameters)
			if err != nil {
				return ErrorResult(err), nil
			}
			d.Ops.Record(op, result)
			return jsonResult(result), nil
		})
}

// --- legacy passthrough tools ---

func (d Deps) executeKwTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model to call"),
		"method":     strProp("Method name"),
		"args":       map[string]interface{}{"type": "array", "description": "Positional arguments"},
		"kwargs":     objProp("Named arguments"),
		"session_id": strProp("Optional session id"),
	}, "model", "method")
	return define("odoo_execute_kw", "Raw execute_kw passthrough with argument normalization.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			model := stringArg(args, "model")
			method := stringArg(args, "method")
			if !executeKwAllowed(method) {
				return ErrorResult(odoo.NewMethodNotFoundError(model, method)), nil
			}
			sid := sessionIDOf(args)
			call, err := d.Normalizer.Normalize(method, args, d.ResolverFor(ctx, sid))
			if err != nil {
				return ErrorResult(err), nil
			}
			logWarnings("odoo_execute_kw", call.Warnings)

			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sid, Tool: "odoo_execute_kw", Model: model, Method: method,
				Args: call.Args, Kwargs: call.Kwargs,
				Write: isWriteMethod(method), Warnings: call.Warnings,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"result": out}), nil
		})
}

func (d Deps) callMethodTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"model":      strProp("Model to call"),
		"method":     strProp("Method name"),
		"record_ids": idListProp("Record id or list of ids"),
		"ids":        idListProp("Legacy alias for record_ids"),
		"args":       map[string]interface{}{"type": "array", "description": "Positional arguments"},
		"kwargs":     objProp("Named arguments"),
		"session_id": strProp("Optional session id"),
	}, "model", "method")
	return define("odoo_call_method", "Call an allowlisted method on specific records.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			model := stringArg(args, "model")
			method := stringArg(args, "method")
			if !actions.MethodAllowed(method) {
				return ErrorResult(odoo.NewMethodNotFoundError(model, method)), nil
			}
			sid := sessionIDOf(args)
			call, err := d.Normalizer.Normalize(method, args, d.ResolverFor(ctx, sid))
			if err != nil {
				return ErrorResult(err), nil
			}
			logWarnings("odoo_call_method", call.Warnings)

			out, err := d.Invoker.Invoke(ctx, Call{
				SessionID: sid, Tool: "odoo_call_method", Model: model, Method: method,
				Args: call.Args, Kwargs: call.Kwargs,
				Write: isWriteMethod(method), Warnings: call.Warnings,
			})
			if err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"result": out}), nil
		})
}

// --- subscription tools ---

func (d Deps) subscribeTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"uri": strProp("Resource URI, e.g. odoo://res.partner/7"),
	}, "uri")
	return define("subscribe_resource", "Subscribe the calling client to update notifications for a resource URI.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			if err := d.Subscribe(ctx, stringArg(args, "uri")); err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"ok": true}), nil
		})
}

func (d Deps) unsubscribeTool() Definition {
	schema := objectSchema(map[string]interface{}{
		"uri": strProp("Resource URI to stop watching"),
	}, "uri")
	return define("unsubscribe_resource", "Remove a resource-update subscription.", schema,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := requestArguments(req)
			if err := d.Unsubscribe(ctx, stringArg(args, "uri")); err != nil {
				return ErrorResult(err), nil
			}
			return jsonResult(map[string]interface{}{"ok": true}), nil
		})
}

func (d Deps) maxRecords() int {
	if d.Config != nil && d.Config.MaxRecordsLimit > 0 {
		return d.Config.MaxRecordsLimit
	}
	return config.DefaultMaxRecordsLimit
}
