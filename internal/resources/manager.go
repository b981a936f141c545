package resources

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/internal/tools"
	"odoomcp/pkg/logging"
)

// defaultListLimit bounds a list resource when the URI names no limit.
const defaultListLimit = 100

// listDefaultFields keeps unrefined list reads cheap; a record read without
// a fields parameter returns the full record the way Odoo's read does.
var listDefaultFields = []interface{}{"id", "name"}

// Invoker runs resource reads through the same pipeline as tool calls, so
// caching, masking and audit apply to resources too.
type Invoker interface {
	Invoke(ctx context.Context, call tools.Call) (interface{}, error)
}

// Template pairs a declared resource template with its read handler.
type Template struct {
	Template mcp.ResourceTemplate
	Handler  func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)
}

// Manager resolves odoo:// URIs into resource contents.
type Manager struct {
	invoker    Invoker
	compiler   *domain.Compiler
	resolver   func(ctx context.Context) domain.Resolver
	maxRecords int
}

// NewManager builds a resource manager. resolver yields the placeholder
// resolver for the gateway identity; maxRecords caps list reads (zero
// disables the cap).
func NewManager(invoker Invoker, compiler *domain.Compiler, resolver func(ctx context.Context) domain.Resolver, maxRecords int) *Manager {
	return &Manager{invoker: invoker, compiler: compiler, resolver: resolver, maxRecords: maxRecords}
}

// Templates declares the three URI templates the gateway registers.
func (m *Manager) Templates() []Template {
	record := mcp.NewResourceTemplate(
		"odoo://{model}/{id}",
		"Odoo record",
		mcp.WithTemplateDescription("One record of a model, read by id. Optional ?fields=a,b selects fields."),
		mcp.WithTemplateMIMEType("application/json"),
	)
	list := mcp.NewResourceTemplate(
		"odoo://{model}/list",
		"Odoo record list",
		mcp.WithTemplateDescription("Records of a model. Supports ?domain=, ?fields=, ?limit=, ?offset=, ?order=."),
		mcp.WithTemplateMIMEType("application/json"),
	)
	binary := mcp.NewResourceTemplate(
		"odoo://{model}/binary/{field}/{id}",
		"Odoo binary field",
		mcp.WithTemplateDescription("A binary field value from one record."),
		mcp.WithTemplateMIMEType("application/octet-stream"),
	)

	handler := func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return m.Read(ctx, req.Params.URI)
	}
	return []Template{
		{Template: record, Handler: handler},
		{Template: list, Handler: handler},
		{Template: binary, Handler: handler},
	}
}

// Validate reports whether a URI matches a known template. Subscriptions
// use this before registering a sink.
func (m *Manager) Validate(uri string) error {
	_, err := Parse(uri)
	return err
}

// Read resolves a URI into its contents.
func (m *Manager) Read(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	ref, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	switch ref.Kind {
	case KindRecord:
		return m.readRecord(ctx, ref)
	case KindList:
		return m.readList(ctx, ref)
	default:
		return m.readBinary(ctx, ref)
	}
}

func (m *Manager) readRecord(ctx context.Context, ref Ref) ([]mcp.ResourceContents, error) {
	args := []interface{}{[]interface{}{ref.RecordID}}
	if len(ref.Fields) > 0 {
		args = append(args, ref.Fields)
	}
	out, err := m.invoker.Invoke(ctx, tools.Call{
		Tool: "read_resource", Model: ref.Model, Method: "read",
		Args: args, Kwargs: map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	record, ok := firstRecord(out)
	if !ok {
		return nil, odoo.NewNotFoundError("record %d not found in model %s", ref.RecordID, ref.Model)
	}
	return jsonContents(ref.URI, record)
}

func (m *Manager) readList(ctx context.Context, ref Ref) ([]mcp.ResourceContents, error) {
	dom := []interface{}{}
	if ref.Domain != "" {
		compiled, err := m.compiler.Compile(ref.Domain, m.resolver(ctx))
		if err != nil {
			return nil, err
		}
		for _, w := range compiled.Warnings {
			logging.Warn("Resources", "%s: %s", ref.URI, w)
		}
		dom = compiled.Domain
	}

	fields := ref.Fields
	if len(fields) == 0 {
		fields = listDefaultFields
	}

	limit := ref.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if m.maxRecords > 0 && limit > m.maxRecords {
		limit = m.maxRecords
	}

	kwargs := map[string]interface{}{"fields": fields, "limit": limit}
	if ref.Offset > 0 {
		kwargs["offset"] = ref.Offset
	}
	if ref.Order != "" {
		kwargs["order"] = ref.Order
	}

	out, err := m.invoker.Invoke(ctx, tools.Call{
		Tool: "read_resource", Model: ref.Model, Method: "search_read",
		Args: []interface{}{dom}, Kwargs: kwargs,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []interface{}{}
	}
	return jsonContents(ref.URI, out)
}

func (m *Manager) readBinary(ctx context.Context, ref Ref) ([]mcp.ResourceContents, error) {
	out, err := m.invoker.Invoke(ctx, tools.Call{
		Tool: "read_resource", Model: ref.Model, Method: "read",
		Args:   []interface{}{[]interface{}{ref.RecordID}, []interface{}{ref.Field}},
		Kwargs: map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	record, ok := firstRecord(out)
	if !ok {
		return nil, odoo.NewNotFoundError("record %d not found in model %s", ref.RecordID, ref.Model)
	}

	// Odoo renders an empty binary as boolean false.
	encoded, ok := record[ref.Field].(string)
	if !ok || encoded == "" {
		return nil, odoo.NewResourceError("binary field %s is empty on %s/%d", ref.Field, ref.Model, ref.RecordID)
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return nil, odoo.NewResourceError("binary field %s on %s/%d is not valid base64", ref.Field, ref.Model, ref.RecordID)
	}

	return []mcp.ResourceContents{
		mcp.BlobResourceContents{
			URI:      ref.URI,
			MIMEType: "application/octet-stream",
			Blob:     encoded,
		},
	}, nil
}

func firstRecord(out interface{}) (map[string]interface{}, bool) {
	records, ok := out.([]interface{})
	if !ok || len(records) == 0 {
		return nil, false
	}
	record, ok := records[0].(map[string]interface{})
	return record, ok
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, odoo.NewInternalError(err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
