package gateway

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"odoomcp/internal/odoo"
	"odoomcp/internal/resources"
	"odoomcp/pkg/logging"
)

// promptFieldLimit bounds how many fields a prompt enumerates so the
// rendered text stays readable on wide models like res.partner.
const promptFieldLimit = 40

// registerPrompts declares the prompt templates. Both render with live
// schema hints, so the guidance matches the connected database instead of
// a generic Odoo.
func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("analyze-record",
		mcp.WithPromptDescription("Analyze an Odoo record and suggest next steps."),
		mcp.WithArgument("model",
			mcp.ArgumentDescription("Model of the record, e.g. res.partner"),
			mcp.RequiredArgument()),
		mcp.WithArgument("id",
			mcp.ArgumentDescription("Record id"),
			mcp.RequiredArgument()),
	), s.analyzeRecordPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("create-record",
		mcp.WithPromptDescription("Draft values for a new record on a model."),
		mcp.WithArgument("model",
			mcp.ArgumentDescription("Model to create a record on"),
			mcp.RequiredArgument()),
	), s.createRecordPrompt)
}

func (s *Server) analyzeRecordPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	model := req.Params.Arguments["model"]
	rawID := req.Params.Arguments["id"]
	id, err := strconv.ParseInt(rawID, 10, 64)
	if model == "" || err != nil || id <= 0 {
		return nil, odoo.NewValidationError(odoo.ValidationGeneric,
			"analyze-record needs a model and a positive integer id")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the Odoo record %s/%d.\n\n", model, id)
	fmt.Fprintf(&b, "1. Read it: call odoo.read with model %q and record_ids [%d], or fetch the resource %s.\n",
		model, id, resources.RecordURI(model, id))
	fmt.Fprintf(&b, "2. Check its workflow: call odoo.actions.next_steps with the same model and record_id to see the current state and the applicable actions.\n")
	fmt.Fprintf(&b, "3. Follow relations that matter for the analysis (relational fields are listed below with their target model).\n\n")

	if hints := s.fieldHints(ctx, model, func(odoo.FieldDef) bool { return true }); len(hints) > 0 {
		fmt.Fprintf(&b, "Fields on %s: %s.\n\n", model, strings.Join(hints, ", "))
	}

	b.WriteString("Summarize what the record represents, flag anything inconsistent or unusual, and recommend follow-up actions from the available ones.")

	return mcp.NewGetPromptResult(
		fmt.Sprintf("Analysis guide for %s/%d", model, id),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(b.String())),
		},
	), nil
}

func (s *Server) createRecordPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	model := req.Params.Arguments["model"]
	if model == "" {
		return nil, odoo.NewValidationError(odoo.ValidationGeneric, "create-record needs a model")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Draft a new %s record.\n\n", model)

	required := s.fieldHints(ctx, model, func(f odoo.FieldDef) bool {
		return f.Required && f.Writeable()
	})
	if len(required) > 0 {
		fmt.Fprintf(&b, "Required fields: %s.\n", strings.Join(required, ", "))
	}
	optional := s.fieldHints(ctx, model, func(f odoo.FieldDef) bool {
		return !f.Required && f.Writeable() && f.Store
	})
	if len(optional) > 0 {
		fmt.Fprintf(&b, "Optional fields: %s.\n", strings.Join(optional, ", "))
	}
	b.WriteString("\n")

	b.WriteString("For selection fields, call odoo.picklists to list the accepted values. ")
	b.WriteString("For many2one fields, resolve names to ids with odoo.name_search on the target model.\n\n")
	fmt.Fprintf(&b, "When the values are complete, call odoo.create with {\"model\": %q, \"values\": {...}}. ", model)
	b.WriteString("Pass an operation_id so a retried create cannot duplicate the record.")

	return mcp.NewGetPromptResult(
		fmt.Sprintf("Creation guide for %s", model),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(b.String())),
		},
	), nil
}

// fieldHints renders a compact "name (type)" list of the model's fields
// matching keep, alphabetical, capped at promptFieldLimit. Schema lookup
// failures degrade to no hints; the prompt still reads sensibly.
func (s *Server) fieldHints(ctx context.Context, model string, keep func(odoo.FieldDef) bool) []string {
	defs, err := s.schema.ListFields(ctx, model)
	if err != nil {
		logging.Debug("Gateway", "field hints for %s unavailable: %v", model, err)
		return nil
	}

	var hints []string
	for _, def := range defs {
		if !keep(def) {
			continue
		}
		if def.Relation != "" {
			hints = append(hints, fmt.Sprintf("%s (%s %s)", def.Name, def.Type, def.Relation))
		} else {
			hints = append(hints, fmt.Sprintf("%s (%s)", def.Name, def.Type))
		}
	}
	sort.Strings(hints)
	if len(hints) > promptFieldLimit {
		hints = hints[:promptFieldLimit]
	}
	return hints
}
