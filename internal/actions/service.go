package actions

import (
	"context"
	"fmt"
	"strings"

	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// FieldLister reports the fields available on a model. Satisfied by the
// schema tracker.
type FieldLister interface {
	ListFields(ctx context.Context, model string) ([]odoo.FieldDef, error)
}

// NextSteps is the answer to "what can I do with this record next".
type NextSteps struct {
	Model            string   `json:"model"`
	RecordID         int64    `json:"record_id"`
	CurrentState     string   `json:"current_state,omitempty"`
	AvailableActions []Action `json:"available_actions"`
	SuggestedActions []Action `json:"suggested_actions"`
	Hints            []string `json:"hints"`
}

// CallResult carries the outcome of a workflow method call. Odoo action
// methods usually return True or a client action descriptor; descriptors
// land in Data.
type CallResult struct {
	Result interface{} `json:"result"`
	Data   interface{} `json:"data,omitempty"`
}

// Service answers action discovery and execution requests.
type Service struct {
	exec     odoo.Executor
	registry *Registry
	fields   FieldLister
}

// NewService wires the action service to an executor, the curated registry
// and the schema introspection used to probe for state fields.
func NewService(exec odoo.Executor, registry *Registry, fields FieldLister) *Service {
	if registry == nil {
		registry = &Registry{actions: map[string]map[string]Action{}}
	}
	return &Service{exec: exec, registry: registry, fields: fields}
}

// NextSteps reads the record's current state and merges curated, baseline
// and state-table actions into a suggestion set. A missing record yields an
// empty suggestion with a hint rather than an error.
func (s *Service) NextSteps(ctx context.Context, model string, recordID int64) (*NextSteps, error) {
	resp := &NextSteps{
		Model:            model,
		RecordID:         recordID,
		AvailableActions: []Action{},
		SuggestedActions: []Action{},
		Hints:            []string{},
	}

	readFields := []interface{}{"display_name"}
	if s.modelHasState(ctx, model) {
		readFields = append(readFields, "state")
	}

	result, err := s.exec(ctx, model, "read",
		[]interface{}{[]interface{}{recordID}},
		map[string]interface{}{"fields": readFields})
	if err != nil {
		return nil, err
	}

	record, ok := firstRecord(result)
	if !ok {
		resp.Hints = append(resp.Hints, fmt.Sprintf("Record %s/%d not found", model, recordID))
		return resp, nil
	}

	state, _ := record["state"].(string)
	resp.CurrentState = state
	resp.AvailableActions = s.availableActions(model, state)

	if state != "" {
		for _, a := range resp.AvailableActions {
			if containsMethod(StateActions(model, state), a.Method) {
				resp.SuggestedActions = append(resp.SuggestedActions, a)
			}
		}
		resp.Hints = append(resp.Hints, fmt.Sprintf("Current state: %s", state))
	}
	if len(resp.SuggestedActions) > 0 {
		names := make([]string, len(resp.SuggestedActions))
		for i, a := range resp.SuggestedActions {
			names[i] = a.Method
		}
		resp.Hints = append(resp.Hints, fmt.Sprintf("Suggested actions: %s", strings.Join(names, ", ")))
	}
	return resp, nil
}

// Call invokes a workflow method on one record. ORM primitives are refused
// with a pointer at their dedicated tools; names outside the allowlist are
// refused outright.
func (s *Service) Call(ctx context.Context, model string, recordID int64, method string, parameters map[string]interface{}) (*CallResult, error) {
	if IsCoreMethod(method) {
		return nil, odoo.NewMethodNotFoundError(model, method).
			WithDetail("hint", fmt.Sprintf("use the dedicated odoo.%s tool instead of actions.call", method))
	}
	if !IsActionMethod(method) {
		return nil, odoo.NewMethodNotFoundError(model, method)
	}

	args := []interface{}{[]interface{}{recordID}}
	if len(parameters) > 0 {
		args = append(args, parameters)
	}

	result, err := s.exec(ctx, model, method, args, nil)
	if err != nil {
		return nil, err
	}

	logging.Debug("Actions", "Called %s on %s/%d", method, model, recordID)
	if data, ok := result.(map[string]interface{}); ok {
		return &CallResult{Result: true, Data: data}, nil
	}
	return &CallResult{Result: result}, nil
}

// availableActions merges the curated registry, the baseline table and the
// state table, first occurrence of a method wins.
func (s *Service) availableActions(model, state string) []Action {
	var merged []Action
	seen := map[string]bool{}

	add := func(a Action) {
		if seen[a.Method] {
			return
		}
		seen[a.Method] = true
		merged = append(merged, a)
	}

	for _, a := range s.registry.Actions(model) {
		add(a)
	}
	for _, a := range baselineActions[model] {
		add(a)
	}
	for _, method := range StateActions(model, state) {
		add(Action{Method: method, Label: labelFor(method), Category: "state_based"})
	}
	if merged == nil {
		merged = []Action{}
	}
	return merged
}

// modelHasState reports whether the model carries a state column. Unknown
// schemas are treated as stateless so the record read cannot fault on a
// bad field name.
func (s *Service) modelHasState(ctx context.Context, model string) bool {
	if s.fields == nil {
		return false
	}
	defs, err := s.fields.ListFields(ctx, model)
	if err != nil {
		logging.Warn("Actions", "Could not inspect %s for a state field: %v", model, err)
		return false
	}
	for _, def := range defs {
		if def.Name == "state" {
			return true
		}
	}
	return false
}

func firstRecord(result interface{}) (map[string]interface{}, bool) {
	records, ok := result.([]interface{})
	if !ok || len(records) == 0 {
		return nil, false
	}
	record, ok := records[0].(map[string]interface{})
	return record, ok
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
