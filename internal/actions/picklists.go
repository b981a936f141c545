package actions

import (
	"context"

	"odoomcp/internal/odoo"
)

// DefaultPicklistLimit bounds relation lookups when the caller gives none.
const DefaultPicklistLimit = 100

// PicklistValue is one selectable value for a field.
type PicklistValue struct {
	ID    interface{} `json:"id"` // selection key (string) or related record id (int)
	Label string      `json:"label"`
}

// Picklist answers what values a selection or relational field accepts.
// Selection fields come straight from field metadata; relational fields go
// through name_search on the co-model. Other field types have no picklist
// and yield an empty list.
func (s *Service) Picklist(ctx context.Context, model, field string, limit int) ([]PicklistValue, error) {
	if limit <= 0 {
		limit = DefaultPicklistLimit
	}

	result, err := s.exec(ctx, model, "fields_get",
		[]interface{}{[]interface{}{field}},
		map[string]interface{}{"attributes": []interface{}{"type", "selection", "relation"}})
	if err != nil {
		return nil, err
	}

	catalog, ok := result.(map[string]interface{})
	if !ok {
		return nil, odoo.NewProtocolError("unexpected fields_get result for %s", model)
	}
	meta, ok := catalog[field].(map[string]interface{})
	if !ok {
		return nil, odoo.NewValidationError(odoo.ValidationField, "field '%s' does not exist on model '%s'", field, model)
	}

	switch meta["type"] {
	case "selection":
		return selectionValues(meta["selection"]), nil
	case "many2one", "many2many", "one2many":
		relation, _ := meta["relation"].(string)
		if relation == "" {
			return []PicklistValue{}, nil
		}
		return s.relationValues(ctx, relation, limit)
	default:
		return []PicklistValue{}, nil
	}
}

// selectionValues unpacks fields_get selection pairs: [[key, label], ...].
func selectionValues(raw interface{}) []PicklistValue {
	pairs, ok := raw.([]interface{})
	if !ok {
		return []PicklistValue{}
	}
	values := make([]PicklistValue, 0, len(pairs))
	for _, p := range pairs {
		pair, ok := p.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		label, _ := pair[1].(string)
		values = append(values, PicklistValue{ID: pair[0], Label: label})
	}
	return values
}

// relationValues lists related records via name_search with an empty
// needle, bounded by limit.
func (s *Service) relationValues(ctx context.Context, relation string, limit int) ([]PicklistValue, error) {
	result, err := s.exec(ctx, relation, "name_search",
		[]interface{}{""},
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}

	entries, ok := result.([]interface{})
	if !ok {
		return []PicklistValue{}, nil
	}
	values := make([]PicklistValue, 0, len(entries))
	for _, e := range entries {
		pair, ok := e.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		label, _ := pair[1].(string)
		values = append(values, PicklistValue{ID: pair[0], Label: label})
	}
	return values, nil
}
