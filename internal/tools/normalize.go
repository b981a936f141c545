// Package tools declares the MCP tool catalog: JSON Schemas, the argument
// normalizer that folds legacy envelopes into canonical Odoo calls, and the
// idempotency log for write replay.
package tools

import (
	"fmt"
	"strings"

	"odoomcp/internal/actions"
	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
)

// NormalizedCall is the canonical positional/named argument pair handed to
// execute_kw after extraction.
type NormalizedCall struct {
	Args     []interface{}
	Kwargs   map[string]interface{}
	Domain   []interface{} // compiled domain for search-family methods
	Warnings []string
}

// Normalizer rewrites tool arguments into canonical execute_kw calls.
// Several Odoo methods accept the same field through positional and named
// channels; the rules here pick one channel per method so Odoo never sees a
// duplicate-argument fault.
type Normalizer struct {
	compiler   *domain.Compiler
	maxFields  int
	maxRecords int
}

// NewNormalizer creates a normalizer enforcing the given caps. Zero caps
// disable the corresponding check.
func NewNormalizer(compiler *domain.Compiler, maxFields, maxRecords int) *Normalizer {
	return &Normalizer{compiler: compiler, maxFields: maxFields, maxRecords: maxRecords}
}

// Arguments unwraps a tool-call argument payload into a plain map, tolerating
// a redundant {arguments:{…}} nesting from legacy clients.
func Arguments(raw interface{}) map[string]interface{} {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	if inner, ok := m["arguments"].(map[string]interface{}); ok && len(m) == 1 {
		return inner
	}
	return m
}

// positional returns the legacy args list, if any.
func positional(arguments map[string]interface{}) []interface{} {
	v, _ := arguments["args"].([]interface{})
	return v
}

// named returns the legacy kwargs object, if any.
func named(arguments map[string]interface{}) map[string]interface{} {
	v, _ := arguments["kwargs"].(map[string]interface{})
	return v
}

// Compile exposes the domain compiler for the validate tool.
func (n *Normalizer) Compile(raw interface{}, res domain.Resolver) (domain.Result, error) {
	return n.compiler.Compile(raw, res)
}

// Normalize applies the method-specific extraction rule.
func (n *Normalizer) Normalize(method string, arguments map[string]interface{}, res domain.Resolver) (NormalizedCall, error) {
	switch method {
	case "create":
		return n.Create(arguments)
	case "read":
		return n.Read(arguments)
	case "search", "search_read", "search_count":
		return n.SearchFamily(method, arguments, res)
	case "read_group":
		return n.ReadGroup(arguments, res)
	case "write":
		return n.Write(arguments)
	case "unlink":
		return n.Unlink(arguments)
	case "name_search":
		return n.NameSearch(arguments)
	default:
		if actions.IsActionMethod(method) {
			return n.Action(arguments)
		}
		return NormalizedCall{Args: positional(arguments), Kwargs: named(arguments)}, nil
	}
}

// Create extracts the values object. Precedence: a top-level values field,
// then a positional object, then kwargs.values, then kwargs itself. The call
// site always receives [values] positional and no named arguments, so Odoo
// never sees values as a record field.
func (n *Normalizer) Create(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	var values map[string]interface{}
	switch {
	case isObject(arguments["values"]):
		values = arguments["values"].(map[string]interface{})
	case len(pos) > 0 && isObject(pos[0]):
		values = pos[0].(map[string]interface{})
	case isObject(kw["values"]):
		values = kw["values"].(map[string]interface{})
	case len(kw) > 0:
		values = kw
	}
	if len(values) == 0 {
		return NormalizedCall{}, odoo.NewValidationError(odoo.ValidationGeneric, "create requires a values object")
	}
	return NormalizedCall{Args: []interface{}{values}, Kwargs: map[string]interface{}{}}, nil
}

// Read builds [ids, fields] positionals. fields stays positional only;
// named arguments are filtered down to context.
func (n *Normalizer) Read(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	rawIDs := firstPresent(arguments, "record_ids", "ids")
	if rawIDs == nil && len(pos) > 0 {
		rawIDs = pos[0]
	}
	ids, err := coerceIDs(rawIDs)
	if err != nil {
		return NormalizedCall{}, err
	}

	fields := firstPresent(arguments, "fields")
	if fields == nil && len(pos) > 1 {
		fields = pos[1]
	}
	if fields == nil {
		fields = kw["fields"]
	}
	if fields == nil {
		fields = []interface{}{"id", "name"}
	}
	if err := n.checkFieldsCap(fields); err != nil {
		return NormalizedCall{}, err
	}

	kwargs := map[string]interface{}{}
	if ctxv, ok := kw["context"]; ok {
		kwargs["context"] = ctxv
	}
	return NormalizedCall{Args: []interface{}{ids, fields}, Kwargs: kwargs}, nil
}

// searchTail names the positional slots that follow the domain, per method.
var searchTail = map[string][]string{
	"search":      {"offset", "limit", "order"},
	"search_read": {"fields", "offset", "limit", "order"},
}

// SearchFamily compiles the domain and folds the remaining channels into
// named arguments. A non-list domain coerces to [] with a warning.
func (n *Normalizer) SearchFamily(method string, arguments map[string]interface{}, res domain.Resolver) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	rawDomain := firstPresent(arguments, "domain_json", "domain")
	if rawDomain == nil {
		if v, ok := kw["domain"]; ok {
			rawDomain = v
		} else if len(pos) > 0 {
			rawDomain = pos[0]
		}
	}
	compiled, err := n.compiler.Compile(rawDomain, res)
	if err != nil {
		return NormalizedCall{}, err
	}

	tail := searchTail[method]
	kwargs := map[string]interface{}{}
	for _, key := range tail {
		if v := firstPresent(arguments, key); v != nil {
			kwargs[key] = v
		} else if v, ok := kw[key]; ok {
			kwargs[key] = v
		}
	}
	for i, v := range tailOf(pos) {
		if i >= len(tail) {
			break
		}
		if _, present := kwargs[tail[i]]; !present && v != nil {
			kwargs[tail[i]] = v
		}
	}
	if ctxv, ok := kw["context"]; ok {
		kwargs["context"] = ctxv
	}

	call := NormalizedCall{
		Args:     []interface{}{compiled.Domain},
		Kwargs:   kwargs,
		Domain:   compiled.Domain,
		Warnings: compiled.Warnings,
	}
	if err := n.applySearchCaps(&call); err != nil {
		return NormalizedCall{}, err
	}
	return call, nil
}

// ReadGroup accepts separate (domain, fields, groupby) positionals or a
// single object positional carrying those keys; both collapse into separate
// positionals. Aggregation and granularity specs are checked up front so a
// bad spec fails fast instead of as an opaque backend fault.
func (n *Normalizer) ReadGroup(arguments map[string]interface{}, res domain.Resolver) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	src := arguments
	extraNamed := map[string]interface{}{}
	if len(pos) == 1 && isObject(pos[0]) {
		obj := pos[0].(map[string]interface{})
		if hasAny(obj, "domain", "fields", "groupby") {
			src = obj
			if nested, ok := obj["kwargs"].(map[string]interface{}); ok {
				extraNamed = nested
			}
			pos = nil
		}
	}

	rawDomain := firstPresent(src, "domain_json", "domain")
	if rawDomain == nil {
		if v, ok := kw["domain"]; ok {
			rawDomain = v
		} else if len(pos) > 0 {
			rawDomain = pos[0]
		}
	}
	compiled, err := n.compiler.Compile(rawDomain, res)
	if err != nil {
		return NormalizedCall{}, err
	}

	fields := firstPresent(src, "fields")
	if fields == nil && len(pos) > 1 {
		fields = pos[1]
	}
	if fields == nil {
		fields = kw["fields"]
	}
	groupby := firstPresent(src, "groupby")
	if groupby == nil && len(pos) > 2 {
		groupby = pos[2]
	}
	if groupby == nil {
		groupby = kw["groupby"]
	}

	fieldSpecs, err := stringList(fields, "fields")
	if err != nil {
		return NormalizedCall{}, err
	}
	groupSpecs, err := stringList(groupby, "groupby")
	if err != nil {
		return NormalizedCall{}, err
	}
	if err := validateAggregationSpecs(fieldSpecs, groupSpecs); err != nil {
		return NormalizedCall{}, err
	}

	kwargs := map[string]interface{}{}
	for _, key := range []string{"limit", "offset", "orderby", "lazy"} {
		if v, ok := kw[key]; ok {
			kwargs[key] = v
		} else if v, ok := extraNamed[key]; ok {
			kwargs[key] = v
		}
	}

	return NormalizedCall{
		Args:     []interface{}{compiled.Domain, toInterfaceList(fieldSpecs), toInterfaceList(groupSpecs)},
		Kwargs:   kwargs,
		Domain:   compiled.Domain,
		Warnings: compiled.Warnings,
	}, nil
}

// Write builds (ids, values) positionals with no named arguments.
func (n *Normalizer) Write(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	rawIDs := firstPresent(arguments, "record_ids", "ids")
	if rawIDs == nil && len(pos) > 0 {
		rawIDs = pos[0]
	}
	ids, err := coerceIDs(rawIDs)
	if err != nil {
		return NormalizedCall{}, err
	}

	var values map[string]interface{}
	switch {
	case isObject(arguments["values"]):
		values = arguments["values"].(map[string]interface{})
	case len(pos) > 1 && isObject(pos[1]):
		values = pos[1].(map[string]interface{})
	case isObject(kw["values"]):
		values = kw["values"].(map[string]interface{})
	}
	if len(values) == 0 {
		return NormalizedCall{}, odoo.NewValidationError(odoo.ValidationGeneric, "write requires a values object")
	}
	return NormalizedCall{Args: []interface{}{ids, values}, Kwargs: map[string]interface{}{}}, nil
}

// Unlink builds the single (ids,) positional.
func (n *Normalizer) Unlink(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)
	rawIDs := firstPresent(arguments, "record_ids", "ids")
	if rawIDs == nil && len(pos) > 0 {
		rawIDs = pos[0]
	}
	ids, err := coerceIDs(rawIDs)
	if err != nil {
		return NormalizedCall{}, err
	}
	return NormalizedCall{Args: []interface{}{ids}, Kwargs: map[string]interface{}{}}, nil
}

// NameSearch builds (name,) positional with operator and limit named.
func (n *Normalizer) NameSearch(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)

	name, _ := arguments["name"].(string)
	if name == "" && len(pos) > 0 {
		name, _ = pos[0].(string)
	}

	kwargs := map[string]interface{}{}
	if op, ok := arguments["operator"].(string); ok && op != "" {
		kwargs["operator"] = op
	} else {
		kwargs["operator"] = "ilike"
	}
	if limit := firstPresent(arguments, "limit"); limit != nil {
		kwargs["limit"] = limit
	} else {
		kwargs["limit"] = 10
	}
	return NormalizedCall{Args: []interface{}{name}, Kwargs: kwargs}, nil
}

// Action builds (ids,) plus an optional parameters object; context rides as
// the only named argument.
func (n *Normalizer) Action(arguments map[string]interface{}) (NormalizedCall, error) {
	pos := positional(arguments)
	kw := named(arguments)

	rawIDs := firstPresent(arguments, "record_ids", "ids", "record_id")
	if rawIDs == nil && len(pos) > 0 {
		rawIDs = pos[0]
	}
	ids, err := coerceIDs(rawIDs)
	if err != nil {
		return NormalizedCall{}, err
	}

	args := []interface{}{ids}
	if params, ok := arguments["parameters"].(map[string]interface{}); ok && len(params) > 0 {
		args = append(args, params)
	}

	kwargs := map[string]interface{}{}
	if ctxv, ok := kw["context"]; ok {
		kwargs["context"] = ctxv
	} else if ctxv, ok := arguments["context"]; ok {
		kwargs["context"] = ctxv
	}
	return NormalizedCall{Args: args, Kwargs: kwargs}, nil
}

func (n *Normalizer) applySearchCaps(call *NormalizedCall) error {
	if fields, ok := call.Kwargs["fields"]; ok {
		if err := n.checkFieldsCap(fields); err != nil {
			return err
		}
	}
	if n.maxRecords <= 0 {
		return nil
	}
	if rawLimit, ok := call.Kwargs["limit"]; ok {
		if limit, ok := asInt(rawLimit); ok && limit > n.maxRecords {
			call.Kwargs["limit"] = n.maxRecords
			call.Warnings = append(call.Warnings,
				fmt.Sprintf("limit %d clamped to %d", limit, n.maxRecords))
		}
	}
	return nil
}

func (n *Normalizer) checkFieldsCap(fields interface{}) error {
	if n.maxFields <= 0 {
		return nil
	}
	list, ok := fields.([]interface{})
	if !ok {
		return nil
	}
	if len(list) > n.maxFields {
		return odoo.NewValidationError(odoo.ValidationGeneric,
			"%d fields requested, limit is %d", len(list), n.maxFields)
	}
	return nil
}

// validAggregations are the functions Odoo accepts in read_group field
// specs ("amount_total:sum").
var validAggregations = map[string]bool{
	"sum": true, "avg": true, "min": true, "max": true, "count": true,
	"count_distinct": true, "array_agg": true, "bool_and": true, "bool_or": true,
}

// validGranularities are the date buckets Odoo accepts in groupby specs
// ("date_order:month").
var validGranularities = map[string]bool{
	"hour": true, "day": true, "week": true, "month": true,
	"quarter": true, "year": true,
}

// validateAggregationSpecs rejects field specs whose suffix is not an
// aggregation function and groupby specs whose suffix is not a date
// granularity. "amount_total:month" is the classic confusion caught here.
func validateAggregationSpecs(fields, groupby []string) error {
	for _, spec := range fields {
		suffix, ok := specSuffix(spec)
		if !ok {
			continue
		}
		fn := suffix
		if open := strings.Index(fn, "("); open >= 0 {
			fn = fn[:open]
		}
		if !validAggregations[fn] {
			return odoo.NewValidationError(odoo.ValidationAggregation,
				"invalid aggregation function '%s' in field spec '%s'", fn, spec).
				WithDetail("field", spec)
		}
	}
	for _, spec := range groupby {
		suffix, ok := specSuffix(spec)
		if !ok {
			continue
		}
		if !validGranularities[suffix] {
			return odoo.NewValidationError(odoo.ValidationAggregation,
				"invalid aggregation granularity '%s' in groupby spec '%s'", suffix, spec).
				WithDetail("groupby", spec)
		}
	}
	return nil
}

func specSuffix(spec string) (string, bool) {
	idx := strings.Index(spec, ":")
	if idx < 0 {
		return "", false
	}
	return spec[idx+1:], true
}

func isObject(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

func hasAny(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func tailOf(pos []interface{}) []interface{} {
	if len(pos) < 2 {
		return nil
	}
	return pos[1:]
}

// coerceIDs normalizes a record id payload: a list of numbers, or a single
// number, becomes []interface{} of int64.
func coerceIDs(raw interface{}) ([]interface{}, error) {
	if raw == nil {
		return nil, odoo.NewValidationError(odoo.ValidationGeneric, "record ids are required")
	}
	if id, ok := asInt64(raw); ok {
		return []interface{}{id}, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, odoo.NewValidationError(odoo.ValidationGeneric, "record ids must be a number or a list of numbers")
	}
	ids := make([]interface{}, len(list))
	for i, v := range list {
		id, ok := asInt64(v)
		if !ok {
			return nil, odoo.NewValidationError(odoo.ValidationGeneric, "record id at position %d is not a number", i)
		}
		ids[i] = id
	}
	return ids, nil
}

func stringList(raw interface{}, what string) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, odoo.NewValidationError(odoo.ValidationGeneric, "%s must be a list of strings", what)
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, odoo.NewValidationError(odoo.ValidationGeneric, "%s entry at position %d is not a string", what, i)
		}
		out[i] = s
	}
	return out, nil
}

func toInterfaceList(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asInt(v interface{}) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}
