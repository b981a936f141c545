package odoo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"odoomcp/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// Executor is the narrow RPC surface the introspection layer needs. The
// dispatcher provides one backed by the pool so schema queries share the
// same checkout and fault handling path as everything else.
type Executor func(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// FieldDef describes one field of an Odoo model, as reported by
// ir.model.fields.
type FieldDef struct {
	Name     string `json:"name"`
	Type     string `json:"ttype"`
	Required bool   `json:"required"`
	Readonly bool   `json:"readonly"`
	Relation string `json:"relation,omitempty"`
	Store    bool   `json:"store"`
	Compute  string `json:"compute,omitempty"`
}

// Writeable reports whether the field accepts values on create/write.
func (f FieldDef) Writeable() bool {
	return !f.Readonly && f.Compute == ""
}

// SchemaTracker computes and caches the schema version fingerprint: a
// sha256 over the sorted model and field tables, truncated to 16 hex
// characters. The fingerprint tags every cache entry so a data-dictionary
// change (module install, field added) invalidates stale results without
// the gateway watching Odoo for changes.
type SchemaTracker struct {
	exec Executor
	ttl  time.Duration

	mu        sync.Mutex
	version   string
	fetchedAt time.Time

	group singleflight.Group
}

// NewSchemaTracker builds a tracker refreshing at most once per ttl.
func NewSchemaTracker(exec Executor, ttl time.Duration) *SchemaTracker {
	return &SchemaTracker{exec: exec, ttl: ttl}
}

// Version returns the current fingerprint, refreshing it when the cached
// value is older than the TTL. Concurrent refreshes collapse into a single
// introspection pass via singleflight. On introspection failure a previous
// fingerprint is served if one exists; otherwise "unknown" — caching
// degrades, requests keep flowing.
func (t *SchemaTracker) Version(ctx context.Context) string {
	t.mu.Lock()
	if t.version != "" && time.Since(t.fetchedAt) < t.ttl {
		v := t.version
		t.mu.Unlock()
		return v
	}
	stale := t.version
	t.mu.Unlock()

	v, err, _ := t.group.Do("version", func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the group.
		t.mu.Lock()
		if t.version != "" && time.Since(t.fetchedAt) < t.ttl {
			v := t.version
			t.mu.Unlock()
			return v, nil
		}
		t.mu.Unlock()

		version, err := t.computeVersion(ctx)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.version = version
		t.fetchedAt = time.Now()
		t.mu.Unlock()
		return version, nil
	})
	if err != nil {
		logging.Warn("Schema", "version refresh failed: %v", err)
		if stale != "" {
			return stale
		}
		return "unknown"
	}
	return v.(string)
}

// Invalidate forgets the cached fingerprint so the next Version call
// re-introspects. Called after write operations on ir.model* models.
func (t *SchemaTracker) Invalidate() {
	t.mu.Lock()
	t.version = ""
	t.fetchedAt = time.Time{}
	t.mu.Unlock()
}

// computeVersion runs the two bulk introspection queries and hashes the
// canonical JSON rendering.
func (t *SchemaTracker) computeVersion(ctx context.Context) (string, error) {
	models, err := t.exec(ctx, "ir.model", "search_read",
		[]interface{}{[]interface{}{[]interface{}{"state", "=", "base"}}},
		map[string]interface{}{"fields": []string{"model", "name"}},
	)
	if err != nil {
		return "", err
	}
	fields, err := t.exec(ctx, "ir.model.fields", "search_read",
		[]interface{}{[]interface{}{}},
		map[string]interface{}{"fields": []string{"model", "name", "ttype"}},
	)
	if err != nil {
		return "", err
	}

	schema := map[string][]string{}
	for _, rec := range toRecordList(models) {
		if m, ok := rec["model"].(string); ok {
			schema[m] = []string{}
		}
	}
	for _, rec := range toRecordList(fields) {
		m, _ := rec["model"].(string)
		name, _ := rec["name"].(string)
		ttype, _ := rec["ttype"].(string)
		if m == "" || name == "" {
			continue
		}
		schema[m] = append(schema[m], name+":"+ttype)
	}
	for _, fs := range schema {
		sort.Strings(fs)
	}

	payload, err := json.Marshal(sortedSchema(schema))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	version := hex.EncodeToString(sum[:])[:16]
	logging.Debug("Schema", "version %s over %d models", version, len(schema))
	return version, nil
}

// sortedSchema renders the schema map as a deterministically ordered slice
// of pairs; map iteration order must not influence the hash.
func sortedSchema(schema map[string][]string) [][2]interface{} {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([][2]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, [2]interface{}{name, schema[name]})
	}
	return out
}

// ListModels returns model technical names, optionally restricted to those
// the uid can read per ir.model.access.
func (t *SchemaTracker) ListModels(ctx context.Context, uid int64, withAccess bool) ([]string, error) {
	raw, err := t.exec(ctx, "ir.model", "search_read",
		[]interface{}{[]interface{}{[]interface{}{"state", "=", "base"}}},
		map[string]interface{}{"fields": []string{"model"}, "order": "model"},
	)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0)
	for _, rec := range toRecordList(raw) {
		if m, ok := rec["model"].(string); ok {
			names = append(names, m)
		}
	}
	if !withAccess {
		return names, nil
	}

	readable, err := t.readableModels(ctx, uid)
	if err != nil {
		return nil, err
	}
	filtered := names[:0]
	for _, m := range names {
		if readable[m] {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// readableModels resolves the set of models the uid can read in two bulk
// queries: the user's access rules, then the technical names of the model
// ids they reference.
func (t *SchemaTracker) readableModels(ctx context.Context, uid int64) (map[string]bool, error) {
	rules, err := t.exec(ctx, "ir.model.access", "search_read",
		[]interface{}{[]interface{}{
			[]interface{}{"perm_read", "=", true},
			"|",
			[]interface{}{"group_id", "=", false},
			[]interface{}{"group_id.users", "in", []interface{}{uid}},
		}},
		map[string]interface{}{"fields": []string{"model_id"}},
	)
	if err != nil {
		return nil, err
	}

	idSet := map[int64]bool{}
	for _, rec := range toRecordList(rules) {
		if pair, ok := rec["model_id"].([]interface{}); ok && len(pair) > 0 {
			if id, ok := toInt64(pair[0]); ok {
				idSet[id] = true
			}
		}
	}
	if len(idSet) == 0 {
		return map[string]bool{}, nil
	}

	ids := make([]interface{}, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	records, err := t.exec(ctx, "ir.model", "read",
		[]interface{}{ids},
		map[string]interface{}{"fields": []string{"model"}},
	)
	if err != nil {
		return nil, err
	}

	readable := map[string]bool{}
	for _, rec := range toRecordList(records) {
		if m, ok := rec["model"].(string); ok {
			readable[m] = true
		}
	}
	return readable, nil
}

// ListFields returns the field definitions of one model.
func (t *SchemaTracker) ListFields(ctx context.Context, model string) ([]FieldDef, error) {
	raw, err := t.exec(ctx, "ir.model.fields", "search_read",
		[]interface{}{[]interface{}{[]interface{}{"model", "=", model}}},
		map[string]interface{}{
			"fields": []string{"name", "ttype", "required", "readonly", "relation", "store", "compute"},
			"order":  "name",
		},
	)
	if err != nil {
		return nil, err
	}

	defs := make([]FieldDef, 0)
	for _, rec := range toRecordList(raw) {
		def := FieldDef{
			Name:     stringField(rec, "name"),
			Type:     stringField(rec, "ttype"),
			Required: boolField(rec, "required"),
			Readonly: boolField(rec, "readonly"),
			Relation: stringField(rec, "relation"),
			Store:    boolField(rec, "store"),
			Compute:  stringField(rec, "compute"),
		}
		if def.Name != "" {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// toRecordList coerces an RPC result into a list of record maps. Odoo
// renders search_read as a list of dicts; anything else yields nil.
func toRecordList(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

// toInt64 coerces the numeric types the two wire protocols produce.
func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

// stringField reads a string value, treating Odoo's false-for-empty
// convention as "".
func stringField(rec map[string]interface{}, key string) string {
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}

func boolField(rec map[string]interface{}, key string) bool {
	if b, ok := rec[key].(bool); ok {
		return b
	}
	return false
}
