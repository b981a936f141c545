// Package security hardens dispatched calls: implicit domain injection
// scopes queries to the caller's companies and own records, the PII masker
// rewrites sensitive values in responses, and the audit logger records every
// dispatch outcome.
package security

import (
	"context"
	"sync"
	"time"

	"odoomcp/internal/domain"
	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// companyScopedModels receive a company_id filter by default. The registry
// is extendable at runtime.
var companyScopedModels = []string{
	"sale.order", "purchase.order", "account.move", "stock.picking",
	"crm.lead", "project.project", "hr.employee",
}

// userScopedModels receive a user_id filter by default.
var userScopedModels = []string{
	"mail.message", "res.users.log", "hr.attendance",
}

// companyIDsTTL is how long a user's company list is trusted before being
// re-read. Company assignments change rarely; domains are compiled often.
const companyIDsTTL = time.Minute

// FieldLister reports the fields available on a model.
type FieldLister interface {
	ListFields(ctx context.Context, model string) ([]odoo.FieldDef, error)
}

// Injector AND-s security filters onto compiled domains. A filter is only
// added when the model is registered for that scope AND actually carries
// the filter field, so injection never produces an unknown-field fault.
type Injector struct {
	enabled bool
	exec    odoo.Executor
	fields  FieldLister

	mu            sync.Mutex
	companyModels map[string]bool
	userModels    map[string]bool
	companies     map[int64]companyEntry
}

type companyEntry struct {
	ids       []int64
	fetchedAt time.Time
}

// NewInjector creates an injector with the default model registry.
func NewInjector(enabled bool, exec odoo.Executor, fields FieldLister) *Injector {
	inj := &Injector{
		enabled:       enabled,
		exec:          exec,
		fields:        fields,
		companyModels: make(map[string]bool),
		userModels:    make(map[string]bool),
		companies:     make(map[int64]companyEntry),
	}
	for _, m := range companyScopedModels {
		inj.companyModels[m] = true
	}
	for _, m := range userScopedModels {
		inj.userModels[m] = true
	}
	return inj
}

// RegisterCompanyModel adds a model to the company-scoped registry.
func (i *Injector) RegisterCompanyModel(model string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.companyModels[model] = true
}

// RegisterUserModel adds a model to the user-scoped registry.
func (i *Injector) RegisterUserModel(model string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.userModels[model] = true
}

// Apply returns base AND-ed with the implicit filters for model. Injection
// failures widen to the base domain rather than failing the request; the
// caller's own access rights still apply at Odoo.
func (i *Injector) Apply(ctx context.Context, model string, uid int64, base []interface{}) []interface{} {
	if !i.enabled {
		return base
	}

	i.mu.Lock()
	wantCompany := i.companyModels[model]
	wantUser := i.userModels[model]
	i.mu.Unlock()
	if !wantCompany && !wantUser {
		return base
	}

	fieldSet, err := i.fieldSet(ctx, model)
	if err != nil {
		logging.Warn("Security", "Could not inspect %s for implicit domains: %v", model, err)
		return base
	}

	var implicit []interface{}
	if wantCompany && fieldSet["company_id"] {
		if ids, err := i.CompanyIDs(ctx, uid); err == nil && len(ids) > 0 {
			implicit = append(implicit, []interface{}{"company_id", "in", toList(ids)})
		}
	}
	if wantUser && fieldSet["user_id"] {
		implicit = append(implicit, []interface{}{"user_id", "=", uid})
	}

	if len(implicit) == 0 {
		return base
	}
	logging.Debug("Security", "Injected %d implicit filters on %s for uid %d", len(implicit), model, uid)
	return domain.And(base, implicit)
}

// CompanyIDs returns the companies uid may act in, reading res.users and
// caching the answer briefly.
func (i *Injector) CompanyIDs(ctx context.Context, uid int64) ([]int64, error) {
	i.mu.Lock()
	if entry, ok := i.companies[uid]; ok && time.Since(entry.fetchedAt) < companyIDsTTL {
		ids := entry.ids
		i.mu.Unlock()
		return ids, nil
	}
	i.mu.Unlock()

	result, err := i.exec(ctx, "res.users", "read",
		[]interface{}{[]interface{}{uid}},
		map[string]interface{}{"fields": []interface{}{"company_id", "company_ids"}})
	if err != nil {
		return nil, err
	}

	ids := extractCompanyIDs(result)

	i.mu.Lock()
	i.companies[uid] = companyEntry{ids: ids, fetchedAt: time.Now()}
	i.mu.Unlock()
	return ids, nil
}

func (i *Injector) fieldSet(ctx context.Context, model string) (map[string]bool, error) {
	defs, err := i.fields.ListFields(ctx, model)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(defs))
	for _, def := range defs {
		set[def.Name] = true
	}
	return set, nil
}

// extractCompanyIDs pulls the company id list from a res.users read result.
// company_ids is a plain id list; company_id arrives as [id, display_name]
// and seeds the list when company_ids is empty.
func extractCompanyIDs(result interface{}) []int64 {
	records, ok := result.([]interface{})
	if !ok || len(records) == 0 {
		return nil
	}
	record, ok := records[0].(map[string]interface{})
	if !ok {
		return nil
	}

	var ids []int64
	if raw, ok := record["company_ids"].([]interface{}); ok {
		for _, v := range raw {
			if id, ok := asInt64(v); ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		if pair, ok := record["company_id"].([]interface{}); ok && len(pair) > 0 {
			if id, ok := asInt64(pair[0]); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
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

func toList(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
