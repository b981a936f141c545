package domain

import "sort"

// presets are ready-made object-form domains for filters clients ask for
// constantly. They compile through the normal path, so placeholders resolve
// against the caller's uid and companies.
var presets = map[string]map[string]interface{}{
	"active_records": {
		"and": []interface{}{
			[]interface{}{"active", "=", true},
		},
	},
	"this_month": {
		"and": []interface{}{
			[]interface{}{"create_date", ">=", TokenStartOfMonth},
		},
	},
	"this_year": {
		"and": []interface{}{
			[]interface{}{"create_date", ">=", TokenStartOfYear},
		},
	},
	"my_records": {
		"and": []interface{}{
			[]interface{}{"user_id", "=", TokenCurrentUserID},
		},
	},
	"my_company": {
		"and": []interface{}{
			[]interface{}{"company_id", "in", TokenCurrentCompanyIDs},
		},
	},
	"draft_state": {
		"and": []interface{}{
			[]interface{}{"state", "=", "draft"},
		},
	},
	"confirmed_state": {
		"and": []interface{}{
			[]interface{}{"state", "=", "confirmed"},
		},
	},
	"my_quotations": {
		"and": []interface{}{
			[]interface{}{"state", "in", []interface{}{"draft", "sent"}},
			[]interface{}{"user_id", "=", TokenCurrentUserID},
		},
	},
}

// Preset returns the object-form domain registered under name.
func Preset(name string) (map[string]interface{}, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames returns the registered preset names, sorted for stable hints.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
