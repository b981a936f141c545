package domain

import "time"

// Placeholder tokens substituted into domain values before compilation.
const (
	TokenCurrentUserID     = "__current_user_id__"
	TokenCurrentCompanyIDs = "__current_company_ids__"
	TokenToday             = "__today__"
	TokenYesterday         = "__yesterday__"
	TokenTomorrow          = "__tomorrow__"
	TokenStartOfMonth      = "__start_of_month__"
	TokenStartOfYear       = "__start_of_year__"
	TokenCurrentMonth      = "__current_month__"
	TokenCurrentYear       = "__current_year__"
)

// dateLayout is the calendar-date form Odoo expects in domain values.
const dateLayout = "2006-01-02"

// PlaceholderTokens lists every token the resolver substitutes, for
// validation hints.
func PlaceholderTokens() []string {
	return []string{
		TokenCurrentUserID, TokenCurrentCompanyIDs,
		TokenToday, TokenYesterday, TokenTomorrow,
		TokenStartOfMonth, TokenStartOfYear,
		TokenCurrentMonth, TokenCurrentYear,
	}
}

// Resolver substitutes placeholder tokens with caller-specific values.
// A zero Now falls back to the wall clock; tests pin it.
type Resolver struct {
	UID        int64
	CompanyIDs []int64
	Now        time.Time
}

func (r Resolver) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

// Resolve expands placeholder tokens in a domain value. Lists are resolved
// element-wise; non-token values pass through untouched.
func (r Resolver) Resolve(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.resolveToken(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = r.Resolve(item)
		}
		return out
	default:
		return value
	}
}

func (r Resolver) resolveToken(s string) interface{} {
	switch s {
	case TokenCurrentUserID:
		return r.UID
	case TokenCurrentCompanyIDs:
		ids := make([]interface{}, len(r.CompanyIDs))
		for i, id := range r.CompanyIDs {
			ids[i] = id
		}
		return ids
	case TokenToday:
		return r.now().Format(dateLayout)
	case TokenYesterday:
		return r.now().AddDate(0, 0, -1).Format(dateLayout)
	case TokenTomorrow:
		return r.now().AddDate(0, 0, 1).Format(dateLayout)
	case TokenStartOfMonth:
		now := r.now()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)
	case TokenStartOfYear:
		now := r.now()
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)
	case TokenCurrentMonth:
		return int(r.now().Month())
	case TokenCurrentYear:
		return r.now().Year()
	}
	return s
}
