package security

import (
	"strings"
)

// maskStrategy selects how a sensitive value is rewritten.
type maskStrategy int

const (
	strategyGeneric maskStrategy = iota
	strategyEmail
	strategyDigits // mask digits, keep the last four characters
	strategyLast4  // mask everything, keep the last four characters
)

// builtinPII maps sensitive name fragments to their strategy. Single-token
// entries match any underscore-separated token of a field name; multi-token
// entries match a contiguous token run, so company_tax_id is caught while
// private or formatted stay clear.
var builtinPII = map[string]maskStrategy{
	"email":           strategyEmail,
	"phone":           strategyDigits,
	"mobile":          strategyDigits,
	"fax":             strategyDigits,
	"credit_card":     strategyDigits,
	"bank_account":    strategyDigits,
	"iban":            strategyDigits,
	"ssn":             strategyLast4,
	"tax_id":          strategyLast4,
	"vat":             strategyLast4,
	"passport":        strategyLast4,
	"drivers_license": strategyLast4,
}

// Masker rewrites PII values in records before they leave the gateway.
// Masking never mutates its input; shared (cached) values stay intact.
type Masker struct {
	enabled bool
	extra   map[string]bool
}

// NewMasker creates a masker. extraFields widens the builtin set with
// deployment-specific field names, masked with the generic strategy.
func NewMasker(enabled bool, extraFields []string) *Masker {
	m := &Masker{enabled: enabled, extra: make(map[string]bool)}
	for _, f := range extraFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			m.extra[f] = true
		}
	}
	return m
}

// Enabled reports whether masking is active.
func (m *Masker) Enabled() bool {
	return m.enabled
}

// MaskRecords walks a read result (record list, single record or scalar)
// and returns a copy with sensitive values masked. Disabled maskers return
// the input unchanged.
func (m *Masker) MaskRecords(result interface{}) interface{} {
	if !m.enabled {
		return result
	}
	return m.maskValue("", result)
}

func (m *Masker) maskValue(field string, value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, nested := range v {
			out[k] = m.maskValue(k, nested)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = m.maskValue(field, nested)
		}
		return out
	case string:
		if strategy, sensitive := m.strategyFor(field); sensitive {
			return mask(v, strategy)
		}
		if looksLikeCardNumber(v) {
			return mask(v, strategyDigits)
		}
		return v
	default:
		return value
	}
}

// strategyFor decides whether a field name is sensitive and with which
// strategy to mask it.
func (m *Masker) strategyFor(field string) (maskStrategy, bool) {
	if field == "" {
		return 0, false
	}
	name := strings.ToLower(field)
	if m.extra[name] {
		return strategyGeneric, true
	}

	tokens := strings.Split(name, "_")
	for keyword, strategy := range builtinPII {
		if matchTokens(tokens, strings.Split(keyword, "_")) {
			return strategy, true
		}
	}
	return 0, false
}

// matchTokens reports whether want appears as a contiguous run in tokens.
func matchTokens(tokens, want []string) bool {
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		match := true
		for j, w := range want {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func mask(value string, strategy maskStrategy) string {
	if value == "" {
		return value
	}
	switch strategy {
	case strategyEmail:
		return maskEmail(value)
	case strategyDigits:
		return maskDigits(value)
	case strategyLast4:
		return maskLast4(value)
	default:
		return maskGeneric(value)
	}
}

// maskEmail keeps the first and last character of the local part and the
// full domain: john.doe@example.com becomes j******e@example.com.
func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return maskGeneric(value)
	}
	local, rest := value[:at], value[at:]
	if len(local) <= 2 {
		return local + rest
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + rest
}

// maskDigits replaces every digit except the last four characters' worth,
// preserving separators: +1 555 123 4567 becomes +* *** *23 4567.
func maskDigits(value string) string {
	runes := []rune(value)
	cut := len(runes) - 4
	if cut < 0 {
		cut = 0
	}
	for i := 0; i < cut; i++ {
		if runes[i] >= '0' && runes[i] <= '9' {
			runes[i] = '*'
		}
	}
	return string(runes)
}

// maskLast4 hides everything but the last four characters.
func maskLast4(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// maskGeneric keeps the first and last character.
func maskGeneric(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
}

// looksLikeCardNumber flags values shaped like payment card numbers even
// when the field is not registered: 15 or more digits, or 13 with grouping
// separators, and nothing else. EAN-13 barcodes (13 bare digits) pass.
func looksLikeCardNumber(value string) bool {
	if len(value) < 13 || len(value) > 23 {
		return false
	}
	digits, separators := 0, 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
			separators++
		default:
			return false
		}
	}
	if digits < 13 || digits > 19 {
		return false
	}
	return digits >= 15 || separators > 0
}
