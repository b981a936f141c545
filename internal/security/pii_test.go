package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func maskOne(t *testing.T, field string, value interface{}) interface{} {
	t.Helper()
	m := NewMasker(true, nil)
	out := m.MaskRecords([]interface{}{map[string]interface{}{field: value}})
	return out.([]interface{})[0].(map[string]interface{})[field]
}

func TestMaskerDisabledPassesThrough(t *testing.T) {
	m := NewMasker(false, nil)
	records := []interface{}{map[string]interface{}{"email": "john@example.com"}}

	out := m.MaskRecords(records)

	assert.Equal(t, records, out)
}

func TestMaskEmailKeepsDomain(t *testing.T) {
	assert.Equal(t, "j******e@example.com", maskOne(t, "email", "john.doe@example.com"))
	assert.Equal(t, "ab@x.com", maskOne(t, "email", "ab@x.com"))
	assert.Equal(t, "n**********l", maskOne(t, "email", "not-an-email"))
}

func TestMaskPhoneKeepsSeparatorsAndLastFour(t *testing.T) {
	assert.Equal(t, "+* *** *** 4567", maskOne(t, "phone", "+1 555 123 4567"))
	assert.Equal(t, "******4567", maskOne(t, "mobile", "5551234567"))
	assert.Equal(t, "123", maskOne(t, "fax", "123"))
}

func TestMaskIdentifiersKeepLastFour(t *testing.T) {
	assert.Equal(t, "*******6789", maskOne(t, "ssn", "123-45-6789"))
	assert.Equal(t, "********2701", maskOne(t, "vat", "BE0477472701"))
	assert.Equal(t, "****", maskOne(t, "passport", "X1"))
}

func TestMaskGenericKeepsFirstAndLast(t *testing.T) {
	m := NewMasker(true, []string{"internal_notes"})
	out := m.MaskRecords(map[string]interface{}{"internal_notes": "secret"})

	assert.Equal(t, "s****t", out.(map[string]interface{})["internal_notes"])
}

func TestFieldMatchingUsesNameTokens(t *testing.T) {
	m := NewMasker(true, nil)

	sensitive := []string{"email", "email_formatted", "work_email", "company_tax_id", "x_drivers_license"}
	for _, field := range sensitive {
		_, ok := m.strategyFor(field)
		assert.True(t, ok, "%s should be masked", field)
	}

	clear := []string{"private", "elevation", "tax", "taxed_amount", "id_card_layout", "formatted"}
	for _, field := range clear {
		_, ok := m.strategyFor(field)
		assert.False(t, ok, "%s should stay clear", field)
	}
}

func TestCardShapedValuesMaskedAnywhere(t *testing.T) {
	assert.Equal(t, "**** **** **** 1111", maskOne(t, "ref", "4111 1111 1111 1111"))
	assert.Equal(t, "************1881", maskOne(t, "ref", "4012888888881881"))
}

func TestBarcodesAndShortNumbersStayClear(t *testing.T) {
	// EAN-13 barcodes are thirteen bare digits and must not be treated
	// as card numbers.
	assert.Equal(t, "5901234123457", maskOne(t, "barcode", "5901234123457"))
	assert.Equal(t, "12345", maskOne(t, "ref", "12345"))
	assert.Equal(t, "2024-01-15", maskOne(t, "ref", "2024-01-15"))
}

func TestMaskingDoesNotMutateInput(t *testing.T) {
	m := NewMasker(true, nil)
	record := map[string]interface{}{"email": "john.doe@example.com", "name": "John"}
	records := []interface{}{record}

	out := m.MaskRecords(records)

	assert.Equal(t, "john.doe@example.com", record["email"], "input must stay intact")
	masked := out.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "j******e@example.com", masked["email"])
	assert.Equal(t, "John", masked["name"])
}

func TestMaskingRecursesIntoNestedValues(t *testing.T) {
	m := NewMasker(true, nil)
	records := []interface{}{
		map[string]interface{}{
			"name": "ACME",
			"contacts": []interface{}{
				map[string]interface{}{"email": "jane.roe@acme.com"},
			},
		},
	}

	out := m.MaskRecords(records)

	contact := out.([]interface{})[0].(map[string]interface{})["contacts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "j******e@acme.com", contact["email"])
}

func TestNonStringValuesUntouched(t *testing.T) {
	// Odoo returns false for empty scalar fields.
	assert.Equal(t, false, maskOne(t, "email", false))
	assert.Equal(t, float64(42), maskOne(t, "phone", float64(42)))
}
