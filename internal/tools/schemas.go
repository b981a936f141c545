package tools

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"odoomcp/internal/odoo"
)

// ValidateArguments checks args against a tool's JSON Schema. Violations
// come back as one schema-validation error listing every failing property.
func ValidateArguments(schema map[string]interface{}, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return odoo.NewValidationError(odoo.ValidationSchema, "argument validation failed: %v", err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return odoo.NewValidationError(odoo.ValidationSchema,
		"invalid arguments: %s", strings.Join(details, "; ")).
		WithDetail("errors", details)
}

// Schema property constructors. The same maps feed both the MCP tool
// declaration and gojsonschema validation.

func strProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func boundedIntProp(description string, min, max int) map[string]interface{} {
	return map[string]interface{}{
		"type": "integer", "description": description,
		"minimum": min, "maximum": max,
	}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func objProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": description}
}

func anyProp(description string) map[string]interface{} {
	return map[string]interface{}{"description": description}
}

func strListProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "array", "description": description,
		"items": map[string]interface{}{"type": "string"},
	}
}

func idListProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"oneOf": []interface{}{
			map[string]interface{}{"type": "integer"},
			map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "integer"},
			},
		},
	}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
