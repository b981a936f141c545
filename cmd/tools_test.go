package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsCommandTable(t *testing.T) {
	originalJSON := toolsOutputJSON
	defer func() { toolsOutputJSON = originalJSON }()
	toolsOutputJSON = false

	var buf bytes.Buffer
	toolsCmd.SetOut(&buf)
	require.NoError(t, runTools(toolsCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "odoo.search_read")
	assert.Contains(t, out, "create_session")
	assert.Contains(t, out, "odoo_execute_kw")
	assert.Contains(t, out, "tools\n")
}

func TestToolsCommandJSON(t *testing.T) {
	originalJSON := toolsOutputJSON
	defer func() { toolsOutputJSON = originalJSON }()
	toolsOutputJSON = true

	var buf bytes.Buffer
	toolsCmd.SetOut(&buf)
	require.NoError(t, runTools(toolsCmd, nil))

	var entries []struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		InputSchema map[string]interface{} `json:"input_schema"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.NotEmpty(t, entries)

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		assert.False(t, names[e.Name], "duplicate tool name %s", e.Name)
		names[e.Name] = true
		assert.NotEmpty(t, e.Description, "tool %s without description", e.Name)
		assert.NotNil(t, e.InputSchema, "tool %s without schema", e.Name)
	}
	assert.True(t, names["odoo.create"])
	assert.True(t, names["echo"])
}

func TestRequiredArgs(t *testing.T) {
	assert.Equal(t, "-", requiredArgs(map[string]interface{}{}))
	assert.Equal(t, "model", requiredArgs(map[string]interface{}{"required": []string{"model"}}))
	assert.Equal(t, "model, values", requiredArgs(map[string]interface{}{"required": []string{"model", "values"}}))
}
