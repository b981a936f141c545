package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"odoomcp/internal/config"
	"odoomcp/internal/tools"
)

// toolsOutputJSON switches the catalog listing to JSON with full schemas.
var toolsOutputJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tool catalog the gateway exposes",
	Long: `Prints every MCP tool the gateway registers, without connecting
to Odoo. Use --json for machine-readable output including each tool's
input schema.`,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	defs := tools.Catalog(tools.Deps{Config: &cfg})

	if toolsOutputJSON {
		type entry struct {
			Name        string                 `json:"name"`
			Description string                 `json:"description"`
			InputSchema map[string]interface{} `json:"input_schema"`
		}
		entries := make([]entry, 0, len(defs))
		for _, d := range defs {
			entries = append(entries, entry{d.Tool.Name, d.Tool.Description, d.Schema})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	sorted := make([]tools.Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tool.Name < sorted[j].Tool.Name })

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Tool", "Required", "Description"})
	for _, d := range sorted {
		t.AppendRow(table.Row{d.Tool.Name, requiredArgs(d.Schema), d.Tool.Description})
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d tools\n", len(sorted))
	return nil
}

// requiredArgs renders a schema's required list as a comma-joined cell.
func requiredArgs(schema map[string]interface{}) string {
	req, _ := schema["required"].([]string)
	if len(req) == 0 {
		return "-"
	}
	out := ""
	for i, r := range req {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().BoolVar(&toolsOutputJSON, "json", false,
		"Emit the catalog as JSON including input schemas")
}
