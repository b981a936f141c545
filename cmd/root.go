package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigInvalid indicates the configuration failed validation.
	ExitCodeConfigInvalid = 2
)

// configPath is the location of the gateway's YAML configuration.
// Connection secrets may also arrive through ODOO_URL / ODOO_DATABASE /
// ODOO_USERNAME / ODOO_API_KEY, which override the file.
var configPath string

// rootCmd is the entry point when the binary is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "odoomcp",
	Short: "MCP gateway for Odoo ERP backends",
	Long: `odoomcp bridges the Model Context Protocol to an Odoo backend.
AI assistant clients call a catalog of tools (ORM operations, workflow
actions, schema introspection) and read odoo:// resources; the gateway
translates each call into authenticated Odoo RPC, applies security and
rate controls, and streams responses over stdio, HTTP or SSE.`,
	// Handled errors should not re-print usage.
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"Path to the gateway configuration file")
}
