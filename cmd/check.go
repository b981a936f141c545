package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"odoomcp/internal/config"
	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// checkOffline skips the Odoo round-trip and only validates configuration.
var checkOffline bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and probe the Odoo backend",
	Long: `Loads and validates the gateway configuration, then authenticates
against the configured Odoo server and issues a version probe.

Use --offline to stop after validation, for example in CI where the
backend is not reachable.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	logging.InitForCLI(logging.LevelWarn, os.Stderr)
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "Configuration: %s\n", text.FgRed.Sprint("invalid"))
		fmt.Fprintf(out, "  %v\n", err)
		os.Exit(ExitCodeConfigInvalid)
	}
	fmt.Fprintf(out, "Configuration: %s\n", text.FgGreen.Sprint("ok"))
	fmt.Fprintf(out, "  Odoo URL:  %s\n", cfg.OdooURL)
	fmt.Fprintf(out, "  Database:  %s\n", cfg.Database)
	fmt.Fprintf(out, "  Protocol:  %s\n", cfg.Protocol)
	fmt.Fprintf(out, "  Transport: %s\n", cfg.ConnectionType)

	if checkOffline {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout())
	defer cancel()

	handler, err := odoo.NewHandler(cfg.Protocol, odoo.OptionsFromConfig(&cfg))
	if err != nil {
		fmt.Fprintf(out, "Connection:    %s\n", text.FgRed.Sprint("failed"))
		return err
	}
	defer handler.Close()

	start := time.Now()
	if err := odoo.VersionProbe(ctx, handler); err != nil {
		fmt.Fprintf(out, "Connection:    %s\n", text.FgRed.Sprint("failed"))
		return err
	}
	uid, err := handler.Authenticate(ctx, cfg.Database, cfg.Username, cfg.APIKey)
	if err != nil {
		fmt.Fprintf(out, "Connection:    %s\n", text.FgGreen.Sprint("ok"))
		fmt.Fprintf(out, "Authentication: %s\n", text.FgRed.Sprint("failed"))
		return err
	}

	fmt.Fprintf(out, "Connection:    %s (%s)\n",
		text.FgGreen.Sprint("ok"), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "Authentication: %s (uid %d)\n", text.FgGreen.Sprint("ok"), uid)
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkOffline, "offline", false,
		"Validate the configuration without contacting Odoo")
}
