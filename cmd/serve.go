package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"odoomcp/internal/config"
	"odoomcp/internal/gateway"
	"odoomcp/pkg/logging"
)

// serveDebug forces debug-level logging regardless of the config file.
var serveDebug bool

// serveTransport overrides connection_type from the config file.
var serveTransport string

// shutdownTimeout bounds how long Stop may spend draining transports.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway",
	Long: `Starts the gateway on the configured transport and serves MCP
clients until terminated.

Transports:
  stdio            newline-delimited JSON-RPC on stdin/stdout (logs on stderr)
  http             POST /mcp, one JSON-RPC response per request
  streamable_http  POST /mcp with chunked streaming responses
  sse              GET /sse event stream plus POST /mcp inbound

The HTTP-family transports also expose GET /health and GET /events.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logs go to stderr before the config is even read: on the stdio
	// transport stdout belongs to the protocol.
	logging.InitForCLI(logging.LevelInfo, os.Stderr)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(ExitCodeConfigInvalid)
	}
	if serveTransport != "" {
		cfg.ConnectionType = serveTransport
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(ExitCodeConfigInvalid)
		}
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, cfg.Logging.Format, os.Stderr)

	srv, err := gateway.NewServer(&cfg, rootCmd.Version)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	waitErr := srv.Wait(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logging.Error("Serve", err, "Shutdown did not complete cleanly")
	}
	return waitErr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "",
		"Override the configured transport (stdio, http, streamable_http, sse)")
}
