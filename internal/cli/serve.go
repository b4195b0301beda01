package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guardloop/guardloop/internal/server"
)

var (
	serveAddr        string
	serveConfig      string
	serveProfile     string
	serveSensitivity float64
	serveAuditLog    string
	serveEvents      string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8472", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to sensitivity config YAML (default ~/.guardloop/config.yaml)")
	serveCmd.Flags().StringVar(&serveProfile, "profile", "", "Safeguard profile (none|pre_only|pre_mid|pre_mid_post)")
	serveCmd.Flags().Float64Var(&serveSensitivity, "sensitivity", -1, "Override base sensitivity in [0,1]")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to hash-chained decision log (JSONL)")
	serveCmd.Flags().StringVar(&serveEvents, "events", "", "Path to telemetry events file (JSONL)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the escalation engine HTTP server",
	Long: "Runs guardloop as an HTTP sidecar. Agent loops post hook evaluations to\n" +
		"/v1/hooks/*, operators release paused decisions via /v1/sessions/{id}/release.\n" +
		"The sensitivity config file is hot-reloaded on change.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	srv, err := server.New(server.Config{
		Addr:        serveAddr,
		ConfigPath:  serveConfig,
		ProfileName: serveProfile,
		Sensitivity: serveSensitivity,
		AuditPath:   serveAuditLog,
		EventsPath:  serveEvents,
	}, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := server.NewReloader(srv, serveConfig, logger)
	if err != nil {
		logger.Warn("hot-reload disabled", "error", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	return srv.Start(ctx)
}
