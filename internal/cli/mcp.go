package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guardloop/guardloop/internal/mcp"
)

var (
	mcpConfig   string
	mcpProfile  string
	mcpAuditLog string
	mcpEvents   string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpConfig, "config", "", "Path to sensitivity config YAML (default ~/.guardloop/config.yaml)")
	mcpCmd.Flags().StringVar(&mcpProfile, "profile", "", "Safeguard profile (none|pre_only|pre_mid|pre_mid_post)")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to hash-chained decision log (JSONL)")
	mcpCmd.Flags().StringVar(&mcpEvents, "events", "", "Path to telemetry events file (JSONL)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server on stdio",
	Long: "Exposes the hook stages as MCP tools (guardloop_pre_action,\n" +
		"guardloop_mid_trajectory, guardloop_post_action, guardloop_release,\n" +
		"guardloop_summary) for agent frameworks that speak MCP.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := mcp.New(mcp.Config{
		ConfigPath:  mcpConfig,
		ProfileName: mcpProfile,
		AuditPath:   mcpAuditLog,
		EventsPath:  mcpEvents,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return srv.Run(ctx)
}
