package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the standalone MCP server",
	Long: `Run an MCP server that exposes the control plane API as tools for
MCP-compatible clients.

The server supports two transports:
  - SSE (Server-Sent Events) at /sse for Claude Desktop, Cursor
  - Streamable HTTP at /mcp for Codex

A running agentmux serve is required; the tools proxy its HTTP API.`,
	RunE: runMCP,
}

var mcpPort int

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().IntVar(&mcpPort, "port", 0, "port to listen on (overrides config)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	mcpCfg := mcpserver.Config{
		Port:   cfg.MCP.Port,
		APIURL: cfg.MCPAPIBaseURL(),
	}
	if mcpPort != 0 {
		mcpCfg.Port = mcpPort
	}

	srv, stopMCP, err := mcpserver.Provide(mcpCfg, log)
	if err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	fmt.Printf("agentmux MCP server running on :%d\n", srv.Port())
	fmt.Printf("Control plane API: %s\n", mcpCfg.APIURL)
	fmt.Printf("SSE endpoint: %s (for Claude Desktop, Cursor)\n", srv.SSEEndpoint())
	fmt.Printf("Streamable HTTP endpoint: %s (for Codex)\n", srv.StreamableHTTPEndpoint())

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down MCP server...")

	if err := stopMCP(); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}

	log.Info("MCP server stopped")
	return nil
}
