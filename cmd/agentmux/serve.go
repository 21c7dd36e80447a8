package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/db"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/inbox"
	"github.com/agentmux/agentmux/internal/logreader"
	"github.com/agentmux/agentmux/internal/mcpserver"
	"github.com/agentmux/agentmux/internal/profile"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/server"
	"github.com/agentmux/agentmux/internal/terminal"
	"github.com/agentmux/agentmux/internal/tmux"
	"github.com/agentmux/agentmux/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agentmux control plane",
	Long: `Start the control plane: the HTTP API, the terminal log watcher,
the inbox delivery scheduler, and (when enabled) the embedded MCP server.

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting agentmux...")

	// 3. Initialize event bus (in-memory, or NATS if configured)
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = busCleanup() }()
	eventBus := providedBus.Bus

	// 4. Open the database
	pool, err := db.Open(cfg.Database.Driver, cfg.DatabasePath(), cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = pool.Close() }()
	log.Info("Database initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("path", cfg.DatabasePath()))

	// 5. Stores (terminal metadata and inbox share the database)
	termStore, err := terminal.NewStore(pool.Writer(), pool.Reader())
	if err != nil {
		return fmt.Errorf("failed to initialize terminal store: %w", err)
	}
	inboxStore, err := inbox.NewStore(pool.Writer(), pool.Reader())
	if err != nil {
		return fmt.Errorf("failed to initialize inbox store: %w", err)
	}

	// 6. tmux client
	tm := tmux.NewClient(cfg.Multiplexer, log)

	// 7. Provider manager
	providers := provider.NewManager(tm, terminal.NewLookup(termStore), cfg.Provider, log)

	// 8. Log reader over the piped pane output
	logReader := logreader.NewReader(cfg.LogsDir(), cfg.Logs.BufferLines, log)

	// 9. Terminal service
	terminals := terminal.NewService(termStore, tm, providers, logReader, eventBus, log, cfg.Output.RecentLines)

	// 10. Inbox: service, log watcher, delivery scheduler
	inboxSvc := inbox.NewService(inboxStore, terminal.NewLookup(termStore), eventBus, log)
	watcher := inbox.NewWatcher(cfg.LogsDir(), cfg.Inbox.DebounceDuration(), eventBus, log)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start log watcher: %w", err)
	}
	scheduler := inbox.NewScheduler(inboxStore, providers, terminals, logReader, eventBus, log, cfg.Inbox.TailLines)
	if err := scheduler.Start(); err != nil {
		watcher.Stop()
		return fmt.Errorf("failed to start inbox scheduler: %w", err)
	}

	// 11. Agent profile manager
	profiles := profile.NewManager(profile.DefaultPaths(cfg.HomeDir()), log)

	// 12. HTTP API server
	srv := server.NewServer(terminals, inboxSvc, profiles, eventBus, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("API server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 13. Embedded MCP server (optional)
	var stopMCP func() error
	if cfg.MCP.Enabled {
		_, stopMCP, err = mcpserver.Provide(mcpserver.Config{
			Port:   cfg.MCP.Port,
			APIURL: cfg.MCPAPIBaseURL(),
		}, log)
		if err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
	}

	log.Info("agentmux ready",
		zap.String("api", cfg.APIBaseURL()),
		zap.String("home", cfg.HomeDir()),
		zap.Bool("mcp", cfg.MCP.Enabled))

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agentmux...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if stopMCP != nil {
		if err := stopMCP(); err != nil {
			log.Error("MCP server shutdown error", zap.Error(err))
		}
	}

	scheduler.Stop()
	watcher.Stop()

	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Provider shutdown error", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("agentmux stopped")
	return nil
}
