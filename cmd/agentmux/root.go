package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentmux",
	Short: "Control plane for interactive CLI agents in tmux",
	Long: `agentmux runs interactive CLI agents (Amazon Q, Kiro, Claude Code,
Codex, Droid, Open-AutoGLM) inside tmux windows and drives them over an
HTTP API: create sessions, send input, capture output, classify agent
status, and queue inter-agent messages for idle-time delivery.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "directory containing config.yaml (default: ., ~/.agentmux, /etc/agentmux)")
}

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadWithPath(cfgFile)
	}
	return config.Load()
}

// newCLILogger builds a quiet logger for one-shot commands. Results go to
// stdout; only warnings and errors are logged.
func newCLILogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewLogger(logger.LoggingConfig{
		Level:      "warn",
		Format:     cfg.Logging.Format,
		OutputPath: "stderr",
	})
}
