package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/internal/client"
	"github.com/agentmux/agentmux/internal/profile"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Create an agent session and attach to it",
	Long: `Create a tmux session running the given agent profile via the
control plane API, then attach to it.

The provider is resolved like the API does: the --provider flag wins,
then the profile's context frontmatter, then the recorded install
preference, then q_cli.

Example:
  agentmux launch --agents developer
  agentmux launch --agents reviewer --provider claude_code --headless`,
	RunE: runLaunch,
}

var (
	launchAgents      string
	launchProvider    string
	launchSessionName string
	launchHeadless    bool
)

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().StringVar(&launchAgents, "agents", "", "agent profile to launch (required)")
	launchCmd.Flags().StringVar(&launchSessionName, "session-name", "", "name of the session (default: auto-generated)")
	launchCmd.Flags().BoolVar(&launchHeadless, "headless", false, "launch in detached mode")
	launchCmd.Flags().StringVar(&launchProvider, "provider", "", "provider to use (default: provider in agent context or q_cli)")
	_ = launchCmd.MarkFlagRequired("agents")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := newCLILogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Resolve and validate the provider before touching the server.
	profiles := profile.NewManager(profile.DefaultPaths(cfg.HomeDir()), log)
	kind, err := profiles.ResolveProvider(launchProvider, launchAgents)
	if err != nil {
		return err
	}

	api := client.NewClient(cfg.APIBaseURL(), log)
	res, err := api.CreateSession(cmd.Context(), launchAgents, string(kind), launchSessionName)
	if err != nil {
		return err
	}

	fmt.Printf("Session created: %s\n", res.SessionName)
	fmt.Printf("Terminal created: %s\n", res.Name)

	if launchHeadless {
		return nil
	}

	return attachSession(cfg.Multiplexer.Binary, res.SessionName)
}

// attachSession hands the user's terminal over to tmux.
func attachSession(binary, session string) error {
	attach := exec.Command(binary, "attach-session", "-t", session)
	attach.Stdin = os.Stdin
	attach.Stdout = os.Stdout
	attach.Stderr = os.Stderr
	return attach.Run()
}
