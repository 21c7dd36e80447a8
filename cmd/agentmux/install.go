package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/internal/profile"
	"github.com/agentmux/agentmux/internal/provider"
)

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install an agent profile",
	Long: `Install an agent profile from a URL, a local markdown file, or the
name of a profile already in the local store (~/.agentmux/agents).

Installing writes the agent-context file with the provider recorded in
its frontmatter, remembers the provider preference for launch, and for
q_cli and kiro_cli emits the provider's agent JSON config.

Example:
  agentmux install ./developer.md
  agentmux install https://example.com/profiles/reviewer.md --provider claude_code
  agentmux install developer --provider kiro_cli`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var installProvider string

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringVar(&installProvider, "provider", "", "provider the profile targets (default: q_cli)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := newCLILogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	kind := profile.DefaultKind
	if installProvider != "" {
		kind, err = provider.ParseKind(installProvider)
		if err != nil {
			return err
		}
	}

	mgr := profile.NewManager(profile.DefaultPaths(cfg.HomeDir()), log)
	res, err := mgr.Install(cmd.Context(), args[0], kind)
	if err != nil {
		return err
	}

	fmt.Printf("Installed agent profile: %s\n", res.Name)
	fmt.Printf("Context file: %s\n", res.ContextFile)
	if res.AgentFile != "" {
		fmt.Printf("Agent config: %s\n", res.AgentFile)
	}
	return nil
}
