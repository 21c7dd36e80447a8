package provider

import (
	"regexp"
	"time"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const claudeCodeInitTimeout = 60 * time.Second

var (
	// Example: "❯ "
	claudeCodePromptPattern = regexp.MustCompile(`(?m)^(?:❯|›|>|claude>|You>?)\s*$`)

	// Example: "claude: All tests pass now."
	claudeCodeAssistantPattern = regexp.MustCompile(`(?im)^(?:assistant|claude|agent)\s*:`)

	claudeCodeUserPattern = regexp.MustCompile(`(?m)^You\b`)
)

// ClaudeCodeProvider drives the Claude Code CLI.
type ClaudeCodeProvider struct {
	labelProvider
}

// NewClaudeCodeProvider builds a provider for an existing window. The
// profile is optional for Claude Code.
func NewClaudeCodeProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *ClaudeCodeProvider {
	if log == nil {
		log = logger.Default()
	}
	return &ClaudeCodeProvider{labelProvider{
		terminalRef: terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:        tm,
		log:         log,
		name:        "claude_code",
		kind:        KindClaudeCode,
		launch:      "claude",
		exitCommand: "/exit",
		idleLog:     `❯`,
		markers: markers{
			prompt:    claudeCodePromptPattern,
			assistant: claudeCodeAssistantPattern,
			user:      claudeCodeUserPattern,
		},
		initTimeout:  claudeCodeInitTimeout,
		shellTimeout: cfg.ShellTimeoutDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}}
}
