package provider

import (
	"regexp"
	"time"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const codexInitTimeout = 60 * time.Second

var (
	// Ready-for-input prompt at the end of output.
	// Example: "❯ "
	// Example: "codex> "
	codexPromptPattern = regexp.MustCompile(`(?m)^(?:❯|›|>|codex>|You>?)\s*$`)

	// Label opening an agent reply.
	// Example: "assistant: Here's the fix"
	// Example: "codex: done"
	codexAssistantPattern = regexp.MustCompile(`(?im)^(?:assistant|codex|agent)\s*:`)

	// Label opening a user message in scrollback.
	// Example: "You Fix the failing tests"
	codexUserPattern = regexp.MustCompile(`(?m)^You\b`)
)

// CodexProvider drives the Codex CLI.
type CodexProvider struct {
	labelProvider
}

// NewCodexProvider builds a provider for an existing window. The profile is
// optional for Codex.
func NewCodexProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *CodexProvider {
	if log == nil {
		log = logger.Default()
	}
	return &CodexProvider{labelProvider{
		terminalRef: terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:        tm,
		log:         log,
		name:        "codex",
		kind:        KindCodex,
		launch:      "codex",
		exitCommand: "/exit",
		idleLog:     `❯`,
		markers: markers{
			prompt:    codexPromptPattern,
			assistant: codexAssistantPattern,
			user:      codexUserPattern,
		},
		initTimeout:  codexInitTimeout,
		shellTimeout: cfg.ShellTimeoutDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}}
}
