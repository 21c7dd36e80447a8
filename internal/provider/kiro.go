package provider

import (
	"regexp"
	"time"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const kiroCLIInitTimeout = 30 * time.Second

// kiroCLIIdleLogPattern matches the prompt in piped log files. Kiro renders
// the same magenta prompt as the Q CLI.
const kiroCLIIdleLogPattern = `\x1b\[38;5;13m>\x1b\[39m`

var (
	// Example: "> "
	kiroCLIPromptPattern = regexp.MustCompile(`(?m)^>\s*$`)

	// Example: "assistant: Done, see the diff below."
	kiroCLIAssistantPattern = regexp.MustCompile(`(?im)^(?:assistant|kiro|agent)\s*:`)

	kiroCLIUserPattern = regexp.MustCompile(`(?m)^You\b`)
)

// KiroCLIProvider drives the Kiro CLI in chat mode. It always launches
// against a named agent profile.
type KiroCLIProvider struct {
	labelProvider
}

// NewKiroCLIProvider builds a provider for an existing window. Kind
// validation in the manager guarantees profile is non-empty.
func NewKiroCLIProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *KiroCLIProvider {
	if log == nil {
		log = logger.Default()
	}
	return &KiroCLIProvider{labelProvider{
		terminalRef: terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:        tm,
		log:         log,
		name:        "kiro_cli",
		kind:        KindKiroCLI,
		launch:      "kiro-cli chat --agent " + shellQuote(profile),
		exitCommand: "/quit",
		idleLog:     kiroCLIIdleLogPattern,
		markers: markers{
			prompt:    kiroCLIPromptPattern,
			assistant: kiroCLIAssistantPattern,
			user:      kiroCLIUserPattern,
		},
		initTimeout:  kiroCLIInitTimeout,
		shellTimeout: cfg.ShellTimeoutDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}}
}
