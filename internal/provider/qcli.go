package provider

import (
	"regexp"
	"time"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const qcliInitTimeout = 30 * time.Second

// qcliIdleLogPattern matches the magenta prompt as it appears in piped log
// files, where ANSI sequences are preserved.
const qcliIdleLogPattern = `\x1b\[38;5;13m>\x1b\[39m`

var (
	// Prompt after ANSI stripping.
	// Example: "> "
	qcliPromptPattern = regexp.MustCompile(`(?m)^>\s*$`)

	// Example: "assistant: I updated the handler."
	qcliAssistantPattern = regexp.MustCompile(`(?im)^(?:assistant|q|agent)\s*:`)

	qcliUserPattern = regexp.MustCompile(`(?m)^You\b`)
)

// QCLIProvider drives the Amazon Q CLI in chat mode. It always launches
// against a named agent profile.
type QCLIProvider struct {
	labelProvider
}

// NewQCLIProvider builds a provider for an existing window. Kind validation
// in the manager guarantees profile is non-empty.
func NewQCLIProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *QCLIProvider {
	if log == nil {
		log = logger.Default()
	}
	return &QCLIProvider{labelProvider{
		terminalRef: terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:        tm,
		log:         log,
		name:        "q_cli",
		kind:        KindQCLI,
		launch:      "q chat --agent " + shellQuote(profile),
		exitCommand: "/quit",
		idleLog:     qcliIdleLogPattern,
		markers: markers{
			prompt:    qcliPromptPattern,
			assistant: qcliAssistantPattern,
			user:      qcliUserPattern,
		},
		initTimeout:  qcliInitTimeout,
		shellTimeout: cfg.ShellTimeoutDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}}
}
