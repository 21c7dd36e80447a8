// Package provider turns raw terminal scrollback into a well-defined agent
// state and drives the lifecycle of the interactive CLI behind each terminal.
//
// Each provider kind (q_cli, kiro_cli, claude_code, codex, droid,
// open_autoglm) knows how to launch its CLI inside an existing multiplexer
// window, how to recognize its ready-for-input prompt, and how to pull the
// agent's last reply out of free-form output.
package provider

import (
	"context"
	"fmt"
	"sync"
)

// Kind enumerates the supported interactive CLI agents. Values are the wire
// strings used by the HTTP API and persisted terminal metadata.
type Kind string

const (
	KindQCLI        Kind = "q_cli"
	KindKiroCLI     Kind = "kiro_cli"
	KindClaudeCode  Kind = "claude_code"
	KindCodex       Kind = "codex"
	KindDroid       Kind = "droid"
	KindOpenAutoGLM Kind = "open_autoglm"
)

// ParseKind validates a wire string and returns the matching Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindQCLI, KindKiroCLI, KindClaudeCode, KindCodex, KindDroid, KindOpenAutoGLM:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Status is the computed state of an agent process. It is derived from
// scrollback on every call and never stored.
type Status string

const (
	// StatusIdle means the prompt is visible and the agent awaits input.
	StatusIdle Status = "idle"
	// StatusProcessing means the agent is still producing output.
	StatusProcessing Status = "processing"
	// StatusWaitingUserAnswer means the agent is asking the user to approve
	// something, typically y/n.
	StatusWaitingUserAnswer Status = "waiting_user_answer"
	// StatusCompleted means the agent emitted a reply and is back at the
	// prompt.
	StatusCompleted Status = "completed"
	// StatusError means the output could not be reconciled with the state
	// model, or contains a fatal marker.
	StatusError Status = "error"
)

// Multiplexer is the slice of the tmux client providers need: reading a
// window's scrollback and typing into it.
type Multiplexer interface {
	CapturePane(ctx context.Context, session, window string, tailLines int) (string, error)
	SendKeys(ctx context.Context, session, window, text string) error
}

// Provider is the per-terminal agent contract.
//
// Status examines the last tailLines lines of scrollback (0 means full
// history with a default analysis window). ExtractLastMessage parses a reply
// out of the given scrollback without touching the terminal.
type Provider interface {
	TerminalID() string
	Session() string
	Window() string
	Profile() string
	Kind() Kind

	Initialize(ctx context.Context) error
	Status(ctx context.Context, tailLines int) (Status, error)
	ExtractLastMessage(scrollback string) (string, error)
	ExitCommand() string
	IdleLogPattern() string
	Cleanup() error
}

// terminalRef carries the identity every provider shares plus the
// initialization latch. Identity fields are immutable after construction.
type terminalRef struct {
	terminalID string
	session    string
	window     string
	profile    string

	initMu      sync.Mutex
	initialized bool
}

func (t *terminalRef) TerminalID() string { return t.terminalID }
func (t *terminalRef) Session() string    { return t.session }
func (t *terminalRef) Window() string     { return t.window }
func (t *terminalRef) Profile() string    { return t.profile }

var (
	_ Provider = (*QCLIProvider)(nil)
	_ Provider = (*KiroCLIProvider)(nil)
	_ Provider = (*ClaudeCodeProvider)(nil)
	_ Provider = (*CodexProvider)(nil)
	_ Provider = (*DroidProvider)(nil)
	_ Provider = (*OpenAutoGLMProvider)(nil)
)
