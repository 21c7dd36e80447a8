// Package terminal manages the lifecycle of agent terminals: multiplexer
// windows, persisted metadata, and the providers that drive them.
package terminal

import (
	"time"

	"github.com/agentmux/agentmux/internal/provider"
)

// Terminal is one managed agent window inside a multiplexer session.
type Terminal struct {
	ID           string        `json:"id" db:"id"`
	Session      string        `json:"session" db:"session"`
	Window       string        `json:"window" db:"window"`
	ProviderKind provider.Kind `json:"provider_kind" db:"provider_kind"`
	AgentProfile string        `json:"agent_profile" db:"agent_profile"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// SessionSummary is a multiplexer session with its terminal count.
type SessionSummary struct {
	Name          string `json:"name" db:"session"`
	TerminalCount int    `json:"terminal_count" db:"terminal_count"`
}

// Output modes accepted by GetOutput.
const (
	// OutputModeFull returns the entire captured scrollback.
	OutputModeFull = "full"
	// OutputModeRecent returns the last output.recent_lines lines.
	OutputModeRecent = "recent"
	// OutputModeLast returns the agent's most recent reply, extracted by
	// the provider.
	OutputModeLast = "last"
)
