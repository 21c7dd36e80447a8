// Package events provides event types and utilities for the agentmux event system.
package events

// Event types for terminal lifecycle
const (
	TerminalCreated   = "terminal.created"
	TerminalDestroyed = "terminal.destroyed"
)

// Event types for terminal log capture
const (
	TerminalLogUpdated = "terminal.log.updated" // Base subject for per-terminal log change events
)

// Event types for inbox messages
const (
	InboxMessageQueued    = "inbox.message.queued"
	InboxMessageDelivered = "inbox.message.delivered"
	InboxMessageFailed    = "inbox.message.failed"
)

// BuildLogUpdatedSubject creates a log change subject for a specific terminal
func BuildLogUpdatedSubject(terminalID string) string {
	return TerminalLogUpdated + "." + terminalID
}

// BuildLogUpdatedWildcardSubject creates a wildcard subscription for all log change events
func BuildLogUpdatedWildcardSubject() string {
	return TerminalLogUpdated + ".*"
}
