// Package tmux provides a client for the tmux terminal multiplexer.
package tmux

import "errors"

var (
	// ErrMultiplexerUnavailable is returned when a tmux command fails to execute.
	ErrMultiplexerUnavailable = errors.New("terminal multiplexer unavailable")

	// ErrWindowNotFound is returned when the target session:window does not exist.
	ErrWindowNotFound = errors.New("tmux window not found")
)
