package provider

import "errors"

var (
	// ErrUnknownKind is returned for a provider kind outside the enum.
	ErrUnknownKind = errors.New("unknown provider kind")

	// ErrProfileRequired is returned when a kind that launches through an
	// agent profile is created without one.
	ErrProfileRequired = errors.New("agent profile required")

	// ErrUnknownTerminal is returned when a provider is requested for a
	// terminal id with no persisted metadata.
	ErrUnknownTerminal = errors.New("unknown terminal")

	// ErrTimeout is returned when shell or agent initialization does not
	// reach the expected state within its deadline.
	ErrTimeout = errors.New("timed out")

	// ErrNoResponse is returned when no assistant reply can be located in
	// the scrollback.
	ErrNoResponse = errors.New("no agent response found")

	// ErrEmptyResponse is returned when a reply is located but trims to
	// nothing.
	ErrEmptyResponse = errors.New("empty agent response")
)
