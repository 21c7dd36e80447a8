package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/logreader"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/tmux"
)

// ErrInvalidOutputMode is returned by GetOutput for an unrecognized mode.
var ErrInvalidOutputMode = errors.New("invalid output mode")

const defaultRecentLines = 50

// Multiplexer is the tmux surface the service drives. *tmux.Client
// implements it.
type Multiplexer interface {
	HasSession(ctx context.Context, session string) bool
	CreateWindow(ctx context.Context, session, window string) error
	PipePane(ctx context.Context, session, window, file string) error
	SendKeys(ctx context.Context, session, window, text string) error
	CapturePane(ctx context.Context, session, window string, tailLines int) (string, error)
	KillWindow(ctx context.Context, session, window string) error
	ListWindows(ctx context.Context, session string) ([]string, error)
}

// Service owns terminal lifecycle: it provisions multiplexer windows, wires
// log capture, persists metadata, and boots providers. Either a terminal is
// fully registered and initialized, or no trace of it remains.
type Service struct {
	store       *Store
	tmux        Multiplexer
	providers   *provider.Manager
	reader      *logreader.Reader
	eventBus    bus.EventBus
	logger      *logger.Logger
	recentLines int
}

// NewService creates a terminal service. recentLines bounds mode=recent
// output; values <= 0 fall back to the default of 50.
func NewService(store *Store, tm Multiplexer, providers *provider.Manager, reader *logreader.Reader, eventBus bus.EventBus, log *logger.Logger, recentLines int) *Service {
	if log == nil {
		log = logger.Default()
	}
	if recentLines <= 0 {
		recentLines = defaultRecentLines
	}
	return &Service{
		store:       store,
		tmux:        tm,
		providers:   providers,
		reader:      reader,
		eventBus:    eventBus,
		logger:      log,
		recentLines: recentLines,
	}
}

// CreateTerminal provisions a window in the named session (a fresh session
// name is generated when none is given), pipes its output to the terminal
// log, persists metadata, and initializes the provider. Any failure tears
// down whatever was built before surfacing the error.
func (s *Service) CreateTerminal(ctx context.Context, kind provider.Kind, agentProfile, sessionName string) (*Terminal, error) {
	id := newTerminalID()

	session := sessionName
	if session == "" {
		session = generateSessionName()
	}

	window, err := s.nextWindowName(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := s.createWindow(ctx, session, window); err != nil {
		return nil, err
	}

	t := &Terminal{
		ID:           id,
		Session:      session,
		Window:       window,
		ProviderKind: kind,
		AgentProfile: agentProfile,
	}

	if err := s.tmux.PipePane(ctx, session, window, s.reader.LogPath(id)); err != nil {
		s.rollbackCreate(ctx, t, false, false)
		return nil, fmt.Errorf("failed to attach log pipe for terminal %s: %w", id, err)
	}

	if err := s.store.Create(ctx, t); err != nil {
		s.rollbackCreate(ctx, t, false, false)
		return nil, err
	}

	p, err := s.providers.CreateProvider(kind, id, session, window, agentProfile)
	if err != nil {
		s.rollbackCreate(ctx, t, true, false)
		return nil, err
	}

	if err := p.Initialize(ctx); err != nil {
		s.rollbackCreate(ctx, t, true, true)
		return nil, fmt.Errorf("failed to initialize %s terminal %s: %w", kind, id, err)
	}

	s.logger.Info("created terminal",
		zap.String("terminal_id", id),
		zap.String("session", session),
		zap.String("window", window),
		zap.String("kind", string(kind)))
	s.publishTerminalEvent(ctx, events.TerminalCreated, t)
	return t, nil
}

// DestroyTerminal asks the agent to exit, releases the provider, kills the
// window, and removes all metadata and log-reader state. Teardown steps are
// best-effort except metadata removal; pending inbox messages remain in the
// store as history.
func (s *Service) DestroyTerminal(ctx context.Context, id string) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if p, err := s.providers.Get(ctx, id); err == nil {
		if cmd := p.ExitCommand(); cmd != "" {
			if err := s.tmux.SendKeys(ctx, t.Session, t.Window, cmd); err != nil {
				s.logger.Warn("failed to send exit command",
					zap.String("terminal_id", id),
					zap.Error(err))
			}
		}
	}

	s.providers.CleanupProvider(id)

	if err := s.tmux.KillWindow(ctx, t.Session, t.Window); err != nil {
		s.logger.Warn("failed to kill window",
			zap.String("terminal_id", id),
			zap.String("session", t.Session),
			zap.String("window", t.Window),
			zap.Error(err))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.reader.ResetTerminal(id)

	s.logger.Info("destroyed terminal",
		zap.String("terminal_id", id),
		zap.String("session", t.Session))
	s.publishTerminalEvent(ctx, events.TerminalDestroyed, t)
	return nil
}

// SendInput types text into the terminal's window. The provider lookup
// doubles as the existence check; no readiness gating happens here.
func (s *Service) SendInput(ctx context.Context, id, text string) error {
	p, err := s.providers.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.tmux.SendKeys(ctx, p.Session(), p.Window(), text)
}

// GetOutput returns the terminal's output in the requested mode: the full
// scrollback, the recent tail, or the provider-extracted last agent reply.
func (s *Service) GetOutput(ctx context.Context, id, mode string) (string, error) {
	p, err := s.providers.Get(ctx, id)
	if err != nil {
		return "", err
	}

	switch mode {
	case OutputModeFull:
		return s.tmux.CapturePane(ctx, p.Session(), p.Window(), 0)
	case OutputModeRecent:
		return s.tmux.CapturePane(ctx, p.Session(), p.Window(), s.recentLines)
	case OutputModeLast:
		out, err := s.tmux.CapturePane(ctx, p.Session(), p.Window(), 0)
		if err != nil {
			return "", err
		}
		return p.ExtractLastMessage(out)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutputMode, mode)
	}
}

// GetStatus computes the terminal's current status from its scrollback.
func (s *Service) GetStatus(ctx context.Context, id string) (provider.Status, error) {
	p, err := s.providers.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Status(ctx, 0)
}

// ListTerminals returns all registered terminals.
func (s *Service) ListTerminals(ctx context.Context) ([]*Terminal, error) {
	return s.store.List(ctx)
}

// ListSessions returns the distinct sessions with their terminal counts.
func (s *Service) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	return s.store.ListSessions(ctx)
}

// ListSessionTerminals returns the terminals registered in one session.
func (s *Service) ListSessionTerminals(ctx context.Context, session string) ([]*Terminal, error) {
	return s.store.ListBySession(ctx, session)
}

// GetTerminal returns one terminal's metadata.
func (s *Service) GetTerminal(ctx context.Context, id string) (*Terminal, error) {
	return s.store.Get(ctx, id)
}

// nextWindowName numbers windows by the session's current window count, so
// names stay unique even when terminals were created by earlier runs.
func (s *Service) nextWindowName(ctx context.Context, session string) (string, error) {
	n := 0
	if s.tmux.HasSession(ctx, session) {
		windows, err := s.tmux.ListWindows(ctx, session)
		if err != nil {
			return "", err
		}
		n = len(windows)
	}
	return fmt.Sprintf("window-%d", n), nil
}

// createWindow retries once on a multiplexer failure before giving up.
func (s *Service) createWindow(ctx context.Context, session, window string) error {
	err := s.tmux.CreateWindow(ctx, session, window)
	if err == nil {
		return nil
	}
	if !errors.Is(err, tmux.ErrMultiplexerUnavailable) {
		return err
	}
	s.logger.Warn("retrying window creation",
		zap.String("session", session),
		zap.String("window", window),
		zap.Error(err))
	return s.tmux.CreateWindow(ctx, session, window)
}

// rollbackCreate undoes a partially created terminal. Every step is
// best-effort: the original error is what the caller needs to see.
func (s *Service) rollbackCreate(ctx context.Context, t *Terminal, deleteMetadata, cleanupProvider bool) {
	if cleanupProvider {
		s.providers.CleanupProvider(t.ID)
	}
	if err := s.tmux.KillWindow(ctx, t.Session, t.Window); err != nil {
		s.logger.Warn("rollback: failed to kill window",
			zap.String("terminal_id", t.ID),
			zap.Error(err))
	}
	if deleteMetadata {
		if err := s.store.Delete(ctx, t.ID); err != nil {
			s.logger.Warn("rollback: failed to delete terminal metadata",
				zap.String("terminal_id", t.ID),
				zap.Error(err))
		}
	}
	s.reader.ResetTerminal(t.ID)
}

// newTerminalID returns an 8-hex id, the first uuid segment. The store's
// primary key rejects a collision.
func newTerminalID() string {
	return uuid.New().String()[:8]
}

func generateSessionName() string {
	return "agentmux-" + uuid.New().String()[:8]
}

func (s *Service) publishTerminalEvent(ctx context.Context, eventType string, t *Terminal) {
	if s.eventBus == nil {
		return
	}

	data := map[string]interface{}{
		"terminal_id":   t.ID,
		"session":       t.Session,
		"window":        t.Window,
		"provider_kind": string(t.ProviderKind),
		"agent_profile": t.AgentProfile,
		"created_at":    t.CreatedAt.Format(time.RFC3339),
	}

	event := bus.NewEvent(eventType, "terminal-service", data)
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Error("failed to publish terminal event",
			zap.String("event_type", eventType),
			zap.String("terminal_id", t.ID),
			zap.Error(err))
	}
}
