package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

// TerminalInfo is the persisted metadata the manager needs to rebuild a
// provider after a restart.
type TerminalInfo struct {
	ID      string
	Session string
	Window  string
	Kind    Kind
	Profile string
}

// TerminalLookup resolves a terminal id to its persisted metadata. The
// terminal store implements it.
type TerminalLookup interface {
	Lookup(ctx context.Context, terminalID string) (TerminalInfo, error)
}

// Manager owns the terminal-id to provider mapping. Providers are created
// explicitly when a terminal is created and rebuilt on demand from persisted
// metadata after a restart.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider

	tmux   Multiplexer
	lookup TerminalLookup
	cfg    config.ProviderConfig
	log    *logger.Logger
}

// NewManager creates an empty manager.
func NewManager(tm Multiplexer, lookup TerminalLookup, cfg config.ProviderConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		tmux:      tm,
		lookup:    lookup,
		cfg:       cfg,
		log:       log,
	}
}

// CreateProvider validates the kind, builds the provider and registers it
// under the terminal id.
func (m *Manager) CreateProvider(kind Kind, terminalID, session, window, profile string) (Provider, error) {
	p, err := m.build(kind, terminalID, session, window, profile)
	if err != nil {
		m.log.Error("failed to create provider",
			zap.String("terminal_id", terminalID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	m.providers[terminalID] = p
	m.mu.Unlock()

	m.log.Info("created provider",
		zap.String("terminal_id", terminalID),
		zap.String("kind", string(kind)))
	return p, nil
}

// Get returns the provider for a terminal, rebuilding it from persisted
// metadata when the mapping was lost to a restart.
func (m *Manager) Get(ctx context.Context, terminalID string) (Provider, error) {
	m.mu.RLock()
	p, ok := m.providers[terminalID]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	info, err := m.lookup.Lookup(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	built, err := m.build(info.Kind, info.ID, info.Session, info.Window, info.Profile)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.providers[terminalID]; ok {
		// Another caller rebuilt it first.
		return existing, nil
	}
	m.providers[terminalID] = built

	m.log.Info("rebuilt provider from metadata",
		zap.String("terminal_id", terminalID),
		zap.String("kind", string(info.Kind)))
	return built, nil
}

// CleanupProvider removes the mapping and releases the provider. Used when
// a terminal is destroyed.
func (m *Manager) CleanupProvider(terminalID string) {
	m.mu.Lock()
	p, ok := m.providers[terminalID]
	delete(m.providers, terminalID)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := p.Cleanup(); err != nil {
		m.log.Error("failed to cleanup provider",
			zap.String("terminal_id", terminalID),
			zap.Error(err))
		return
	}
	m.log.Info("cleaned up provider", zap.String("terminal_id", terminalID))
}

// ListProviders reports the active terminal-id to kind mapping, for
// debugging.
func (m *Manager) ListProviders() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.providers))
	for id, p := range m.providers {
		out[id] = string(p.Kind())
	}
	return out
}

// Shutdown releases every provider concurrently.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	providers := m.providers
	m.providers = make(map[string]Provider)
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, p := range providers {
		id, p := id, p
		g.Go(func() error {
			if err := p.Cleanup(); err != nil {
				return fmt.Errorf("cleanup provider %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) build(kind Kind, terminalID, session, window, profile string) (Provider, error) {
	log := m.log.WithTerminalID(terminalID)
	switch kind {
	case KindQCLI:
		if profile == "" {
			return nil, fmt.Errorf("%w by q_cli", ErrProfileRequired)
		}
		return NewQCLIProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	case KindKiroCLI:
		if profile == "" {
			return nil, fmt.Errorf("%w by kiro_cli", ErrProfileRequired)
		}
		return NewKiroCLIProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	case KindClaudeCode:
		return NewClaudeCodeProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	case KindCodex:
		return NewCodexProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	case KindDroid:
		return NewDroidProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	case KindOpenAutoGLM:
		return NewOpenAutoGLMProvider(m.tmux, m.cfg, log, terminalID, session, window, profile), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
