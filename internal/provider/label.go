package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
)

// labelProvider implements the shared machinery for agents whose replies are
// introduced by a textual label ("assistant:", "codex:", ...): q_cli,
// kiro_cli, claude_code and codex. Per-kind files supply the launch command,
// markers and timeouts.
type labelProvider struct {
	terminalRef

	tmux Multiplexer
	log  *logger.Logger

	name         string
	kind         Kind
	launch       string
	exitCommand  string
	idleLog      string
	markers      markers
	initTimeout  time.Duration
	shellTimeout time.Duration
	pollInterval time.Duration
}

func (p *labelProvider) Kind() Kind             { return p.kind }
func (p *labelProvider) ExitCommand() string    { return p.exitCommand }
func (p *labelProvider) IdleLogPattern() string { return p.idleLog }

// Initialize waits for a shell, launches the agent CLI and polls until it
// reports idle. Calling it again on an initialized provider is a no-op.
func (p *labelProvider) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.initialized {
		return nil
	}

	if err := waitForShell(ctx, p.tmux, p.session, p.window, p.shellTimeout); err != nil {
		return err
	}
	if err := p.tmux.SendKeys(ctx, p.session, p.window, p.launch); err != nil {
		return err
	}
	if err := waitUntilStatus(ctx, p, StatusIdle, p.initTimeout, p.pollInterval); err != nil {
		return err
	}

	p.initialized = true
	p.log.Info("provider initialized", zap.String("kind", string(p.kind)))
	return nil
}

// Status captures the window and applies the shared state rules to the
// normalized tail.
func (p *labelProvider) Status(ctx context.Context, tailLines int) (Status, error) {
	output, err := p.tmux.CapturePane(ctx, p.session, p.window, tailLines)
	if err != nil {
		return StatusError, err
	}
	if strings.TrimSpace(output) == "" {
		return StatusError, nil
	}

	clean := stripANSI(output)
	tail := tailOf(clean, statusWindow(tailLines))
	return classify(tail, p.markers), nil
}

// ExtractLastMessage returns the reply following the last assistant label in
// the given scrollback.
func (p *labelProvider) ExtractLastMessage(scrollback string) (string, error) {
	return extractByMarkers(stripANSI(scrollback), p.markers, p.name)
}

func (p *labelProvider) Cleanup() error {
	p.initMu.Lock()
	p.initialized = false
	p.initMu.Unlock()
	return nil
}
