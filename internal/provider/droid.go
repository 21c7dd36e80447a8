package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const droidInitTimeout = 30 * time.Second

// droidIdleLogPattern tolerates the frame characters Droid draws around its
// prompt, which survive into piped log files.
const droidIdleLogPattern = `>\s*[\x{2500}-\x{257F}\s]*$`

// droidPromptPattern matches the bare prompt once ANSI and box-drawing
// characters are stripped.
// Example: "> "
var droidPromptPattern = regexp.MustCompile(`(?m)^\s*>\s*$`)

// DroidProvider drives the Droid CLI. Droid has no textual reply label; its
// prompt is a framed ">", so state and extraction work off prompt counts:
// no prompt means it is still working, one prompt means freshly ready, two
// or more mean the last reply has landed between them.
type DroidProvider struct {
	terminalRef

	tmux Multiplexer
	log  *logger.Logger

	launch       string
	shellTimeout time.Duration
	pollInterval time.Duration
}

// NewDroidProvider builds a provider for an existing window. A non-empty
// profile is passed to the droid binary as its quoted first argument.
func NewDroidProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *DroidProvider {
	if log == nil {
		log = logger.Default()
	}
	launch := "droid"
	if profile != "" {
		launch += " " + shellQuote(profile)
	}
	return &DroidProvider{
		terminalRef:  terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:         tm,
		log:          log,
		launch:       launch,
		shellTimeout: cfg.ShellTimeoutDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}
}

func (p *DroidProvider) Kind() Kind             { return KindDroid }
func (p *DroidProvider) ExitCommand() string    { return "/quit" }
func (p *DroidProvider) IdleLogPattern() string { return droidIdleLogPattern }

func (p *DroidProvider) Initialize(ctx context.Context) error {
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
	if err := waitUntilStatus(ctx, p, StatusIdle, droidInitTimeout, p.pollInterval); err != nil {
		return err
	}

	p.initialized = true
	p.log.Info("provider initialized", zap.String("kind", string(KindDroid)))
	return nil
}

// Status counts prompts in the normalized tail.
func (p *DroidProvider) Status(ctx context.Context, tailLines int) (Status, error) {
	output, err := p.tmux.CapturePane(ctx, p.session, p.window, tailLines)
	if err != nil {
		return StatusError, err
	}
	if strings.TrimSpace(output) == "" {
		return StatusError, nil
	}

	tail := tailOf(normalizeDroid(output), statusWindow(tailLines))
	switch prompts := droidPromptPattern.FindAllStringIndex(tail, -1); {
	case len(prompts) == 0:
		return StatusProcessing, nil
	case len(prompts) >= 2:
		return StatusCompleted, nil
	default:
		return StatusIdle, nil
	}
}

// ExtractLastMessage returns the text between the penultimate and last
// prompt of the given scrollback.
func (p *DroidProvider) ExtractLastMessage(scrollback string) (string, error) {
	clean := normalizeDroid(scrollback)
	prompts := droidPromptPattern.FindAllStringIndex(clean, -1)
	if len(prompts) < 2 {
		return "", fmt.Errorf("droid: %w: fewer than two prompts", ErrNoResponse)
	}

	prev := prompts[len(prompts)-2]
	last := prompts[len(prompts)-1]
	msg := strings.TrimSpace(clean[prev[1]:last[0]])
	if msg == "" {
		return "", fmt.Errorf("droid: %w", ErrEmptyResponse)
	}
	return msg, nil
}

func (p *DroidProvider) Cleanup() error {
	p.initMu.Lock()
	p.initialized = false
	p.initMu.Unlock()
	return nil
}

func normalizeDroid(s string) string {
	return stripBoxDrawing(stripANSI(s))
}
