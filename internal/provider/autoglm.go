package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

const (
	autoglmInitTimeout  = 60 * time.Second
	autoglmPollInterval = 2 * time.Second
	autoglmErrorTail    = 20
)

var (
	// Agent phase markers, bilingual.
	// Example: "💭 思考过程: analyzing the screen"
	// Example: "💭 Thinking: locating the button"
	autoglmThinkingPattern = regexp.MustCompile(`💭\s+(?:思考过程|Thinking):`)

	// Example: "🎯 执行动作: tap(120, 400)"
	// Example: "🎯 Action: swipe up"
	autoglmActionPattern = regexp.MustCompile(`🎯\s+(?:执行动作|Action):`)

	// Example: "最终结果: order placed"
	// Example: "Final Result: the task has been completed"
	autoglmResultPattern = regexp.MustCompile(`(?i)(?:最终结果|Final Result|任务结果|Task Result):`)

	// Example: "任务完成"
	// Example: "Task Completed"
	autoglmDonePattern = regexp.MustCompile(`(?i)(?:任务完成|Task Completed|完成|Done)`)

	// Example: "连接失败: no devices found"
	autoglmErrorPattern = regexp.MustCompile(`(?i)(?:错误|Error|失败|Failed|连接失败|Connection Failed)`)

	// Example: "Enter your task: "
	autoglmIdlePromptPattern = regexp.MustCompile(`Enter your task:|Type 'quit' to exit|Goodbye!`)

	// Example: "Entering interactive mode"
	autoglmInteractivePattern = regexp.MustCompile(`Entering interactive mode|Type 'quit' to exit`)

	// End of the JSON block an action prints, used as the fallback
	// extraction anchor.
	autoglmJSONEndPattern = regexp.MustCompile(`\n\s*}\s*\n`)
)

// OpenAutoGLMProvider drives an Open-AutoGLM checkout in interactive mode.
// Unlike the label-based agents it reports phases with emoji/CJK markers
// rather than an assistant label.
type OpenAutoGLMProvider struct {
	terminalRef

	tmux Multiplexer
	log  *logger.Logger

	launch       string
	shellTimeout time.Duration
}

// NewOpenAutoGLMProvider builds a provider for an existing window. The CLI
// is started from the configured checkout directory.
func NewOpenAutoGLMProvider(tm Multiplexer, cfg config.ProviderConfig, log *logger.Logger, terminalID, session, window, profile string) *OpenAutoGLMProvider {
	if log == nil {
		log = logger.Default()
	}
	return &OpenAutoGLMProvider{
		terminalRef:  terminalRef{terminalID: terminalID, session: session, window: window, profile: profile},
		tmux:         tm,
		log:          log,
		launch:       fmt.Sprintf("cd %s && python main.py", shellQuote(filepath.Dir(cfg.AutoGLMMain()))),
		shellTimeout: cfg.ShellTimeoutDuration(),
	}
}

func (p *OpenAutoGLMProvider) Kind() Kind             { return KindOpenAutoGLM }
func (p *OpenAutoGLMProvider) ExitCommand() string    { return "quit" }
func (p *OpenAutoGLMProvider) IdleLogPattern() string { return "Enter your task:" }

// Initialize starts the CLI and waits for its interactive prompt. Device
// setup can take a while, so polling is slower than for the other kinds and
// a timeout inspects recent output for a startup error before giving up.
func (p *OpenAutoGLMProvider) Initialize(ctx context.Context) error {
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
	if err := waitUntilStatus(ctx, p, StatusIdle, autoglmInitTimeout, autoglmPollInterval); err != nil {
		if output, captureErr := p.tmux.CapturePane(ctx, p.session, p.window, autoglmErrorTail); captureErr == nil {
			if autoglmErrorPattern.MatchString(output) {
				return fmt.Errorf("open_autoglm startup failed: %s", strings.TrimSpace(output))
			}
		}
		return err
	}

	p.initialized = true
	p.log.Info("provider initialized", zap.String("kind", string(KindOpenAutoGLM)))
	return nil
}

// Status applies the marker chain: error wins, then an in-flight phase, then
// a finished result back at the prompt, then a bare interactive prompt.
// Output matching none of them is unreconcilable.
func (p *OpenAutoGLMProvider) Status(ctx context.Context, tailLines int) (Status, error) {
	output, err := p.tmux.CapturePane(ctx, p.session, p.window, tailLines)
	if err != nil {
		return StatusError, err
	}
	if strings.TrimSpace(output) == "" {
		return StatusError, nil
	}

	tail := tailOf(stripANSI(output), statusWindow(tailLines))

	switch {
	case autoglmErrorPattern.MatchString(tail):
		return StatusError, nil
	case autoglmThinkingPattern.MatchString(tail), autoglmActionPattern.MatchString(tail):
		return StatusProcessing, nil
	case (autoglmResultPattern.MatchString(tail) || autoglmDonePattern.MatchString(tail)) &&
		autoglmIdlePromptPattern.MatchString(tail):
		return StatusCompleted, nil
	case autoglmInteractivePattern.MatchString(tail), autoglmIdlePromptPattern.MatchString(tail):
		return StatusIdle, nil
	default:
		return StatusError, nil
	}
}

// ExtractLastMessage returns the content block after the last result marker,
// falling back to the text after the last action's JSON block.
func (p *OpenAutoGLMProvider) ExtractLastMessage(scrollback string) (string, error) {
	clean := stripANSI(scrollback)

	anchor := lastMatchEnd(autoglmResultPattern, clean)
	if anchor < 0 {
		anchor = lastMatchEnd(autoglmDonePattern, clean)
	}
	if anchor >= 0 {
		msg := collectResultLines(clean[anchor:])
		if msg == "" {
			return "", fmt.Errorf("open_autoglm: %w", ErrEmptyResponse)
		}
		return msg, nil
	}

	actionEnd := lastMatchEnd(autoglmActionPattern, clean)
	if actionEnd >= 0 {
		rest := clean[actionEnd:]
		if loc := autoglmJSONEndPattern.FindStringIndex(rest); loc != nil {
			if msg := collectResultLines(rest[loc[1]:]); msg != "" {
				return msg, nil
			}
		}
	}

	return "", fmt.Errorf("open_autoglm: %w", ErrNoResponse)
}

func (p *OpenAutoGLMProvider) Cleanup() error {
	p.initMu.Lock()
	p.initialized = false
	p.initMu.Unlock()
	return nil
}

func lastMatchEnd(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][1]
}

// collectResultLines gathers the first contiguous block of content lines,
// skipping blank lines and "="/"-" separators before it and stopping at the
// first one after it.
func collectResultLines(text string) string {
	var result []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "=") || strings.HasPrefix(line, "-") {
			if len(result) > 0 {
				break
			}
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}
