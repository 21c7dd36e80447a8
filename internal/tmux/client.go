package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
)

// Client shells out to the tmux binary. Every method takes a context and is
// bounded by the configured per-command timeout.
type Client struct {
	binary  string
	timeout time.Duration
	logger  *logger.Logger
}

// NewClient creates a tmux client from the multiplexer configuration.
func NewClient(cfg config.MultiplexerConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "tmux"
	}
	timeout := cfg.CommandTimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		binary:  binary,
		timeout: timeout,
		logger:  log.WithFields(zap.String("component", "tmux-client")),
	}
}

// Target formats a session:window tmux target.
func Target(session, window string) string {
	return session + ":" + window
}

// run executes a tmux command and returns its stdout. Failures are
// classified from the stderr tail: missing targets wrap ErrWindowNotFound,
// everything else ErrMultiplexerUnavailable.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		c.logger.Debug("tmux command failed",
			zap.Strings("args", args),
			zap.String("stderr", detail))
		return "", classifyRunError(args[0], detail)
	}
	return stdout.String(), nil
}

// classifyRunError picks the package error for a failed tmux invocation.
// tmux reports missing targets on stderr as "can't find window: ..." and
// "can't find session: ...", which happens when a window is killed outside
// agentmux; those map to ErrWindowNotFound so callers can 404 instead of
// treating tmux as down.
func classifyRunError(command, detail string) error {
	if strings.Contains(detail, "can't find") {
		return fmt.Errorf("%w: tmux %s: %s", ErrWindowNotFound, command, detail)
	}
	return fmt.Errorf("%w: tmux %s: %s", ErrMultiplexerUnavailable, command, detail)
}

// HasSession reports whether the named session exists. The = prefix forces
// an exact name match instead of tmux's default prefix matching.
func (c *Client) HasSession(ctx context.Context, session string) bool {
	_, err := c.run(ctx, "has-session", "-t", "="+session)
	return err == nil
}

// CreateWindow ensures the session exists and creates the named window in it.
// A missing session is created detached with the window as its first window.
func (c *Client) CreateWindow(ctx context.Context, session, window string) error {
	if c.HasSession(ctx, session) {
		_, err := c.run(ctx, "new-window", "-t", session, "-n", window)
		return err
	}
	_, err := c.run(ctx, "new-session", "-d", "-s", session, "-n", window)
	return err
}

// PipePane mirrors all pane output of the window into the given file.
// The -o flag toggles the pipe on only if none is active.
func (c *Client) PipePane(ctx context.Context, session, window, file string) error {
	_, err := c.run(ctx, "pipe-pane", "-t", Target(session, window),
		"-o", fmt.Sprintf("cat >> %s", file))
	return err
}

// SendKeys types text into the window followed by Enter. The text is sent
// with the literal flag so agent input is never interpreted as key names,
// and -- guards against text starting with a dash.
func (c *Client) SendKeys(ctx context.Context, session, window, text string) error {
	target := Target(session, window)
	if _, err := c.run(ctx, "send-keys", "-t", target, "-l", "--", text); err != nil {
		return err
	}
	_, err := c.run(ctx, "send-keys", "-t", target, "Enter")
	return err
}

// CapturePane returns the window's scrollback. tailLines > 0 captures that
// many lines from the end of history; tailLines <= 0 captures all history.
func (c *Client) CapturePane(ctx context.Context, session, window string, tailLines int) (string, error) {
	args := captureArgs(session, window, tailLines)
	return c.run(ctx, args...)
}

func captureArgs(session, window string, tailLines int) []string {
	args := []string{"capture-pane", "-p", "-t", Target(session, window)}
	if tailLines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", tailLines))
	} else {
		args = append(args, "-S", "-")
	}
	return args
}

// KillWindow destroys the window. Killing the last window of a session
// destroys the session as well.
func (c *Client) KillWindow(ctx context.Context, session, window string) error {
	_, err := c.run(ctx, "kill-window", "-t", Target(session, window))
	return err
}

// ListWindows returns the window names of a session.
func (c *Client) ListWindows(ctx context.Context, session string) ([]string, error) {
	out, err := c.run(ctx, "list-windows", "-t", session, "-F", "#{window_name}")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
