package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// shellPromptPattern matches a bare shell prompt at the end of captured
// output, before any agent CLI has been launched.
// Example: "user@host:~/project$ "
// Example: "% "
var shellPromptPattern = regexp.MustCompile(`[$%#>]\s*$`)

const shellPollInterval = 500 * time.Millisecond

// waitForShell polls the window until a shell prompt is visible, so the
// launch command is not typed into a half-started shell.
func waitForShell(ctx context.Context, tm Multiplexer, session, window string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		output, err := tm.CapturePane(ctx, session, window, 5)
		if err == nil {
			visible := strings.TrimRight(stripANSI(output), " \t\r\n")
			if visible != "" && shellPromptPattern.MatchString(visible) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: shell not ready after %s", ErrTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(shellPollInterval):
		}
	}
}

// waitUntilStatus polls the provider until it reports target. Transient
// status errors are tolerated while the CLI is still booting.
func waitUntilStatus(ctx context.Context, p Provider, target Status, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := p.Status(ctx, 0)
		if err == nil && status == target {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: status %s not reached after %s", ErrTimeout, target, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
