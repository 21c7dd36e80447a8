package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultStatusTailLines bounds how much scrollback the state rules examine
// when the caller asks for full history. Historical prompts and old error
// lines above this window must not be mistaken for the current state.
const defaultStatusTailLines = 25

var (
	// ANSI CSI color/style sequences, stripped before any pattern matching.
	// Example: "\x1b[38;5;13m>\x1b[39m"
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

	// Unicode box-drawing characters. Some agents render a framed prompt;
	// their output is stripped of the frame before parsing.
	boxDrawingPattern = regexp.MustCompile(`[\x{2500}-\x{257F}]`)

	// Approval/permission question awaiting a user answer.
	// Example: "Approve running command? (y/n)"
	// Example: "Allow file write? yes/no"
	waitingAnswerPattern = regexp.MustCompile(`(?is)(approve|allow).*(y/n|yes|no)`)
)

// fatalLinePrefixes force ERROR only when a tail line starts with one of
// them. A bare "failed" somewhere in assistant prose never does.
var fatalLinePrefixes = []string{
	"Error:",
	"ERROR:",
	"Traceback (most recent call last):",
	"panic:",
}

// markers holds the per-kind regexes the shared state rules run on
// normalized scrollback. All three are compiled with (?m) so they work both
// per-line and across the full text.
type markers struct {
	prompt    *regexp.Regexp // ready-for-input prompt line
	assistant *regexp.Regexp // label opening an agent reply
	user      *regexp.Regexp // label opening a user message
}

// stripANSI removes CSI color/style sequences.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// stripBoxDrawing removes U+2500..U+257F frame characters.
func stripBoxDrawing(s string) string {
	return boxDrawingPattern.ReplaceAllString(s, "")
}

// tailOf returns the last n lines of text, or all of it when n is
// non-positive or text is shorter.
func tailOf(text string, n int) string {
	if n <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// statusWindow picks the analysis window: the caller's tail when given,
// otherwise the default.
func statusWindow(tailLines int) int {
	if tailLines > 0 {
		return tailLines
	}
	return defaultStatusTailLines
}

// classify applies the shared state rules to a normalized tail, in priority
// order. The caller has already ruled out empty scrollback.
func classify(tail string, m markers) Status {
	lines := strings.Split(tail, "\n")

	for _, line := range lines {
		if isFatalLine(line) {
			return StatusError
		}
	}

	if waitingAnswerPattern.MatchString(tail) {
		return StatusWaitingUserAnswer
	}

	last := lastNonBlank(lines)
	if last < 0 {
		return StatusError
	}
	if !m.prompt.MatchString(lines[last]) {
		// No prompt at the end of output: the agent is still working.
		return StatusProcessing
	}

	// Prompt at the end. COMPLETED only when a reply followed the most
	// recent user message; otherwise the prompt is merely ready.
	userIdx := -1
	for i, line := range lines {
		if m.user.MatchString(line) {
			userIdx = i
		}
	}
	for i := userIdx + 1; i < len(lines); i++ {
		if m.assistant.MatchString(lines[i]) {
			return StatusCompleted
		}
	}
	return StatusIdle
}

func isFatalLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, prefix := range fatalLinePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func lastNonBlank(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}

// extractByMarkers pulls the reply that follows the last assistant label,
// ending at the next prompt line or end of text.
func extractByMarkers(clean string, m markers, name string) (string, error) {
	locs := m.assistant.FindAllStringIndex(clean, -1)
	if len(locs) == 0 {
		return "", fmt.Errorf("%s: %w: no assistant marker in output", name, ErrNoResponse)
	}
	start := locs[len(locs)-1][1]

	end := len(clean)
	if loc := m.prompt.FindStringIndex(clean[start:]); loc != nil {
		end = start + loc[0]
	}

	msg := strings.TrimSpace(clean[start:end])
	if msg == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyResponse)
	}
	return msg, nil
}

// shellQuote single-quotes s for the shell unless it is already safe,
// matching POSIX quoting rules.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafePattern.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

var shellSafePattern = regexp.MustCompile(`^[a-zA-Z0-9_@%+=:,./-]+$`)
