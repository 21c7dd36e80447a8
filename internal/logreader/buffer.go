// Package logreader provides incremental reading of per-terminal log files.
//
// Each terminal's scrollback is piped to a log file by the multiplexer. The
// Reader tracks a byte offset per terminal so repeated polls cost O(new
// bytes) instead of re-reading whole files, and it retains a fixed window of
// recent non-empty lines per terminal for idle-pattern matching.
package logreader

import (
	"regexp"
	"strings"
)

// DefaultBufferLines is the per-terminal line window retained for pattern checks.
const DefaultBufferLines = 100

// LineBuffer keeps the last N non-empty lines of a terminal's log.
// It is not safe for concurrent use; the Reader serializes access.
type LineBuffer struct {
	capacity int
	lines    []string
}

// NewLineBuffer creates a buffer holding at most capacity lines.
// A non-positive capacity falls back to DefaultBufferLines.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferLines
	}
	return &LineBuffer{capacity: capacity}
}

// Add appends a single line, evicting the oldest when full.
// Blank lines are ignored so the window always holds meaningful output.
func (b *LineBuffer) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
}

// AddContent splits text into lines and appends each non-empty one.
func (b *LineBuffer) AddContent(text string) {
	for _, line := range strings.Split(text, "\n") {
		b.Add(strings.TrimRight(line, "\r"))
	}
}

// Content returns the buffered lines joined with newlines.
func (b *LineBuffer) Content() string {
	return strings.Join(b.lines, "\n")
}

// Len returns the number of buffered lines.
func (b *LineBuffer) Len() int {
	return len(b.lines)
}

// Matches reports whether the buffered content matches the regex pattern.
// An empty or invalid pattern never matches.
func (b *LineBuffer) Matches(pattern string) bool {
	if pattern == "" || len(b.lines) == 0 {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(b.Content())
}

// Clear drops all buffered lines.
func (b *LineBuffer) Clear() {
	b.lines = nil
}
