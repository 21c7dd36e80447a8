package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmux/agentmux/internal/common/config"
)

// fakeMux serves canned scrollback and records what was typed. Successive
// CapturePane calls consume outputs front to back; the last entry repeats.
type fakeMux struct {
	mu      sync.Mutex
	outputs []string
	err     error
	sent    []string
	tails   []int
}

func (f *fakeMux) CapturePane(_ context.Context, _, _ string, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tails = append(f.tails, tailLines)
	if f.err != nil {
		return "", f.err
	}
	if len(f.outputs) == 0 {
		return "", nil
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func (f *fakeMux) SendKeys(_ context.Context, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMux) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		ShellTimeout: 1,
		PollInterval: 1,
		AutoGLMPath:  "/opt/autoglm/main.py",
	}
}

const shellReadyOutput = "user@host:~/project$ "

// fakeLookup resolves terminal metadata from a fixed map.
type fakeLookup struct {
	infos map[string]TerminalInfo
}

func (f *fakeLookup) Lookup(_ context.Context, terminalID string) (TerminalInfo, error) {
	info, ok := f.infos[terminalID]
	if !ok {
		return TerminalInfo{}, fmt.Errorf("%w: %s", ErrUnknownTerminal, terminalID)
	}
	return info, nil
}
