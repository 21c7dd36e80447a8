package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/logreader"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/tmux"
)

const shellReadyOutput = "user@host:~/project$ "

// fakeMux scripts multiplexer behavior for service tests. CapturePane pops
// outputs front to back and repeats the last entry once drained.
type fakeMux struct {
	mu         sync.Mutex
	outputs    []string
	sessions   map[string][]string
	sent       []string
	piped      []string
	killed     []string
	tails      []int
	createErrs int
	pipeErr    error
	sendErr    error
	captureErr error
	killErr    error
}

func newFakeMux(outputs ...string) *fakeMux {
	return &fakeMux{
		outputs:  outputs,
		sessions: make(map[string][]string),
	}
}

func (f *fakeMux) HasSession(ctx context.Context, session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[session]
	return ok
}

func (f *fakeMux) CreateWindow(ctx context.Context, session, window string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrs > 0 {
		f.createErrs--
		return fmt.Errorf("%w: tmux new-window: scripted failure", tmux.ErrMultiplexerUnavailable)
	}
	f.sessions[session] = append(f.sessions[session], window)
	return nil
}

func (f *fakeMux) ListWindows(ctx context.Context, session string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions[session]...), nil
}

func (f *fakeMux) PipePane(ctx context.Context, session, window, file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pipeErr != nil {
		return f.pipeErr
	}
	f.piped = append(f.piped, file)
	return nil
}

func (f *fakeMux) SendKeys(ctx context.Context, session, window, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMux) CapturePane(ctx context.Context, session, window string, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return "", f.captureErr
	}
	f.tails = append(f.tails, tailLines)
	if len(f.outputs) == 0 {
		return "", nil
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func (f *fakeMux) KillWindow(ctx context.Context, session, window string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.killErr != nil {
		return f.killErr
	}
	f.killed = append(f.killed, session+":"+window)
	windows := f.sessions[session]
	for i, w := range windows {
		if w == window {
			f.sessions[session] = append(windows[:i], windows[i+1:]...)
			break
		}
	}
	if len(f.sessions[session]) == 0 {
		delete(f.sessions, session)
	}
	return nil
}

func (f *fakeMux) setOutputs(outputs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = outputs
}

func (f *fakeMux) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeMux) killedWindows() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killed...)
}

func (f *fakeMux) pipedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.piped...)
}

func (f *fakeMux) lastTail() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tails) == 0 {
		return -1
	}
	return f.tails[len(f.tails)-1]
}

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (r *recordingBus) Publish(ctx context.Context, subject string, event *bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingBus) Subscribe(subject string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (r *recordingBus) QueueSubscribe(subject, queue string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (r *recordingBus) Close() {}

func (r *recordingBus) IsConnected() bool { return true }

func (r *recordingBus) published() []*bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*bus.Event(nil), r.events...)
}

type testEnv struct {
	svc    *Service
	store  *Store
	mux    *fakeMux
	mgr    *provider.Manager
	bus    *recordingBus
	reader *logreader.Reader
}

func newTestEnv(t *testing.T, outputs ...string) *testEnv {
	t.Helper()
	store := newTestStore(t)
	mux := newFakeMux(outputs...)
	reader := logreader.NewReader(t.TempDir(), 0, nil)
	cfg := config.ProviderConfig{ShellTimeout: 1, PollInterval: 1}
	mgr := provider.NewManager(mux, NewLookup(store), cfg, nil)
	recorder := &recordingBus{}
	svc := NewService(store, mux, mgr, reader, recorder, nil, 0)
	return &testEnv{svc: svc, store: store, mux: mux, mgr: mgr, bus: recorder, reader: reader}
}

// codexReady scripts a shell prompt followed by codex's idle prompt, which is
// what Initialize polls for.
func codexReady() []string {
	return []string{shellReadyOutput, "❯ \n"}
}

func TestServiceCreateTerminal(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	assert.Len(t, term.ID, 8)
	assert.True(t, strings.HasPrefix(term.Session, "agentmux-"), "session %q", term.Session)
	assert.Len(t, term.Session, len("agentmux-")+8)
	assert.Equal(t, "window-0", term.Window)
	assert.Equal(t, provider.KindCodex, term.ProviderKind)

	stored, err := env.store.Get(ctx, term.ID)
	require.NoError(t, err)
	assert.Equal(t, term.Session, stored.Session)

	assert.Equal(t, []string{"codex"}, env.mux.sentCommands())
	assert.Equal(t, []string{env.reader.LogPath(term.ID)}, env.mux.pipedFiles())

	published := env.bus.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TerminalCreated, published[0].Type)
	assert.Equal(t, term.ID, published[0].Data["terminal_id"])

	providers := env.mgr.ListProviders()
	assert.Equal(t, map[string]string{term.ID: "codex"}, providers)
}

func TestServiceCreateTerminalNumbersWindows(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	first, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-alpha")
	require.NoError(t, err)
	assert.Equal(t, "team-alpha", first.Session)
	assert.Equal(t, "window-0", first.Window)

	env.mux.setOutputs(codexReady()...)
	second, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-alpha")
	require.NoError(t, err)
	assert.Equal(t, "team-alpha", second.Session)
	assert.Equal(t, "window-1", second.Window)

	terminals, err := env.svc.ListSessionTerminals(ctx, "team-alpha")
	require.NoError(t, err)
	assert.Len(t, terminals, 2)
}

func TestServiceCreateTerminalRetriesWindowOnce(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	env.mux.createErrs = 1

	term, err := env.svc.CreateTerminal(context.Background(), provider.KindCodex, "", "retry-session")
	require.NoError(t, err)
	assert.Equal(t, "window-0", term.Window)
}

func TestServiceCreateTerminalWindowFailureSurfaces(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	env.mux.createErrs = 2
	ctx := context.Background()

	_, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, tmux.ErrMultiplexerUnavailable)

	terminals, listErr := env.store.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, terminals)
	assert.Empty(t, env.mux.killedWindows())
	assert.Empty(t, env.bus.published())
}

func TestServiceCreateTerminalProfileRequiredRollsBack(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	_, err := env.svc.CreateTerminal(ctx, provider.KindQCLI, "", "team-q")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProfileRequired)

	terminals, listErr := env.store.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, terminals)
	assert.Equal(t, []string{"team-q:window-0"}, env.mux.killedWindows())
	assert.Empty(t, env.mgr.ListProviders())
	assert.Empty(t, env.bus.published())
}

func TestServiceCreateTerminalPipeFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	env.mux.pipeErr = errors.New("pipe-pane refused")
	ctx := context.Background()

	_, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-pipe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to attach log pipe")

	terminals, listErr := env.store.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, terminals)
	assert.Equal(t, []string{"team-pipe:window-0"}, env.mux.killedWindows())
}

func TestServiceCreateTerminalInitTimeoutRollsBack(t *testing.T) {
	// A scrollback that never shows a shell prompt forces the shell wait to
	// time out (ShellTimeout is 1s in the test config).
	env := newTestEnv(t, "still booting\n")
	ctx := context.Background()

	_, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTimeout)

	terminals, listErr := env.store.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, terminals)
	assert.Equal(t, []string{"team-slow:window-0"}, env.mux.killedWindows())
	assert.Empty(t, env.mgr.ListProviders())
	assert.Empty(t, env.bus.published())
}

func TestServiceDestroyTerminal(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-destroy")
	require.NoError(t, err)

	require.NoError(t, env.svc.DestroyTerminal(ctx, term.ID))

	_, err = env.store.Get(ctx, term.ID)
	assert.ErrorIs(t, err, provider.ErrUnknownTerminal)
	assert.Equal(t, []string{"codex", "/exit"}, env.mux.sentCommands())
	assert.Equal(t, []string{"team-destroy:window-0"}, env.mux.killedWindows())
	assert.Empty(t, env.mgr.ListProviders())

	published := env.bus.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.TerminalCreated, published[0].Type)
	assert.Equal(t, events.TerminalDestroyed, published[1].Type)
	assert.Equal(t, term.ID, published[1].Data["terminal_id"])
}

func TestServiceDestroyTerminalUnknown(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.DestroyTerminal(context.Background(), "no-such-terminal")
	assert.ErrorIs(t, err, provider.ErrUnknownTerminal)
}

func TestServiceDestroyTerminalSurvivesKillFailure(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "team-kill")
	require.NoError(t, err)

	env.mux.killErr = errors.New("window already gone")
	require.NoError(t, env.svc.DestroyTerminal(ctx, term.ID))

	_, err = env.store.Get(ctx, term.ID)
	assert.ErrorIs(t, err, provider.ErrUnknownTerminal)
}

func TestServiceSendInput(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	require.NoError(t, env.svc.SendInput(ctx, term.ID, "review the diff"))

	sent := env.mux.sentCommands()
	assert.Equal(t, "review the diff", sent[len(sent)-1])
}

func TestServiceSendInputUnknownTerminal(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.SendInput(context.Background(), "no-such-terminal", "hello")
	assert.ErrorIs(t, err, provider.ErrUnknownTerminal)
}

func TestServiceGetOutputFull(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	env.mux.setOutputs("line 1\nline 2\nline 3\n")
	out, err := env.svc.GetOutput(ctx, term.ID, OutputModeFull)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\nline 3\n", out)
	assert.Equal(t, 0, env.mux.lastTail())
}

func TestServiceGetOutputRecent(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	env.mux.setOutputs("tail content\n")
	out, err := env.svc.GetOutput(ctx, term.ID, OutputModeRecent)
	require.NoError(t, err)
	assert.Equal(t, "tail content\n", out)
	assert.Equal(t, 50, env.mux.lastTail())
}

func TestServiceGetOutputLast(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	env.mux.setOutputs("You> fix the tests\ncodex: All three tests pass now.\n\n❯ \n")
	out, err := env.svc.GetOutput(ctx, term.ID, OutputModeLast)
	require.NoError(t, err)
	assert.Equal(t, "All three tests pass now.", out)
}

func TestServiceGetOutputLastNoReply(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	env.mux.setOutputs("❯ \n")
	_, err = env.svc.GetOutput(ctx, term.ID, OutputModeLast)
	assert.ErrorIs(t, err, provider.ErrNoResponse)
}

func TestServiceGetOutputInvalidMode(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	_, err = env.svc.GetOutput(ctx, term.ID, "screenshot")
	assert.ErrorIs(t, err, ErrInvalidOutputMode)
}

func TestServiceGetStatus(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	term, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "")
	require.NoError(t, err)

	env.mux.setOutputs("❯ \n")
	status, err := env.svc.GetStatus(ctx, term.ID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusIdle, status)

	env.mux.setOutputs("Compiling module graph...\n")
	status, err = env.svc.GetStatus(ctx, term.ID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusProcessing, status)
}

func TestServiceListSessions(t *testing.T) {
	env := newTestEnv(t, codexReady()...)
	ctx := context.Background()

	_, err := env.svc.CreateTerminal(ctx, provider.KindCodex, "", "alpha")
	require.NoError(t, err)
	env.mux.setOutputs(codexReady()...)
	_, err = env.svc.CreateTerminal(ctx, provider.KindCodex, "", "alpha")
	require.NoError(t, err)
	env.mux.setOutputs(codexReady()...)
	_, err = env.svc.CreateTerminal(ctx, provider.KindCodex, "", "beta")
	require.NoError(t, err)

	sessions, err := env.svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alpha", sessions[0].Name)
	assert.Equal(t, 2, sessions[0].TerminalCount)
	assert.Equal(t, "beta", sessions[1].Name)
	assert.Equal(t, 1, sessions[1].TerminalCount)

	terminals, err := env.svc.ListTerminals(ctx)
	require.NoError(t, err)
	assert.Len(t, terminals, 3)
}
