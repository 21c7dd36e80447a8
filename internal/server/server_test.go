package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/common/config"
	apperrors "github.com/agentmux/agentmux/internal/common/errors"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/db"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/inbox"
	"github.com/agentmux/agentmux/internal/logreader"
	"github.com/agentmux/agentmux/internal/profile"
	"github.com/agentmux/agentmux/internal/provider"
	"github.com/agentmux/agentmux/internal/terminal"
	"github.com/agentmux/agentmux/internal/tmux"
)

const (
	shellReadyOutput = "user@host:~/project$ "

	codexIdleOutput = `Welcome to Codex CLI

Type /help for commands.

❯
`

	codexCompletedOutput = `You Fix the failing test in utils_test.go

assistant: Here's the fix - the assertion compared the operands in the wrong order.

All tests now pass.

❯
`
)

// fakeMux scripts multiplexer behavior. CapturePane pops outputs until one
// remains, which then repeats.
type fakeMux struct {
	mu       sync.Mutex
	outputs  []string
	sessions map[string][]string
	sent     []string
	killed   []string
}

func newFakeMux(outputs ...string) *fakeMux {
	return &fakeMux{outputs: outputs, sessions: make(map[string][]string)}
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
	f.sessions[session] = append(f.sessions[session], window)
	return nil
}

func (f *fakeMux) ListWindows(ctx context.Context, session string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions[session]...), nil
}

func (f *fakeMux) PipePane(ctx context.Context, session, window, file string) error {
	return nil
}

func (f *fakeMux) SendKeys(ctx context.Context, session, window, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMux) CapturePane(ctx context.Context, session, window string, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.killed = append(f.killed, session+":"+window)
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

type serverEnv struct {
	srv      *Server
	router   http.Handler
	mux      *fakeMux
	bus      bus.EventBus
	profiles *profile.Manager
	reader   *logreader.Reader
}

func newServerEnv(t *testing.T, outputs ...string) *serverEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "agentmux.db")
	writer, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	roDB, err := db.OpenSQLiteReader(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = roDB.Close() })

	termStore, err := terminal.NewStore(writer, roDB)
	require.NoError(t, err)
	inboxStore, err := inbox.NewStore(writer, roDB)
	require.NoError(t, err)

	mux := newFakeMux(outputs...)
	reader := logreader.NewReader(t.TempDir(), 0, nil)
	mgr := provider.NewManager(mux, terminal.NewLookup(termStore),
		config.ProviderConfig{ShellTimeout: 1, PollInterval: 1}, nil)
	memBus := bus.NewMemoryEventBus(logger.Default())

	termSvc := terminal.NewService(termStore, mux, mgr, reader, memBus, nil, 0)
	inboxSvc := inbox.NewService(inboxStore, terminal.NewLookup(termStore), memBus, nil)

	profRoot := t.TempDir()
	profiles := profile.NewManager(profile.Paths{
		StoreDir:   filepath.Join(profRoot, "agents"),
		ContextDir: filepath.Join(profRoot, "agent-context"),
		PrefsFile:  filepath.Join(profRoot, "agent-context", "provider-preferences.json"),
	}, nil)

	srv := NewServer(termSvc, inboxSvc, profiles, memBus, nil)
	return &serverEnv{
		srv:      srv,
		router:   srv.Router(),
		mux:      mux,
		bus:      memBus,
		profiles: profiles,
		reader:   reader,
	}
}

func (e *serverEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *serverEnv) createTerminal(t *testing.T, session string) CreateSessionResponse {
	t.Helper()
	path := "/api/v1/sessions?agent_profile=developer&provider=codex"
	if session != "" {
		path += "&session_name=" + session
	}
	rec := e.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func decodeAppError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.AppError {
	t.Helper()
	var appErr apperrors.AppError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
	return appErr
}

func TestServerHealth(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	_, err := time.Parse(time.RFC3339, res.Timestamp)
	assert.NoError(t, err)
}

func TestServerCreateSession(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)

	res := env.createTerminal(t, "team-alpha")
	assert.Len(t, res.ID, 36)
	assert.Equal(t, "window-0", res.Name)
	assert.Equal(t, "team-alpha", res.SessionName)
	assert.Equal(t, "codex", res.Provider)
	assert.Equal(t, "developer", res.AgentProfile)
	assert.False(t, res.CreatedAt.IsZero())

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var term terminal.Terminal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &term))
	assert.Equal(t, res.ID, term.ID)
	assert.Equal(t, provider.KindCodex, term.ProviderKind)
}

func TestServerCreateSessionRequiresProfile(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions?provider=codex", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeValidationError, decodeAppError(t, rec).Code)
}

func TestServerCreateSessionUnknownProvider(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions?agent_profile=developer&provider=warp", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	appErr := decodeAppError(t, rec)
	assert.Equal(t, apperrors.ErrCodeBadRequest, appErr.Code)
	assert.Contains(t, appErr.Message, "warp")
}

func TestServerCreateSessionResolvesProviderFromContext(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)

	ctxPath := env.profiles.Paths().ContextPath("developer")
	require.NoError(t, os.MkdirAll(filepath.Dir(ctxPath), 0o755))
	require.NoError(t, os.WriteFile(ctxPath, []byte("---\nprovider: codex\n---\n\nDeveloper agent.\n"), 0o644))

	rec := env.do(t, http.MethodPost, "/api/v1/sessions?agent_profile=developer", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "codex", res.Provider)
}

func TestServerListSessionsAndTerminals(t *testing.T) {
	env := newServerEnv(t)

	env.mux.setOutputs(shellReadyOutput, codexIdleOutput)
	first := env.createTerminal(t, "team-alpha")
	env.mux.setOutputs(shellReadyOutput, codexIdleOutput)
	env.createTerminal(t, "team-alpha")
	env.mux.setOutputs(shellReadyOutput, codexIdleOutput)
	env.createTerminal(t, "team-beta")

	rec := env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Equal(t, 2, sessions.Total)

	counts := map[string]int{}
	for _, s := range sessions.Sessions {
		counts[s.Name] = s.TerminalCount
	}
	assert.Equal(t, map[string]int{"team-alpha": 2, "team-beta": 1}, counts)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/team-alpha/terminals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inSession TerminalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inSession))
	assert.Equal(t, 2, inSession.Total)

	rec = env.do(t, http.MethodGet, "/api/v1/terminals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all TerminalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 3, all.Total)

	ids := make([]string, 0, len(all.Terminals))
	for _, term := range all.Terminals {
		ids = append(ids, term.ID)
	}
	assert.Contains(t, ids, first.ID)
}

func TestServerGetTerminalNotFound(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.ErrCodeNotFound, decodeAppError(t, rec).Code)
}

func TestServerTerminalOutput(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	env.mux.setOutputs(codexCompletedOutput)

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID+"/output", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out OutputResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, terminal.OutputModeFull, out.Mode)
	assert.Contains(t, out.Output, "All tests now pass.")

	rec = env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID+"/output?mode=last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, terminal.OutputModeLast, out.Mode)
	assert.Contains(t, out.Output, "All tests now pass.")
	assert.NotContains(t, out.Output, "You Fix")

	rec = env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID+"/output?mode=tail", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeBadRequest, decodeAppError(t, rec).Code)
}

func TestServerTerminalStatus(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	env.mux.setOutputs(codexCompletedOutput)

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, res.ID, status.TerminalID)
	assert.Equal(t, string(provider.StatusCompleted), status.Status)
}

func TestServerSendInput(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	rec := env.do(t, http.MethodPost, "/api/v1/terminals/"+res.ID+"/input",
		InputRequest{Message: "run the tests"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.mux.sentCommands(), "run the tests")

	rec = env.do(t, http.MethodPost, "/api/v1/terminals/"+res.ID+"/input", InputRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/terminals/no-such-id/input",
		InputRequest{Message: "hello"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerDeleteTerminal(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "team-alpha")

	rec := env.do(t, http.MethodDelete, "/api/v1/terminals/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.mux.killed, "team-alpha:window-0")

	rec = env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/terminals/"+res.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerInboxMessages(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	rec := env.do(t, http.MethodPost, "/api/v1/terminals/"+res.ID+"/inbox/messages",
		SendMessageRequest{SenderID: "operator", Message: "status report please"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg inbox.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Len(t, msg.ID, 36)
	assert.Equal(t, inbox.StatusPending, msg.Status)
	assert.Equal(t, "operator", msg.SenderID)

	rec = env.do(t, http.MethodGet, "/api/v1/terminals/"+res.ID+"/inbox/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "status report please", list.Messages[0].Body)

	rec = env.do(t, http.MethodGet,
		"/api/v1/terminals/"+res.ID+"/inbox/messages?status=DELIVERED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Total)

	rec = env.do(t, http.MethodGet,
		"/api/v1/terminals/"+res.ID+"/inbox/messages?status=SHIPPED", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet,
		"/api/v1/terminals/"+res.ID+"/inbox/messages?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/terminals/"+res.ID+"/inbox/messages",
		SendMessageRequest{SenderID: "operator", Message: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/terminals/no-such-id/inbox/messages",
		SendMessageRequest{SenderID: "operator", Message: "hello"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown terminal", fmt.Errorf("%w: abc", provider.ErrUnknownTerminal), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"window not found", fmt.Errorf("%w: window-3", tmux.ErrWindowNotFound), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"timeout", fmt.Errorf("%w: shell not ready after 1s", provider.ErrTimeout), http.StatusGatewayTimeout, apperrors.ErrCodeTimeout},
		{"multiplexer down", fmt.Errorf("%w: tmux: no server running", tmux.ErrMultiplexerUnavailable), http.StatusBadGateway, apperrors.ErrCodeBadGateway},
		{"no response", provider.ErrNoResponse, http.StatusUnprocessableEntity, apperrors.ErrCodeUnprocessable},
		{"empty response", provider.ErrEmptyResponse, http.StatusUnprocessableEntity, apperrors.ErrCodeUnprocessable},
		{"unknown kind", fmt.Errorf("%w: %q", provider.ErrUnknownKind, "warp"), http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"profile required", provider.ErrProfileRequired, http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"invalid output mode", fmt.Errorf("%w: %q", terminal.ErrInvalidOutputMode, "tail"), http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"empty message body", inbox.ErrEmptyBody, http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"invalid message status", fmt.Errorf("%w: %q", inbox.ErrInvalidStatus, "SHIPPED"), http.StatusBadRequest, apperrors.ErrCodeBadRequest},
		{"anything else", fmt.Errorf("disk full"), http.StatusInternalServerError, apperrors.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := mapError(tt.err, "operation failed")
			assert.Equal(t, tt.status, appErr.HTTPStatus)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}
