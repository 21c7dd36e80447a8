package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
)

func dialStream(t *testing.T, env *serverEnv, terminalID string) *websocket.Conn {
	t.Helper()

	httpSrv := httptest.NewServer(env.router)
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") +
		"/api/v1/terminals/" + terminalID + "/stream"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if res != nil && res.Body != nil {
		require.NoError(t, res.Body.Close())
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerTerminalStream(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	conn := dialStream(t, env, res.ID)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// The initial snapshot arrives without any event.
	var first StreamSnapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, res.ID, first.TerminalID)
	assert.Contains(t, first.Output, "Welcome to Codex CLI")

	// A log-change event for this terminal pushes a fresh snapshot.
	env.mux.setOutputs(codexCompletedOutput)
	event := bus.NewEvent(events.TerminalLogUpdated, "stream-test",
		map[string]interface{}{"terminal_id": res.ID})
	require.NoError(t, env.bus.Publish(context.Background(),
		events.BuildLogUpdatedSubject(res.ID), event))

	var second StreamSnapshot
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, res.ID, second.TerminalID)
	assert.Contains(t, second.Output, "All tests now pass.")
}

func TestServerTerminalStreamIgnoresOtherTerminals(t *testing.T) {
	env := newServerEnv(t, shellReadyOutput, codexIdleOutput)
	res := env.createTerminal(t, "")

	conn := dialStream(t, env, res.ID)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first StreamSnapshot
	require.NoError(t, conn.ReadJSON(&first))

	// Events for other terminals never reach this stream.
	event := bus.NewEvent(events.TerminalLogUpdated, "stream-test",
		map[string]interface{}{"terminal_id": "someone-else"})
	require.NoError(t, env.bus.Publish(context.Background(),
		events.BuildLogUpdatedSubject("someone-else"), event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var frame StreamSnapshot
	require.Error(t, conn.ReadJSON(&frame))
}

func TestServerTerminalStreamUnknownTerminal(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/terminals/no-such-id/stream", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
