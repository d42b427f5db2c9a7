package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claude-relay/relay"
	"github.com/randalmurphal/claude-relay/session"
)

const quickScript = `
echo '{"type":"system","subtype":"init","session_id":"sess-1"}'
echo '{"type":"assistant","session_id":"sess-1"}'
echo '{"type":"result","subtype":"success","session_id":"sess-1","total_cost_usd":0.01}'
`

const slowScript = `
echo '{"type":"system","subtype":"init","session_id":"sess-slow"}'
sleep 30
`

type testEnv struct {
	srv     *Server
	runner  *relay.Runner
	metrics *Metrics
	promReg *prometheus.Registry
	http    *httptest.Server
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock_claude.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func newTestEnv(t *testing.T, script string, opts ...Option) *testEnv {
	t.Helper()

	reg := session.NewRegistry()
	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg, reg)
	runner := relay.NewRunner(reg,
		relay.WithClaudePath(writeScript(t, script)),
		relay.WithWorkdir(t.TempDir()),
		relay.WithGracePeriod(200*time.Millisecond),
		relay.WithObserver(metrics),
	)

	srv := New(runner, append([]Option{WithGatherer(promReg)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testEnv{srv: srv, runner: runner, metrics: metrics, promReg: promReg, http: ts}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(e.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *testEnv) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// message is a decoded server frame.
type message map[string]any

func (m message) Type() string {
	s, _ := m["type"].(string)
	return s
}

func readMessage(t *testing.T, ws *websocket.Conn) message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(10*time.Second)))
	var m message
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

// readUntil reads frames until one of type typ arrives and returns all of
// them, including the match.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) []message {
	t.Helper()
	var got []message
	for {
		m := readMessage(t, ws)
		got = append(got, m)
		if m.Type() == typ {
			return got
		}
	}
}

func types(msgs []message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type()
	}
	return out
}

func sendCommand(t *testing.T, ws *websocket.Conn, prompt string, opts map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type":    MessageClaudeCommand,
		"command": prompt,
		"options": opts,
	}))
}

func TestWebSocket_ClaudeCommand(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	sendCommand(t, ws, "hello", nil)
	msgs := readUntil(t, ws, "claude-complete")

	assert.Equal(t, []string{
		"session-created",
		"claude-response",
		"claude-response",
		"claude-response",
		"claude-complete",
	}, types(msgs))
	assert.Equal(t, "sess-1", msgs[0]["sessionId"])

	data, ok := msgs[2]["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "assistant", data["type"])

	complete := msgs[4]
	assert.Equal(t, "sess-1", complete["sessionId"])
	assert.Equal(t, float64(0), complete["exitCode"])
	assert.Equal(t, true, complete["isNewSession"])
}

func TestWebSocket_ResumeSkipsSessionCreated(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	sendCommand(t, ws, "again", map[string]any{"sessionId": "sess-1"})
	msgs := readUntil(t, ws, "claude-complete")

	assert.NotContains(t, types(msgs), "session-created")
	assert.Equal(t, false, msgs[len(msgs)-1]["isNewSession"])
}

func TestWebSocket_InvalidMessagesIgnored(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "bogus"}))
	sendCommand(t, ws, "hello", nil)

	msgs := readUntil(t, ws, "claude-complete")
	assert.Equal(t, "session-created", msgs[0].Type())
}

func TestWebSocket_AbortSession(t *testing.T) {
	env := newTestEnv(t, slowScript)
	ws := env.dial(t)

	sendCommand(t, ws, "long task", nil)
	created := readMessage(t, ws)
	require.Equal(t, "session-created", created.Type())
	require.Equal(t, "sess-slow", created["sessionId"])

	var info sessionResponse
	env.getJSON(t, "/api/sessions/sess-slow", &info)
	assert.True(t, info.Active)
	assert.Equal(t, "active", info.Status)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type":      MessageAbortSession,
		"sessionId": "sess-slow",
	}))
	msgs := readUntil(t, ws, MessageSessionAborted)
	reply := msgs[len(msgs)-1]
	assert.Equal(t, "sess-slow", reply["sessionId"])
	assert.Equal(t, true, reply["success"])
	assert.NotContains(t, types(msgs), "claude-complete")
	assert.NotContains(t, types(msgs), "claude-error")

	assert.False(t, env.runner.IsActive("sess-slow"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.aborts.WithLabelValues("found")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.runs.WithLabelValues("aborted")) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWebSocket_AbortUnknownSession(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type":      MessageAbortSession,
		"sessionId": "nope",
	}))
	reply := readMessage(t, ws)

	assert.Equal(t, MessageSessionAborted, reply.Type())
	assert.Equal(t, "nope", reply["sessionId"])
	assert.Equal(t, false, reply["success"])
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.aborts.WithLabelValues("not_found")))
}

func TestWebSocket_StartFailureReportsError(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	sendCommand(t, ws, "hello", map[string]any{"cwd": filepath.Join(t.TempDir(), "missing")})
	msg := readMessage(t, ws)

	assert.Equal(t, "claude-error", msg.Type())
	assert.NotEmpty(t, msg["error"])
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t, quickScript, WithAllowedOrigins("http://app.example"))

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"http://app.example"}}
	ws, _, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.NoError(t, err)
	ws.Close()

	header = http.Header{"Origin": {env.http.URL}}
	ws, _, err = websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.NoError(t, err, "same-host origin is accepted")
	ws.Close()
}

func TestCheckOrigin_Wildcard(t *testing.T) {
	env := newTestEnv(t, quickScript, WithAllowedOrigins("*"))

	header := http.Header{"Origin": {"http://anything.example"}}
	ws, _, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.NoError(t, err)
	ws.Close()
}

func TestAdmin_Sessions(t *testing.T) {
	env := newTestEnv(t, quickScript)

	var health map[string]string
	env.getJSON(t, "/health", &health)
	assert.Equal(t, "healthy", health["status"])

	var list sessionsResponse
	env.getJSON(t, "/api/sessions", &list)
	assert.NotNil(t, list.Sessions)
	assert.Empty(t, list.Sessions)

	var info sessionResponse
	env.getJSON(t, "/api/sessions/unknown", &info)
	assert.Equal(t, "unknown", info.SessionID)
	assert.False(t, info.Active)
	assert.Nil(t, info.StartedAt)
}

func TestAdmin_ListsRunningSession(t *testing.T) {
	env := newTestEnv(t, slowScript)
	ws := env.dial(t)

	sendCommand(t, ws, "long task", nil)
	require.Equal(t, "session-created", readMessage(t, ws).Type())

	var list sessionsResponse
	env.getJSON(t, "/api/sessions", &list)
	assert.Equal(t, []string{"sess-slow"}, list.Sessions)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, quickScript)
	ws := env.dial(t)

	sendCommand(t, ws, "hello", nil)
	readUntil(t, ws, "claude-complete")

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.runs.WithLabelValues("completed")) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.runsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.events.WithLabelValues("session-created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.events.WithLabelValues("claude-response")))

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "claude_relay_sessions_active 0")
	assert.Contains(t, string(body), `claude_relay_runs_total{outcome="completed"} 1`)
}

func TestMetrics_NoGatherer(t *testing.T) {
	runner := relay.NewRunner(session.NewRegistry())
	ts := httptest.NewServer(New(runner).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShutdown(t *testing.T) {
	env := newTestEnv(t, slowScript)
	ws := env.dial(t)

	sendCommand(t, ws, "long task", nil)
	require.Equal(t, "session-created", readMessage(t, ws).Type())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	assert.Empty(t, env.runner.ActiveSessions())

	// The connection is closed by the server.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	// New connections are refused.
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
