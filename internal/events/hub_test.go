package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sleuth/internal/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func TestHubStreamsRunLifecycle(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, TypeWelcome, welcome.Type)
	assert.Equal(t, 1, hub.ClientCount())

	run := agent.Run{ID: "run-1", Instruction: "check disk", StartedAt: time.Now()}
	hub.RunStarted(run)

	var started Message
	require.NoError(t, conn.ReadJSON(&started))
	assert.Equal(t, TypeRunStarted, started.Type)
	data, ok := started.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "run-1", data["id"])
	assert.Equal(t, "check disk", data["instruction"])

	hub.StepCompleted(run, agent.Step{ID: "step-1", Command: "df -h", Stdout: "ok"})

	var stepMsg Message
	require.NoError(t, conn.ReadJSON(&stepMsg))
	assert.Equal(t, TypeStepCompleted, stepMsg.Type)
	stepData, ok := stepMsg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "run-1", stepData["runId"])

	run.Outcome = "final"
	hub.RunCompleted(run)

	var completed Message
	require.NoError(t, conn.ReadJSON(&completed))
	assert.Equal(t, TypeRunCompleted, completed.Type)
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))

	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, TypePong, pong.Type)
}

func TestHubRepliesWithRecentRuns(t *testing.T) {
	hub := NewHub(func() []agent.Run {
		return []agent.Run{{ID: "newer"}, {ID: "older"}}
	})
	go hub.Run()
	defer hub.Stop()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(Message{Type: "requestRecent"}))

	var recent Message
	require.NoError(t, conn.ReadJSON(&recent))
	assert.Equal(t, TypeRecentRuns, recent.Type)
	runs, ok := recent.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, runs, 2)
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, 1, hub.ClientCount())

	hub.Stop()

	// The server sends a close frame; the next read reports it.
	require.Eventually(t, func() bool {
		_, _, err := conn.ReadMessage()
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}
