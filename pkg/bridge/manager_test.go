package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

type stubDirectory struct {
	agents map[string]*models.Agent
}

func (d *stubDirectory) GetByPlatform(_ context.Context, platform string) (*models.Agent, error) {
	a, ok := d.agents[platform]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func setupTestBridge(t *testing.T, storeOpts ...mailbox.Option) (*ConnectionManager, *mailbox.Store, *httptest.Server) {
	t.Helper()

	store, err := mailbox.NewStore(storeOpts...)
	require.NoError(t, err)
	dir := &stubDirectory{agents: map[string]*models.Agent{
		"claude": {ID: "claude/main", Category: models.CategoryConversational},
	}}
	manager := NewConnectionManager(store, dir, NewTokenValidator("bridge-secret", false))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(func() { server.Close() })
	return manager, store, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// authenticate runs the welcome/auth handshake for agentID.
func authenticate(t *testing.T, conn *websocket.Conn, agentID string) {
	t.Helper()
	welcome := readFrame(t, conn)
	require.Equal(t, "welcome", welcome["type"])
	require.Equal(t, ProtocolVersion, welcome["content"])

	writeFrame(t, conn, Frame{Type: "auth", AgentID: agentID,
		Token: Token("bridge-secret", agentID)})
	reply := readFrame(t, conn)
	require.Equal(t, "auth_success", reply["type"])
	require.Equal(t, agentID, reply["agent_id"])
}

func TestAuth_Success(t *testing.T) {
	manager, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	authenticate(t, conn, "cursor/dev")

	assert.True(t, manager.Online("cursor/dev"))
	assert.Equal(t, 1, manager.ActiveConnections())
}

func TestAuth_RejectsBadToken(t *testing.T) {
	_, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	readFrame(t, conn) // welcome

	writeFrame(t, conn, Frame{Type: "auth", AgentID: "cursor/dev", Token: "wrong"})
	reply := readFrame(t, conn)
	assert.Equal(t, "auth_error", reply["type"])
}

func TestAuth_RejectsBadAgentID(t *testing.T) {
	_, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	readFrame(t, conn)

	writeFrame(t, conn, Frame{Type: "auth", AgentID: "no-slash",
		Token: Token("bridge-secret", "no-slash")})
	reply := readFrame(t, conn)
	assert.Equal(t, "auth_error", reply["type"])
}

func TestUnauthenticatedFramesRejected(t *testing.T) {
	_, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	readFrame(t, conn)

	writeFrame(t, conn, Frame{Type: "ping"})
	reply := readFrame(t, conn)
	assert.Equal(t, "error", reply["type"])
}

func TestPingPong(t *testing.T) {
	_, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	authenticate(t, conn, "cursor/dev")

	writeFrame(t, conn, Frame{Type: "ping"})
	assert.Equal(t, "pong", readFrame(t, conn)["type"])
}

func TestMessage_DirectDelivery(t *testing.T) {
	_, _, server := setupTestBridge(t)

	sender := connectWS(t, server)
	authenticate(t, sender, "cursor/dev")

	receiver := connectWS(t, server)
	authenticate(t, receiver, "replit/main")
	readFrame(t, sender) // presence online for replit/main

	writeFrame(t, sender, Frame{Type: "message", To: "replit/main", Content: "hello"})

	delivered := readFrame(t, receiver)
	assert.Equal(t, "message", delivered["type"])
	assert.Equal(t, "cursor/dev", delivered["from"])
	assert.Equal(t, "hello", delivered["content"])

	receipt := readFrame(t, sender)
	assert.Equal(t, "message_sent", receipt["type"])
	meta := receipt["metadata"].(map[string]any)
	assert.Equal(t, true, meta["delivered"])
}

func TestMessage_MailboxFallback(t *testing.T) {
	_, store, server := setupTestBridge(t)
	conn := connectWS(t, server)
	authenticate(t, conn, "cursor/dev")

	// claude is offline and conversational: the sub-path coalesces to the
	// root inbox and the message lands approved.
	writeFrame(t, conn, Frame{Type: "message", To: "claude/web", Content: "wake up"})

	receipt := readFrame(t, conn)
	require.Equal(t, "message_sent", receipt["type"])
	meta := receipt["metadata"].(map[string]any)
	assert.Equal(t, false, meta["delivered"])
	msgID := meta["message_id"].(string)

	msg, err := store.Get(context.Background(), msgID)
	require.NoError(t, err)
	assert.Equal(t, "claude", msg.To)
	assert.Equal(t, models.StatusApproved, msg.Status)
	assert.Contains(t, msg.Tags, "bridge")
	assert.Contains(t, msg.Tags, "auto-approved")
}

func TestCommandAndResponse(t *testing.T) {
	_, _, server := setupTestBridge(t)

	caller := connectWS(t, server)
	authenticate(t, caller, "cursor/dev")
	worker := connectWS(t, server)
	authenticate(t, worker, "replit/main")
	readFrame(t, caller) // presence

	writeFrame(t, caller, Frame{Type: "command", To: "replit/main",
		Action: "run_tests", Payload: json.RawMessage(`{"suite":"unit"}`)})

	cmd := readFrame(t, worker)
	require.Equal(t, "command", cmd["type"])
	assert.Equal(t, "run_tests", cmd["action"])
	commandID := cmd["command_id"].(string)
	require.NotEmpty(t, commandID)

	sent := readFrame(t, caller)
	assert.Equal(t, "command_sent", sent["type"])
	assert.Equal(t, commandID, sent["command_id"])

	writeFrame(t, worker, Frame{Type: "response", To: "cursor/dev",
		CommandID: commandID, Result: json.RawMessage(`{"passed":true}`)})
	resp := readFrame(t, caller)
	assert.Equal(t, "response", resp["type"])
	assert.Equal(t, commandID, resp["command_id"])
}

func TestCommand_OfflineTarget(t *testing.T) {
	_, _, server := setupTestBridge(t)
	conn := connectWS(t, server)
	authenticate(t, conn, "cursor/dev")

	writeFrame(t, conn, Frame{Type: "command", To: "ghost/agent", Action: "noop"})
	reply := readFrame(t, conn)
	assert.Equal(t, "command_failed", reply["type"])
}

func TestBroadcastToSubscribers(t *testing.T) {
	_, _, server := setupTestBridge(t)

	sub := connectWS(t, server)
	authenticate(t, sub, "replit/main")
	writeFrame(t, sub, Frame{Type: "subscribe", Channels: []string{"deploys"}})
	assert.Equal(t, "subscribed", readFrame(t, sub)["type"])

	other := connectWS(t, server)
	authenticate(t, other, "gemini/main")
	readFrame(t, sub) // presence for gemini/main

	sender := connectWS(t, server)
	authenticate(t, sender, "cursor/dev")
	readFrame(t, sub) // presence for cursor/dev

	writeFrame(t, sender, Frame{Type: "broadcast", Channel: "deploys", Content: "v2 shipped"})

	got := readFrame(t, sub)
	assert.Equal(t, "broadcast", got["type"])
	assert.Equal(t, "deploys", got["channel"])
	assert.Equal(t, "v2 shipped", got["content"])
	assert.Equal(t, "cursor/dev", got["from"])
}

func TestListAgents(t *testing.T) {
	manager, _, server := setupTestBridge(t)

	a := connectWS(t, server)
	authenticate(t, a, "cursor/dev")
	b := connectWS(t, server)
	authenticate(t, b, "replit/main")

	entries := manager.AgentList(nil)
	assert.Len(t, entries, 2)

	entries = manager.AgentList(&AgentFilter{Platform: "replit"})
	require.Len(t, entries, 1)
	assert.Equal(t, "replit/main", entries[0].AgentID)
	assert.True(t, entries[0].Online)
}

func TestDuplicateConnectionReplaced(t *testing.T) {
	manager, _, server := setupTestBridge(t)

	first := connectWS(t, server)
	authenticate(t, first, "cursor/dev")

	second := connectWS(t, server)
	authenticate(t, second, "cursor/dev")

	replaced := readFrame(t, first)
	assert.Equal(t, "replaced", replaced["type"])

	require.Eventually(t, func() bool {
		return manager.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, manager.Online("cursor/dev"))
}

func TestRelay(t *testing.T) {
	manager, store, server := setupTestBridge(t)
	_ = server

	msg, err := manager.Relay(context.Background(), RelayInput{
		From: "gpt/main", To: "/Claude/Web", Task: "summarize the thread",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", msg.To, "conversational sub-path coalesces")
	assert.Equal(t, models.StatusApproved, msg.Status)

	stored, err := store.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Tags, "relay")

	_, err = manager.Relay(context.Background(), RelayInput{To: "a/b", Task: "x"})
	assert.True(t, models.IsValidationError(err))
	_, err = manager.Relay(context.Background(), RelayInput{From: "a/b", To: "c/d"})
	assert.True(t, models.IsValidationError(err))
}

type sinkNotifier struct{ events chan string }

func (n *sinkNotifier) Notify(_ context.Context, eventType, inbox string, _ *models.Message) {
	n.events <- eventType + " " + inbox
}

func collectEvents(t *testing.T, ch chan string, n int) map[string]bool {
	t.Helper()
	got := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			got[ev] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d fan-out event(s)", i)
		}
	}
	return got
}

func TestMessage_MailboxFallbackFansOut(t *testing.T) {
	sink := &sinkNotifier{events: make(chan string, 4)}
	_, _, server := setupTestBridge(t, mailbox.WithNotifier(sink))
	conn := connectWS(t, server)
	authenticate(t, conn, "cursor/dev")

	writeFrame(t, conn, Frame{Type: "message", To: "claude/web", Content: "wake up"})
	require.Equal(t, "message_sent", readFrame(t, conn)["type"])

	// The fallback both stores and approves, so subscribers of the
	// coalesced inbox see both events.
	got := collectEvents(t, sink.events, 2)
	assert.True(t, got["message.received claude"])
	assert.True(t, got["message.approved claude"])
}

func TestRelay_FansOut(t *testing.T) {
	sink := &sinkNotifier{events: make(chan string, 4)}
	manager, _, _ := setupTestBridge(t, mailbox.WithNotifier(sink))

	_, err := manager.Relay(context.Background(), RelayInput{
		From: "web/user", To: "replit/main", Task: "restart the worker",
	})
	require.NoError(t, err)

	got := collectEvents(t, sink.events, 2)
	assert.True(t, got["message.received replit/main"])
	assert.True(t, got["message.approved replit/main"])
}
