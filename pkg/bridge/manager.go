// Package bridge is the real-time layer: long-lived WebSocket sessions over
// which authenticated agents exchange direct messages, commands, and channel
// broadcasts. Offline recipients fall back to the durable mailbox.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
	"github.com/quackhq/quack/pkg/registry"
)

// HeartbeatInterval is how often dead sockets are reaped.
const HeartbeatInterval = 30 * time.Second

// defaultWriteTimeout bounds each outbound frame.
const defaultWriteTimeout = 5 * time.Second

// Mailbox is the durable fallback for offline recipients.
type Mailbox interface {
	Send(ctx context.Context, in mailbox.SendInput) (*models.Message, error)
	ApproveFrom(ctx context.Context, id, actor, source string) (*models.Message, error)
}

// AgentDirectory resolves destination roots for conversational coalescing.
// May be nil; coalescing is then skipped.
type AgentDirectory interface {
	GetByPlatform(ctx context.Context, platform string) (*models.Agent, error)
}

// Connection is one authenticated (or authenticating) WebSocket client.
// Mutable fields are guarded by the manager's mutex: frames arrive on the
// owning read loop, but broadcasts and the heartbeat touch every connection.
type Connection struct {
	ID           string
	AgentID      string
	Conn         *websocket.Conn
	Capabilities []string

	authenticated bool
	subscribedTo  map[string]bool
	lastSeen      time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// ConnectionManager owns the connection table and the per-frame dispatch.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	byAgent     map[string]string

	mailbox      Mailbox
	agents       AgentDirectory
	validator    *TokenValidator
	writeTimeout time.Duration
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a ConnectionManager.
type Option func(*ConnectionManager)

// WithWriteTimeout overrides the per-frame write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *ConnectionManager) { m.writeTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *ConnectionManager) { m.now = now }
}

// NewConnectionManager creates the bridge over a mailbox fallback and an
// agent directory.
func NewConnectionManager(mb Mailbox, agents AgentDirectory, validator *TokenValidator, opts ...Option) *ConnectionManager {
	m := &ConnectionManager{
		connections:  make(map[string]*Connection),
		byAgent:      make(map[string]string),
		mailbox:      mb,
		agents:       agents,
		validator:    validator,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleConnection runs one socket's lifecycle: welcome, auth, dispatch
// loop. Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:           uuid.NewString(),
		Conn:         conn,
		subscribedTo: make(map[string]bool),
		lastSeen:     m.now(),
		ctx:          ctx,
		cancel:       cancel,
	}

	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	defer m.unregister(c)

	m.sendJSON(c, Frame{Type: "welcome", Content: ProtocolVersion})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("Invalid bridge frame", "connection_id", c.ID, "error", err)
			m.sendJSON(c, Frame{Type: "error", Error: "invalid frame"})
			continue
		}

		m.mu.RLock()
		authed := c.authenticated
		m.mu.RUnlock()
		if !authed && f.Type != "auth" {
			m.sendJSON(c, Frame{Type: "error", Error: "authentication required"})
			continue
		}

		switch f.Type {
		case "auth":
			if !m.handleAuth(ctx, c, &f) {
				return
			}
		case "ping":
			m.touch(c)
			m.sendJSON(c, Frame{Type: "pong"})
		case "message":
			m.handleMessage(ctx, c, &f)
		case "command":
			m.handleCommand(c, &f)
		case "response":
			m.handleResponse(c, &f)
		case "broadcast":
			m.handleBroadcast(c, &f)
		case "subscribe":
			m.handleSubscribe(c, &f)
		case "list_agents":
			m.handleListAgents(c, &f)
		default:
			m.sendJSON(c, Frame{Type: "error", Error: "unknown frame type: " + f.Type})
		}
	}
}

func (m *ConnectionManager) handleAuth(ctx context.Context, c *Connection, f *Frame) bool {
	agentID := strings.ToLower(strings.TrimSpace(f.AgentID))
	if !registry.ValidAgentID(agentID) {
		m.sendJSON(c, Frame{Type: "auth_error", Error: "agent_id must be platform/name"})
		return false
	}
	if !m.validator.Validate(agentID, f.Token) {
		slog.Warn("Bridge auth rejected", "agent_id", agentID)
		m.sendJSON(c, Frame{Type: "auth_error", Error: "invalid token"})
		return false
	}

	m.mu.Lock()
	if prevID, ok := m.byAgent[agentID]; ok && prevID != c.ID {
		if prev, ok := m.connections[prevID]; ok {
			m.mu.Unlock()
			m.sendJSON(prev, Frame{Type: "replaced", AgentID: agentID})
			m.unregister(prev)
			m.mu.Lock()
		}
	}
	c.authenticated = true
	c.AgentID = agentID
	c.Capabilities = f.Capabilities
	c.lastSeen = m.now()
	m.byAgent[agentID] = c.ID

	online := make([]string, 0, len(m.byAgent))
	for id := range m.byAgent {
		online = append(online, id)
	}
	m.mu.Unlock()

	m.broadcastPresence(agentID, "online", c.ID)
	m.sendJSON(c, Frame{Type: "auth_success", AgentID: agentID,
		Metadata: map[string]any{"online_agents": online}})
	slog.Info("Bridge agent connected", "agent_id", agentID, "connection_id", c.ID)
	return true
}

func (m *ConnectionManager) handleMessage(ctx context.Context, c *Connection, f *Frame) {
	to := strings.ToLower(strings.TrimLeft(strings.TrimSpace(f.To), "/"))
	if to == "" || f.Content == "" {
		m.sendJSON(c, Frame{Type: "error", Error: "message requires to and content"})
		return
	}

	if target := m.lookup(to); target != nil {
		m.sendJSON(target, Frame{
			Type: "message", From: c.AgentID, To: to,
			Content: f.Content, Metadata: f.Metadata,
		})
		m.sendJSON(c, Frame{Type: "message_sent", To: to,
			Metadata: map[string]any{"delivered": true}})
		return
	}

	msg, err := m.submitToMailbox(ctx, c.AgentID, to, f.Content, "quack-bridge")
	if err != nil {
		m.sendJSON(c, Frame{Type: "error", Error: err.Error()})
		return
	}
	m.sendJSON(c, Frame{Type: "message_sent", To: to,
		Metadata: map[string]any{"delivered": false, "message_id": msg.ID}})
}

// submitToMailbox is the shared offline-delivery path: coalesce
// conversational roots, send, then immediately approve with the given
// audit source.
func (m *ConnectionManager) submitToMailbox(ctx context.Context, from, to, content, source string) (*models.Message, error) {
	to = m.coalesce(ctx, to)
	hold := true
	msg, err := m.mailbox.Send(ctx, mailbox.SendInput{
		To: to, From: from, Task: content,
		Tags:            []string{"bridge", "websocket", "auto-approved"},
		ImpliedProject:  true,
		RequireApproval: &hold,
		Actor:           from,
		SourceAddr:      source,
	})
	if err != nil {
		return nil, err
	}
	return m.mailbox.ApproveFrom(ctx, msg.ID, from, source)
}

// coalesce folds a sub-path under a conversational root down to the root
// inbox: a chat platform has one mailbox, not one per tab.
func (m *ConnectionManager) coalesce(ctx context.Context, to string) string {
	if m.agents == nil || !strings.Contains(to, "/") {
		return to
	}
	root := mailbox.RootPlatform(to)
	agent, err := m.agents.GetByPlatform(ctx, root)
	if err != nil {
		return to
	}
	if agent.Category == models.CategoryConversational {
		return root
	}
	return to
}

func (m *ConnectionManager) handleCommand(c *Connection, f *Frame) {
	target := m.lookup(strings.ToLower(f.To))
	if target == nil {
		m.sendJSON(c, Frame{Type: "command_failed", To: f.To, Error: "agent offline"})
		return
	}
	commandID := f.CommandID
	if commandID == "" {
		commandID = uuid.NewString()
	}
	m.sendJSON(target, Frame{
		Type: "command", From: c.AgentID, Action: f.Action,
		Payload: f.Payload, CommandID: commandID, AwaitResponse: f.AwaitResponse,
	})
	m.sendJSON(c, Frame{Type: "command_sent", To: f.To, CommandID: commandID})
}

func (m *ConnectionManager) handleResponse(c *Connection, f *Frame) {
	target := m.lookup(strings.ToLower(f.To))
	if target == nil {
		m.sendJSON(c, Frame{Type: "response_failed", To: f.To,
			CommandID: f.CommandID, Error: "agent offline"})
		return
	}
	m.sendJSON(target, Frame{
		Type: "response", From: c.AgentID, CommandID: f.CommandID,
		Result: f.Result, Error: f.Error,
	})
}

func (m *ConnectionManager) handleBroadcast(c *Connection, f *Frame) {
	if f.Channel == "" {
		m.sendJSON(c, Frame{Type: "error", Error: "broadcast requires a channel"})
		return
	}
	m.mu.RLock()
	var targets []*Connection
	for _, conn := range m.connections {
		if conn.authenticated && conn.subscribedTo[f.Channel] {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	for _, target := range targets {
		m.sendJSON(target, Frame{
			Type: "broadcast", Channel: f.Channel,
			From: c.AgentID, Content: f.Content,
		})
	}
}

func (m *ConnectionManager) handleSubscribe(c *Connection, f *Frame) {
	m.mu.Lock()
	for _, ch := range f.Channels {
		if ch != "" {
			c.subscribedTo[ch] = true
		}
	}
	m.mu.Unlock()
	m.sendJSON(c, Frame{Type: "subscribed", Channels: f.Channels})
}

func (m *ConnectionManager) handleListAgents(c *Connection, f *Frame) {
	entries := m.AgentList(f.Filter)
	data, _ := json.Marshal(entries)
	m.sendJSON(c, Frame{Type: "agents", Payload: data})
}

// AgentList returns the connected agents matching filter. Shared with the
// HTTP bridge surface.
func (m *ConnectionManager) AgentList(filter *AgentFilter) []AgentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AgentStatus, 0, len(m.byAgent))
	for agentID, connID := range m.byAgent {
		conn, ok := m.connections[connID]
		if !ok {
			continue
		}
		entry := AgentStatus{AgentID: agentID, Online: true, Capabilities: conn.Capabilities}
		if entry.Capabilities == nil {
			entry.Capabilities = []string{}
		}
		if filter != nil {
			if filter.Online != nil && *filter.Online != entry.Online {
				continue
			}
			if filter.Platform != "" && mailbox.RootPlatform(agentID) != filter.Platform {
				continue
			}
			if filter.Capability != "" && !hasCapability(entry.Capabilities, filter.Capability) {
				continue
			}
		}
		out = append(out, entry)
	}
	return out
}

func hasCapability(caps []string, want string) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// Online reports whether an agent currently holds a bridge connection.
func (m *ConnectionManager) Online(agentID string) bool {
	return m.lookup(strings.ToLower(agentID)) != nil
}

// ActiveConnections returns the number of open sockets.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) lookup(agentID string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	connID, ok := m.byAgent[agentID]
	if !ok {
		return nil
	}
	return m.connections[connID]
}

func (m *ConnectionManager) touch(c *Connection) {
	m.mu.Lock()
	c.lastSeen = m.now()
	m.mu.Unlock()
}

// unregister drops a connection and, if it was authenticated, announces the
// agent offline.
func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	agentID := c.AgentID
	if agentID != "" && m.byAgent[agentID] == c.ID {
		delete(m.byAgent, agentID)
	} else {
		agentID = ""
	}
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")

	if agentID != "" {
		m.broadcastPresence(agentID, "offline", c.ID)
		slog.Info("Bridge agent disconnected", "agent_id", agentID, "connection_id", c.ID)
	}
}

func (m *ConnectionManager) broadcastPresence(agentID, status, excludeConnID string) {
	m.mu.RLock()
	var targets []*Connection
	for _, conn := range m.connections {
		if conn.authenticated && conn.ID != excludeConnID {
			targets = append(targets, conn)
		}
	}
	m.mu.RUnlock()

	for _, target := range targets {
		m.sendJSON(target, Frame{Type: "presence", AgentID: agentID, Content: status})
	}
}

// StartHeartbeat launches the reaper: every interval each socket gets a
// protocol ping, and the ones that fail are unregistered.
func (m *ConnectionManager) StartHeartbeat(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reap(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat and closes every connection with a goodbye frame.
func (m *ConnectionManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.sendJSON(c, Frame{Type: "goodbye"})
		m.unregister(c)
	}
}

func (m *ConnectionManager) reap(ctx context.Context) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		pingCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
		err := c.Conn.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("Reaping dead bridge connection",
				"connection_id", c.ID, "agent_id", c.AgentID, "error", err)
			m.unregister(c)
		}
	}
}

func (m *ConnectionManager) sendJSON(c *Connection, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Warn("Failed to marshal bridge frame", "connection_id", c.ID, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.Conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to write bridge frame",
			"connection_id", c.ID, "type", f.Type, "error", err)
	}
}
