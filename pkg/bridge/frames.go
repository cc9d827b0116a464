package bridge

import "encoding/json"

// ProtocolVersion is advertised in the welcome frame.
const ProtocolVersion = "1.0"

// Frame is the single wire shape for both directions. Type selects which
// fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	// auth
	AgentID      string   `json:"agent_id,omitempty"`
	Token        string   `json:"token,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// message
	To       string         `json:"to,omitempty"`
	From     string         `json:"from,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// command / response
	Action        string          `json:"action,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	AwaitResponse bool            `json:"await_response,omitempty"`
	CommandID     string          `json:"command_id,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`

	// broadcast / subscribe
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`

	// list_agents
	Filter *AgentFilter `json:"filter,omitempty"`
}

// AgentFilter narrows list_agents results.
type AgentFilter struct {
	Online     *bool  `json:"online,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// AgentStatus is one entry in a list_agents reply.
type AgentStatus struct {
	AgentID      string   `json:"agent_id"`
	Online       bool     `json:"online"`
	Capabilities []string `json:"capabilities"`
}
