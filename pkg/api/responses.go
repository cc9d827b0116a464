package api

import (
	"github.com/quackhq/quack/pkg/models"
)

// SendResponse acknowledges an accepted message.
type SendResponse struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"messageId"`
	Message   *models.Message `json:"message"`
}

// InboxResponse is the body of GET /api/inbox/....
type InboxResponse struct {
	Inbox    string            `json:"inbox"`
	Messages []*models.Message `json:"messages"`
	Count    int               `json:"count"`
}

// FileUploadResponse acknowledges a stored blob.
type FileUploadResponse struct {
	Success bool         `json:"success"`
	File    *models.Blob `json:"file"`
}

// KeyCreateResponse carries the plaintext key exactly once.
type KeyCreateResponse struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"apiKey"`
}

// ScriptResponse is the resumption prompt for a restarting agent.
type ScriptResponse struct {
	AgentID string                 `json:"agentId"`
	Script  string                 `json:"script"`
	Summary *models.ContextSummary `json:"summary,omitempty"`
}

// SigninResponse pairs a fresh recorder session with its resumption prompt.
type SigninResponse struct {
	Session *models.RecorderSession `json:"session"`
	Script  string                  `json:"script"`
}

// RelayResponse is the body of the bridge relay endpoints.
type RelayResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// BridgeStatusResponse summarizes the live socket layer.
type BridgeStatusResponse struct {
	ActiveConnections int    `json:"activeConnections"`
	ProtocolVersion   string `json:"protocolVersion"`
}

// HealthCheck is the status of one dependency.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]HealthCheck `json:"checks"`
}
