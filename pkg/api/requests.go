package api

import (
	"github.com/quackhq/quack/pkg/models"
)

// SendRequest is the body of POST /api/send.
type SendRequest struct {
	To      string           `json:"to"`
	From    string           `json:"from"`
	Task    string           `json:"task"`
	Context string           `json:"context,omitempty"`
	Files   []models.FileRef `json:"files,omitempty"`

	ProjectName         string             `json:"projectName,omitempty"`
	ConversationExcerpt string             `json:"conversationExcerpt,omitempty"`
	Project             string             `json:"project,omitempty"`
	Priority            models.Priority    `json:"priority,omitempty"`
	Tags                []string           `json:"tags,omitempty"`
	Routing             models.RoutingMode `json:"routing,omitempty"`
	Destination         string             `json:"destination,omitempty"`
	ReplyTo             string             `json:"replyTo,omitempty"`

	// RequireApproval forces the initial status: true holds the message
	// pending, false approves it, absent defers to the routing policy.
	RequireApproval *bool `json:"requireApproval,omitempty"`
}

// UpdateStatusRequest is the body of POST /api/status/:id.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UploadFileRequest is the body of POST /api/files.
type UploadFileRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
}

// SubscribeWebhookRequest is the body of POST /api/webhooks.
type SubscribeWebhookRequest struct {
	Inbox  string `json:"inbox"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// AgentRequest is the body of POST /api/agents and PUT /api/agents/:platform/:name.
type AgentRequest struct {
	Platform           string   `json:"platform"`
	Name               string   `json:"name"`
	DisplayName        string   `json:"displayName,omitempty"`
	Capabilities       []string `json:"capabilities,omitempty"`
	Category           string   `json:"category,omitempty"`
	RequiresApproval   bool     `json:"requiresApproval"`
	AutoApproveOnCheck bool     `json:"autoApproveOnCheck"`
	NotifyMode         string   `json:"notifyMode,omitempty"`
	WebhookURL         string   `json:"webhookUrl,omitempty"`
	WebhookSecret      string   `json:"webhookSecret,omitempty"`
	PlatformURL        string   `json:"platformUrl,omitempty"`
	NotifyPrompt       string   `json:"notifyPrompt,omitempty"`
	Public             *bool    `json:"public,omitempty"`
	OwnerID            string   `json:"ownerId,omitempty"`
}

func (r *AgentRequest) toModel() *models.Agent {
	public := true
	if r.Public != nil {
		public = *r.Public
	}
	return &models.Agent{
		Platform:           r.Platform,
		Name:               r.Name,
		DisplayName:        r.DisplayName,
		Capabilities:       r.Capabilities,
		Category:           models.AgentCategory(r.Category),
		RequiresApproval:   r.RequiresApproval,
		AutoApproveOnCheck: r.AutoApproveOnCheck,
		NotifyMode:         models.NotifyMode(r.NotifyMode),
		WebhookURL:         r.WebhookURL,
		WebhookSecret:      r.WebhookSecret,
		PlatformURL:        r.PlatformURL,
		NotifyPrompt:       r.NotifyPrompt,
		Public:             public,
		OwnerID:            r.OwnerID,
	}
}

// CreateKeyRequest is the body of POST /api/keys.
type CreateKeyRequest struct {
	Owner       string   `json:"owner"`
	Permissions []string `json:"permissions"`
}

// JournalRequest is the body of the flight-recorder log endpoints.
type JournalRequest struct {
	AgentID     string                  `json:"agent_id"`
	SessionID   string                  `json:"session_id,omitempty"`
	Type        string                  `json:"type,omitempty"`
	Content     string                  `json:"content,omitempty"`
	Snapshot    *models.ContextSnapshot `json:"context_snapshot,omitempty"`
	TargetAgent string                  `json:"target_agent,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
}

// AgentSessionRequest addresses a recorder session by id or agent.
type AgentSessionRequest struct {
	AgentID   string `json:"agent_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// BridgeSendRequest is the body of POST /bridge/send.
type BridgeSendRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Task     string `json:"task"`
	Context  string `json:"context,omitempty"`
	Project  string `json:"project,omitempty"`
	Priority string `json:"priority,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
}
