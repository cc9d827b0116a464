package models

import "time"

// AgentCategory classifies how autonomously an agent operates. The routing
// policy holds messages sent by conversational agents for human review.
type AgentCategory string

const (
	CategoryConversational AgentCategory = "conversational"
	CategoryAutonomous     AgentCategory = "autonomous"
	CategorySupervised     AgentCategory = "supervised"
)

// NotifyMode is how an agent learns about new messages.
type NotifyMode string

const (
	NotifyPolling   NotifyMode = "polling"
	NotifyWebhook   NotifyMode = "webhook"
	NotifyWebsocket NotifyMode = "websocket"
)

// OnlineWindow is how recently an agent must have been seen to count as online.
const OnlineWindow = 5 * time.Minute

// Agent is a registered participant. Its identifier is "platform/name".
type Agent struct {
	ID                 string        `json:"id"`
	Platform           string        `json:"platform"`
	Name               string        `json:"name"`
	DisplayName        string        `json:"displayName,omitempty"`
	Capabilities       []string      `json:"capabilities,omitempty"`
	Category           AgentCategory `json:"category"`
	RequiresApproval   bool          `json:"requiresApproval"`
	AutoApproveOnCheck bool          `json:"autoApproveOnCheck"`
	NotifyMode         NotifyMode    `json:"notifyMode"`
	WebhookURL         string        `json:"webhookUrl,omitempty"`
	WebhookSecret      string        `json:"-"`
	PlatformURL        string        `json:"platformUrl,omitempty"`
	NotifyPrompt       string        `json:"notifyPrompt,omitempty"`
	Public             bool          `json:"public"`
	OwnerID            string        `json:"ownerId,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastSeenAt         time.Time     `json:"lastSeenAt"`
}

// Online reports whether the agent was seen within the online window.
func (a *Agent) Online(now time.Time) bool {
	return !a.LastSeenAt.IsZero() && now.Sub(a.LastSeenAt) <= OnlineWindow
}
