package models

import "time"

// WebhookEvent names the events delivered to inbox subscribers.
const (
	WebhookMessageReceived = "message.received"
	WebhookMessageApproved = "message.approved"
)

// WebhookSubscription is a per-inbox push endpoint. When Secret is set the
// delivery body is signed with HMAC-SHA256 in the X-Quack-Signature header.
type WebhookSubscription struct {
	ID            string     `json:"id"`
	Inbox         string     `json:"inbox"`
	URL           string     `json:"url"`
	Secret        string     `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	FailureCount  int        `json:"failureCount"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
}
