package models

import "time"

// AuditEntry is one append-only record of a lifecycle mutation.
type AuditEntry struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Details    map[string]any `json:"details,omitempty"`
	SourceAddr string         `json:"sourceAddr,omitempty"`
}

// Audit actions emitted by the relay. Verb.noun, lowercase.
const (
	AuditMessageSend     = "message.send"
	AuditMessageApprove  = "message.approve"
	AuditMessageComplete = "message.complete"
	AuditMessageStatus   = "message.status"
	AuditMessageRead     = "message.read"
	AuditMessageDelete   = "message.delete"
	AuditMessageExpire   = "message.expire"
	AuditThreadArchive   = "thread.archive"
	AuditAgentRegister   = "agent.register"
	AuditAgentUpdate     = "agent.update"
	AuditAgentDelete     = "agent.delete"
	AuditKeyCreate       = "key.create"
	AuditKeyRevoke       = "key.revoke"
	AuditWebhookCreate   = "webhook.create"
	AuditWebhookDelete   = "webhook.delete"
)

// ArchivedThread is a frozen copy of a completed thread, written before the
// sweep removes its messages.
type ArchivedThread struct {
	ID           string         `json:"id"`
	ThreadID     string         `json:"threadId"`
	Participants []string       `json:"participants"`
	FirstMessage time.Time      `json:"firstMessageAt"`
	LastMessage  time.Time      `json:"lastMessageAt"`
	MessageCount int            `json:"messageCount"`
	Messages     []Message      `json:"messages"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ArchivedAt   time.Time      `json:"archivedAt"`
}

// AuditQuery filters audit log reads.
type AuditQuery struct {
	Action     string
	Actor      string
	TargetType string
	TargetID   string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// AuditStats aggregates the audit log for dashboards.
type AuditStats struct {
	Total      int64            `json:"total"`
	Last24h    int64            `json:"last24h"`
	TopActions map[string]int64 `json:"topActions"`
	TopActors  map[string]int64 `json:"topActors"`
}
