// Package models defines the data types shared across the relay:
// messages, agents, blobs, journal entries, sessions, and audit records.
package models

import "time"

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	StatusPending    MessageStatus = "pending"
	StatusApproved   MessageStatus = "approved"
	StatusInProgress MessageStatus = "in_progress"
	StatusRead       MessageStatus = "read"
	StatusCompleted  MessageStatus = "completed"
	StatusFailed     MessageStatus = "failed"
	StatusExpired    MessageStatus = "expired"
)

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s MessageStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress, StatusRead,
		StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Priority orders messages for consumers; it has no scheduling effect
// inside the relay itself.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RoutingMode selects how a message reaches its destination.
type RoutingMode string

const (
	RoutingDirect RoutingMode = "direct"
	RoutingCowork RoutingMode = "cowork"
)

// ControlType marks a message whose task text is a reserved conversation
// verb rather than work.
type ControlType string

const (
	ControlReplySkip       ControlType = "REPLY_SKIP"
	ControlAnnounceSkip    ControlType = "ANNOUNCE_SKIP"
	ControlConversationEnd ControlType = "CONVERSATION_END"
)

// MessageTTL is how long a message lives before the sweep removes it.
const MessageTTL = 48 * time.Hour

// FileRef is an attachment on a message: either inlined content or a
// reference to a stored blob by id.
type FileRef struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

// Message is a single mailbox entry.
type Message struct {
	ID        string        `json:"id"`
	To        string        `json:"to"`
	From      string        `json:"from"`
	Timestamp time.Time     `json:"timestamp"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Status    MessageStatus `json:"status"`
	ReadAt    *time.Time    `json:"readAt,omitempty"`

	Task    string    `json:"task"`
	Context string    `json:"context,omitempty"`
	Files   []FileRef `json:"files"`

	ProjectName         string   `json:"projectName,omitempty"`
	ConversationExcerpt string   `json:"conversationExcerpt,omitempty"`
	Project             string   `json:"project,omitempty"`
	Priority            Priority `json:"priority,omitempty"`
	Tags                []string `json:"tags,omitempty"`

	Routing      RoutingMode `json:"routing"`
	RoutedAt     *time.Time  `json:"routedAt,omitempty"`
	Destination  string      `json:"destination,omitempty"`
	CoworkStatus string      `json:"coworkStatus,omitempty"`

	ReplyTo    string `json:"replyTo,omitempty"`
	ThreadID   string `json:"threadId"`
	ReplyCount int    `json:"replyCount,omitempty"`

	IsControlMessage bool        `json:"isControlMessage,omitempty"`
	ControlType      ControlType `json:"controlType,omitempty"`
	ThreadStatus     string      `json:"threadStatus,omitempty"`
}

// Clone returns a deep copy so callers can hand messages across goroutine
// boundaries without aliasing store-owned state.
func (m *Message) Clone() *Message {
	c := *m
	if m.Files != nil {
		c.Files = make([]FileRef, len(m.Files))
		copy(c.Files, m.Files)
	}
	if m.Tags != nil {
		c.Tags = make([]string, len(m.Tags))
		copy(c.Tags, m.Tags)
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	if m.RoutedAt != nil {
		t := *m.RoutedAt
		c.RoutedAt = &t
	}
	return &c
}

// Actionable reports whether the message still expects work from its
// recipient. A reply auto-completes its parent only in these states.
func (m *Message) Actionable() bool {
	switch m.Status {
	case StatusPending, StatusApproved, StatusInProgress:
		return true
	}
	return false
}
