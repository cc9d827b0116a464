package models

import (
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle of a two-agent conversation session.
type ConversationStatus string

const (
	ConversationActive        ConversationStatus = "active"
	ConversationAwaitingReply ConversationStatus = "awaiting_reply"
	ConversationAwaitingHuman ConversationStatus = "awaiting_human"
	ConversationCompleted     ConversationStatus = "completed"
	ConversationAbandoned     ConversationStatus = "abandoned"
)

// ConversationTTL is the inactivity window after which an active session
// is considered abandoned.
const ConversationTTL = 24 * time.Hour

// ConversationRetention is how long completed and abandoned sessions are
// kept before the janitor discards them.
const ConversationRetention = 7 * 24 * time.Hour

// ConversationSession tracks turn state between two agents within a thread.
type ConversationSession struct {
	Key          string             `json:"key"`
	From         string             `json:"from"`
	To           string             `json:"to"`
	ThreadID     string             `json:"threadId"`
	Participants []string           `json:"participants"`
	Status       ConversationStatus `json:"status"`
	CurrentTurn  string             `json:"currentTurn"`
	TurnCount    int                `json:"turnCount"`
	MessageCount int                `json:"messageCount"`
	StartedAt    time.Time          `json:"startedAt"`
	LastMessage  time.Time          `json:"lastMessageAt"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
	ExpiresAt    time.Time          `json:"expiresAt"`
}

// ConversationKey builds the canonical session key for a (from, to, thread)
// triple. Identifiers must already be normalized.
func ConversationKey(from, to, threadID string) string {
	return fmt.Sprintf("agent:%s:to:%s:thread:%s", from, to, threadID)
}
