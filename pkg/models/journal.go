package models

import "time"

// EntryType is the kind of a Flight Recorder journal entry.
type EntryType string

const (
	EntryThought    EntryType = "THOUGHT"
	EntryError      EntryType = "ERROR"
	EntryCheckpoint EntryType = "CHECKPOINT"
	EntryMessage    EntryType = "MESSAGE"
)

// ValidEntryType reports whether t is a known journal entry type.
func ValidEntryType(t EntryType) bool {
	switch t {
	case EntryThought, EntryError, EntryCheckpoint, EntryMessage:
		return true
	}
	return false
}

// ContextSnapshot captures an agent's working state at log time. The most
// recent snapshot in a session drives the resumption prompt.
type ContextSnapshot struct {
	CurrentTask     string         `json:"current_task,omitempty"`
	LastFileEdited  string         `json:"last_file_edited,omitempty"`
	BlockingIssue   string         `json:"blocking_issue,omitempty"`
	RecentDecisions []string       `json:"recent_decisions,omitempty"`
	State           map[string]any `json:"state,omitempty"`
}

// JournalEntry is one Flight Recorder record.
type JournalEntry struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	AgentID     string           `json:"agentId"`
	Timestamp   time.Time        `json:"timestamp"`
	Type        EntryType        `json:"type"`
	Content     string           `json:"content"`
	Snapshot    *ContextSnapshot `json:"contextSnapshot,omitempty"`
	TargetAgent string           `json:"targetAgent,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

// RecorderSession groups one agent's journal entries within an activity window.
type RecorderSession struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agentId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	EntryCount   int       `json:"entryCount"`
	Active       bool      `json:"active"`
}

// RecorderSessionWindow is how long an active session keeps accepting
// entries after its last activity.
const RecorderSessionWindow = 24 * time.Hour

// ContextSummary is the synthesized view of a recorder session used to
// build the resumption prompt.
type ContextSummary struct {
	SessionID        string   `json:"sessionId"`
	AgentID          string   `json:"agentId"`
	SummaryText      string   `json:"summary_text"`
	ImmediateGoal    string   `json:"immediate_goal"`
	KeyDecisions     []string `json:"key_decisions"`
	UnresolvedIssues []string `json:"unresolved_issues"`
	ErrorCount       int      `json:"error_count"`
	EntryCount       int      `json:"entry_count"`
}
