package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/quackhq/quack/pkg/models"
)

// truncate cuts s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Summarize synthesizes a context summary from entries ordered newest
// first, as returned by GetContextForSession.
func Summarize(entries []*models.JournalEntry) *models.ContextSummary {
	summary := &models.ContextSummary{
		SummaryText:      "No context available",
		ImmediateGoal:    "Continue work",
		KeyDecisions:     []string{},
		UnresolvedIssues: []string{},
		EntryCount:       len(entries),
	}
	if len(entries) == 0 {
		return summary
	}
	summary.SessionID = entries[0].SessionID
	summary.AgentID = entries[0].AgentID

	var latest *models.ContextSnapshot
	var errorContents []string
	for _, e := range entries {
		if latest == nil && e.Snapshot != nil {
			latest = e.Snapshot
		}
		if e.Type == models.EntryError {
			summary.ErrorCount++
			if len(errorContents) < 2 {
				errorContents = append(errorContents, truncate(e.Content, 60))
			}
		}
	}

	if latest != nil {
		if latest.CurrentTask != "" {
			summary.SummaryText = "Working on: " + latest.CurrentTask
		}
		if latest.BlockingIssue != "" {
			summary.ImmediateGoal = latest.BlockingIssue
		}
		if latest.RecentDecisions != nil {
			summary.KeyDecisions = latest.RecentDecisions
		}
	}

	// The freshest error trumps whatever the snapshot said the goal was.
	if summary.ErrorCount > 0 {
		for _, e := range entries {
			if e.Type == models.EntryError {
				summary.ImmediateGoal = "Fix error: " + truncate(e.Content, 80)
				break
			}
		}
	}
	summary.UnresolvedIssues = errorContents
	return summary
}

// recentLogCount is how many entries the resumption prompt replays.
const recentLogCount = 10

// GenerateScript builds the resumption prompt for a restarting agent. When
// summary is nil it is synthesized from the agent's recent entries.
func (s *Service) GenerateScript(ctx context.Context, agentID string, summary *models.ContextSummary) (string, error) {
	if agentID == "" {
		return "", models.NewValidationError("agentId", "agent id is required")
	}
	entries, err := s.GetContextForAgent(ctx, agentID, 50)
	if err != nil {
		return "", err
	}
	if summary == nil {
		summary = Summarize(entries)
	}

	var b strings.Builder
	b.WriteString("You are resuming a previous work session. Your prior context was lost.\n")
	b.WriteString("The Flight Recorder below is your own journal from before the restart.\n")
	b.WriteString("Read it, then continue the work. Log to the recorder as you go.\n\n")

	fmt.Fprintf(&b, "AGENT: %s\n", agentID)
	fmt.Fprintf(&b, "SUMMARY: %s\n", summary.SummaryText)
	fmt.Fprintf(&b, "IMMEDIATE GOAL: %s\n", summary.ImmediateGoal)
	if len(summary.KeyDecisions) > 0 {
		b.WriteString("KEY DECISIONS:\n")
		for _, d := range summary.KeyDecisions {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	if len(summary.UnresolvedIssues) > 0 {
		b.WriteString("UNRESOLVED ISSUES:\n")
		for _, issue := range summary.UnresolvedIssues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	recent := entries
	if len(recent) > recentLogCount {
		recent = recent[:recentLogCount]
	}
	if len(recent) > 0 {
		b.WriteString("\nRECENT LOGS:\n")
		// Entries arrive newest first; replay them chronologically.
		for i := len(recent) - 1; i >= 0; i-- {
			e := recent[i]
			fmt.Fprintf(&b, "- [%s] %s: %s\n",
				e.Timestamp.Format("15:04"), e.Type, truncate(e.Content, 100))
		}
	}

	b.WriteString("\nAcknowledge that you have read this context, then state your next step.\n")
	return b.String(), nil
}
