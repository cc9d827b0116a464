package recorder

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/database"
	"github.com/quackhq/quack/pkg/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	client, err := database.NewClient(context.Background(),
		database.Config{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client.DB())
}

func TestSaveEntry_CreatesSessionImplicitly(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryThought, Content: "starting refactor",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)

	// Same agent within the activity window joins the same session.
	second, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryCheckpoint, Content: "tests green",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	session, err := s.getSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, session.EntryCount)
	assert.True(t, session.Active)
}

func TestSaveEntry_ExplicitSessionUpsert(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	e, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", SessionID: "my-session",
		Type: models.EntryThought, Content: "pinned",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-session", e.SessionID)

	// Repeating the explicit id is a no-op upsert, not a conflict.
	_, err = s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", SessionID: "my-session",
		Type: models.EntryThought, Content: "again",
	})
	require.NoError(t, err)
}

func TestSaveEntry_StaleSessionRollsOver(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	clock := now
	s.WithClock(func() time.Time { return clock })

	first, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryThought, Content: "old work",
	})
	require.NoError(t, err)

	clock = now.Add(models.RecorderSessionWindow + time.Hour)
	second, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryThought, Content: "new day",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSaveEntry_Validation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.SaveEntry(ctx, &models.JournalEntry{Type: models.EntryThought, Content: "x"})
	assert.True(t, models.IsValidationError(err))

	_, err = s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "a/b", Type: models.EntryType("NOTE"), Content: "x"})
	assert.True(t, models.IsValidationError(err))

	_, err = s.SaveEntry(ctx, &models.JournalEntry{AgentID: "a/b", Type: models.EntryThought})
	assert.True(t, models.IsValidationError(err))

	// A snapshot alone is a valid entry.
	_, err = s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "a/b", Type: models.EntryCheckpoint,
		Snapshot: &models.ContextSnapshot{CurrentTask: "deploy"},
	})
	assert.NoError(t, err)
}

func TestStartNewSessionClosesActive(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryThought, Content: "x",
	})
	require.NoError(t, err)

	fresh, err := s.StartNewSession(ctx, "cursor/dev")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, fresh.ID)

	old, err := s.getSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	assert.ErrorIs(t, s.CloseSession(ctx, "missing"), models.ErrNotFound)
}

func TestGetContextForSession_NewestFirstAndLimited(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	clock := now
	s.WithClock(func() time.Time { return clock })

	var sessionID string
	for i := 0; i < 5; i++ {
		clock = now.Add(time.Duration(i) * time.Second)
		e, err := s.SaveEntry(ctx, &models.JournalEntry{
			AgentID: "cursor/dev", Type: models.EntryThought,
			Content: string(rune('a' + i)),
		})
		require.NoError(t, err)
		sessionID = e.SessionID
	}

	entries, err := s.GetContextForSession(ctx, sessionID, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Content)
	assert.Equal(t, "c", entries[2].Content)

	byAgent, err := s.GetContextForAgent(ctx, "cursor/dev", 100)
	require.NoError(t, err)
	assert.Len(t, byAgent, 5)
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	assert.Equal(t, "No context available", empty.SummaryText)
	assert.Equal(t, "Continue work", empty.ImmediateGoal)

	longError := strings.Repeat("e", 120)
	entries := []*models.JournalEntry{
		{Type: models.EntryError, Content: longError, SessionID: "s", AgentID: "a/b"},
		{Type: models.EntryCheckpoint, Snapshot: &models.ContextSnapshot{
			CurrentTask:     "migrate schema",
			BlockingIssue:   "waiting on review",
			RecentDecisions: []string{"use sqlite"},
		}},
		{Type: models.EntryError, Content: "older failure"},
		{Type: models.EntryThought, Content: "noise"},
	}
	summary := Summarize(entries)
	assert.Equal(t, "Working on: migrate schema", summary.SummaryText)
	assert.Equal(t, "Fix error: "+longError[:80], summary.ImmediateGoal,
		"errors override the blocking issue")
	assert.Equal(t, []string{"use sqlite"}, summary.KeyDecisions)
	require.Len(t, summary.UnresolvedIssues, 2)
	assert.Len(t, summary.UnresolvedIssues[0], 60)
	assert.Equal(t, 2, summary.ErrorCount)
}

func TestGenerateScript(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	clock := now
	s.WithClock(func() time.Time { return clock })

	for i := 0; i < 12; i++ {
		clock = now.Add(time.Duration(i) * time.Minute)
		_, err := s.SaveEntry(ctx, &models.JournalEntry{
			AgentID: "cursor/dev", Type: models.EntryThought,
			Content: string(rune('a' + i)),
		})
		require.NoError(t, err)
	}
	_, err := s.SaveEntry(ctx, &models.JournalEntry{
		AgentID: "cursor/dev", Type: models.EntryCheckpoint,
		Snapshot: &models.ContextSnapshot{CurrentTask: "wire the api"},
	})
	require.NoError(t, err)

	script, err := s.GenerateScript(ctx, "cursor/dev", nil)
	require.NoError(t, err)

	assert.Contains(t, script, "SUMMARY: Working on: wire the api")
	assert.Contains(t, script, "RECENT LOGS:")
	assert.NotContains(t, script, "UNRESOLVED ISSUES", "omitted when empty")
	assert.Contains(t, script, "state your next step")

	// Only the last 10 entries are replayed; the oldest two are dropped.
	assert.NotContains(t, script, "THOUGHT: a\n")
	assert.NotContains(t, script, "THOUGHT: b\n")
	// Chronological order: entry "d" appears before entry "l".
	assert.Less(t, strings.Index(script, "THOUGHT: d"), strings.Index(script, "THOUGHT: l"))

	_, err = s.GenerateScript(ctx, "", nil)
	assert.True(t, models.IsValidationError(err))
}

func TestSummarize_MultibyteContentKeepsValidUTF8(t *testing.T) {
	content := strings.Repeat("ü", 120)
	entries := []*models.JournalEntry{
		{Type: models.EntryError, Content: content, SessionID: "s", AgentID: "a/b"},
	}

	summary := Summarize(entries)
	assert.True(t, utf8.ValidString(summary.ImmediateGoal))
	assert.Equal(t, "Fix error: "+strings.Repeat("ü", 80), summary.ImmediateGoal)
	require.Len(t, summary.UnresolvedIssues, 1)
	assert.Equal(t, strings.Repeat("ü", 60), summary.UnresolvedIssues[0])
}
