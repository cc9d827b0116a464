// Package recorder is the Flight Recorder: a crash journal agents write to
// while working, and a resumption prompt generator that reconstructs enough
// context for a restarted agent to pick up where it left off.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/models"
)

// Service is the SQL-backed journal.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a recorder service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SaveEntry validates and stores one journal entry, selecting (or creating)
// the session it belongs to. The returned entry carries the resolved
// session id.
func (s *Service) SaveEntry(ctx context.Context, e *models.JournalEntry) (*models.JournalEntry, error) {
	if e.AgentID == "" {
		return nil, models.NewValidationError("agentId", "agent id is required")
	}
	if !models.ValidEntryType(e.Type) {
		return nil, models.NewValidationError("type", "unknown entry type: "+string(e.Type))
	}
	if e.Content == "" && e.Snapshot == nil {
		return nil, models.NewValidationError("content", "entry needs content or a context snapshot")
	}

	session, err := s.GetOrCreateSession(ctx, e.AgentID, e.SessionID)
	if err != nil {
		return nil, err
	}

	stored := *e
	stored.ID = uuid.NewString()
	stored.SessionID = session.ID
	stored.Timestamp = s.now()

	var snapshotJSON sql.NullString
	if stored.Snapshot != nil {
		data, err := json.Marshal(stored.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal context snapshot: %w", err)
		}
		snapshotJSON = sql.NullString{String: string(data), Valid: true}
	}
	tags, _ := json.Marshal(stored.Tags)
	if stored.Tags == nil {
		tags = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
			(id, session_id, agent_id, created_at, entry_type, content,
			 context_snapshot, target_agent, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.SessionID, stored.AgentID, stored.Timestamp,
		string(stored.Type), stored.Content, snapshotJSON, stored.TargetAgent, string(tags))
	if err != nil {
		return nil, fmt.Errorf("failed to store journal entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE recorder_sessions SET entry_count = entry_count + 1, last_activity = ?
		WHERE id = ?`, stored.Timestamp, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to bump session activity: %w", err)
	}
	return &stored, nil
}

// GetOrCreateSession resolves the session a log entry belongs to. An
// explicit id is upserted as-is; otherwise the agent's most recent active
// session within the activity window is reused, else a new one starts.
func (s *Service) GetOrCreateSession(ctx context.Context, agentID, sessionID string) (*models.RecorderSession, error) {
	now := s.now()
	if sessionID != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO recorder_sessions (id, agent_id, created_at, last_activity, entry_count, is_active)
			VALUES (?, ?, ?, ?, 0, 1)
			ON CONFLICT (id) DO NOTHING`, sessionID, agentID, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert recorder session: %w", err)
		}
		return s.getSession(ctx, sessionID)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, created_at, last_activity, entry_count, is_active
		FROM recorder_sessions
		WHERE agent_id = ? AND is_active = 1 AND last_activity > ?
		ORDER BY last_activity DESC LIMIT 1`,
		agentID, now.Add(-models.RecorderSessionWindow))
	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.createSession(ctx, agentID)
}

func (s *Service) createSession(ctx context.Context, agentID string) (*models.RecorderSession, error) {
	session := &models.RecorderSession{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		CreatedAt:    s.now(),
		LastActivity: s.now(),
		Active:       true,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recorder_sessions (id, agent_id, created_at, last_activity, entry_count, is_active)
		VALUES (?, ?, ?, ?, 0, 1)`,
		session.ID, session.AgentID, session.CreatedAt, session.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder session: %w", err)
	}
	return session, nil
}

// StartNewSession closes the agent's active sessions and opens a fresh one.
func (s *Service) StartNewSession(ctx context.Context, agentID string) (*models.RecorderSession, error) {
	if agentID == "" {
		return nil, models.NewValidationError("agentId", "agent id is required")
	}
	if err := s.CloseAgentSessions(ctx, agentID); err != nil {
		return nil, err
	}
	return s.createSession(ctx, agentID)
}

// CloseSession deactivates one session.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recorder_sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to close recorder session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recorder session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// CloseAgentSessions deactivates every active session for an agent.
func (s *Service) CloseAgentSessions(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recorder_sessions SET is_active = 0 WHERE agent_id = ? AND is_active = 1`, agentID)
	if err != nil {
		return fmt.Errorf("failed to close sessions for %s: %w", agentID, err)
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, id string) (*models.RecorderSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, created_at, last_activity, entry_count, is_active
		FROM recorder_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.RecorderSession, error) {
	var session models.RecorderSession
	err := row.Scan(&session.ID, &session.AgentID, &session.CreatedAt,
		&session.LastActivity, &session.EntryCount, &session.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recorder session: %w", err)
	}
	return &session, nil
}

// GetContextForSession returns the most recent limit entries of a session,
// newest first.
func (s *Service) GetContextForSession(ctx context.Context, sessionID string, limit int) ([]*models.JournalEntry, error) {
	return s.queryEntries(ctx, `session_id = ?`, sessionID, limit)
}

// GetContextForAgent returns the most recent limit entries across all of an
// agent's sessions, newest first.
func (s *Service) GetContextForAgent(ctx context.Context, agentID string, limit int) ([]*models.JournalEntry, error) {
	return s.queryEntries(ctx, `agent_id = ?`, agentID, limit)
}

func (s *Service) queryEntries(ctx context.Context, where string, arg any, limit int) ([]*models.JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, agent_id, created_at, entry_type, content,
			context_snapshot, target_agent, tags
		FROM journal_entries WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ?`, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var out []*models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var entryType, tags string
		var snapshot sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.AgentID, &e.Timestamp,
			&entryType, &e.Content, &snapshot, &e.TargetAgent, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Type = models.EntryType(entryType)
		if snapshot.Valid {
			var snap models.ContextSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &snap); err == nil {
				e.Snapshot = &snap
			}
		}
		_ = json.Unmarshal([]byte(tags), &e.Tags)
		out = append(out, &e)
	}
	return out, rows.Err()
}
