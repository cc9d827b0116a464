package audit

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

// Archive freezes completed threads before the TTL sweep destroys them.
// Unlike audit entries, archive writes are durable: failure propagates so
// the sweep keeps the messages for the next attempt.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// NewArchive creates a thread archive.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db, now: time.Now}
}

// ArchiveThread stores a frozen copy of a thread: participants, timing,
// and the full message list in one row.
func (a *Archive) ArchiveThread(ctx context.Context, threadID string, messages []models.Message, metadata map[string]any) error {
	if threadID == "" {
		return models.NewValidationError("threadId", "thread id is required")
	}
	if len(messages) == 0 {
		return models.NewValidationError("messages", "cannot archive an empty thread")
	}

	participants := make([]string, 0, 2)
	seen := make(map[string]bool)
	first, last := messages[0].Timestamp, messages[0].Timestamp
	for _, m := range messages {
		for _, p := range []string{m.From, m.To} {
			if p != "" && !seen[p] {
				seen[p] = true
				participants = append(participants, p)
			}
		}
		if m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}

	participantsJSON, _ := json.Marshal(participants)
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal thread messages: %w", err)
	}
	metadataJSON := []byte("{}")
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			metadataJSON = data
		}
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO archived_threads
			(id, thread_id, participants, first_message_at, last_message_at,
			 message_count, messages, metadata, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), threadID, string(participantsJSON), first, last,
		len(messages), string(messagesJSON), string(metadataJSON), a.now())
	if err != nil {
		return fmt.Errorf("failed to archive thread %s: %w", threadID, err)
	}
	return nil
}

// GetThread returns the latest archived copy of a thread.
func (a *Archive) GetThread(ctx context.Context, threadID string) (*models.ArchivedThread, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, thread_id, participants, first_message_at, last_message_at,
			message_count, messages, metadata, archived_at
		FROM archived_threads WHERE thread_id = ?
		ORDER BY archived_at DESC, id DESC LIMIT 1`, threadID)
	return scanArchive(row)
}

// List returns archive rows newest first.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]*models.ArchivedThread, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, thread_id, participants, first_message_at, last_message_at,
			message_count, messages, metadata, archived_at
		FROM archived_threads ORDER BY archived_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived threads: %w", err)
	}
	defer rows.Close()

	var out []*models.ArchivedThread
	for rows.Next() {
		t, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*models.ArchivedThread, error) {
	var t models.ArchivedThread
	var participants, messages, metadata string
	var first, last sql.NullTime
	err := row.Scan(&t.ID, &t.ThreadID, &participants, &first, &last,
		&t.MessageCount, &messages, &metadata, &t.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan archived thread: %w", err)
	}
	if first.Valid {
		t.FirstMessage = first.Time
	}
	if last.Valid {
		t.LastMessage = last.Time
	}
	_ = json.Unmarshal([]byte(participants), &t.Participants)
	if err := json.Unmarshal([]byte(messages), &t.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode archived messages: %w", err)
	}
	_ = json.Unmarshal([]byte(metadata), &t.Metadata)
	return &t, nil
}
