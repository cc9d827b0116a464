// Package audit provides the append-only audit log and the thread archive.
// Audit writes are best-effort: they log failures instead of propagating
// them, so a broken audit store never blocks a mutating operation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quackhq/quack/pkg/models"
)

// Service writes and queries audit entries.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates an audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Record appends one audit entry. Errors are logged, never returned: the
// contract with callers is fire-and-forget.
func (s *Service) Record(ctx context.Context, action, actor, targetType, targetID string, details map[string]any, sourceAddr string) {
	detailsJSON := []byte("{}")
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			detailsJSON = data
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (created_at, action, actor, target_type, target_id, details, source_addr)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.now(), action, actor, targetType, targetID, string(detailsJSON), sourceAddr)
	if err != nil {
		slog.Error("Audit write failed", "action", action, "target_id", targetID, "error", err)
	}
}

// Query returns audit entries matching q, newest first.
func (s *Service) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	query := `SELECT id, created_at, action, actor, target_type, target_id, details, source_addr
		FROM audit_entries WHERE 1=1`
	var args []any
	if q.Action != "" {
		query += ` AND action = ?`
		args = append(args, q.Action)
	}
	if q.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, q.Actor)
	}
	if q.TargetType != "" {
		query += ` AND target_type = ?`
		args = append(args, q.TargetType)
	}
	if q.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, q.TargetID)
	}
	if q.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, *q.Until)
	}
	query += ` ORDER BY id DESC`
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var details string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Actor,
			&e.TargetType, &e.TargetID, &details, &e.SourceAddr); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		_ = json.Unmarshal([]byte(details), &e.Details)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Stats aggregates the audit log: totals, activity in the last 24 hours,
// and the top actions and actors.
func (s *Service) Stats(ctx context.Context) (*models.AuditStats, error) {
	stats := &models.AuditStats{
		TopActions: make(map[string]int64),
		TopActors:  make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries WHERE created_at >= ?`,
		s.now().Add(-24*time.Hour)).Scan(&stats.Last24h); err != nil {
		return nil, fmt.Errorf("failed to count recent audit entries: %w", err)
	}

	if err := s.topN(ctx, "action", stats.TopActions); err != nil {
		return nil, err
	}
	if err := s.topN(ctx, "actor", stats.TopActors); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Service) topN(ctx context.Context, column string, dest map[string]int64) error {
	// column is one of two fixed identifiers, never user input.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, COUNT(*) AS n FROM audit_entries
		WHERE %s != '' GROUP BY %s ORDER BY n DESC LIMIT 10`, column, column, column))
	if err != nil {
		return fmt.Errorf("failed to aggregate audit %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan audit aggregate: %w", err)
		}
		dest[key] = n
	}
	return rows.Err()
}
