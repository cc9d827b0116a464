// Package registry stores agent records and implements the routing policy
// that decides whether a message is auto-approved or held for human review.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quackhq/quack/pkg/models"
)

var agentIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*/[a-z0-9][a-z0-9_.-]*$`)

// ValidAgentID reports whether id has the required "platform/name" shape.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// SplitAgentID splits "platform/name" into its parts.
func SplitAgentID(id string) (platform, name string) {
	platform, name, _ = strings.Cut(id, "/")
	return platform, name
}

// Service is the SQL-backed agent registry.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a registry service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

const agentColumns = `id, platform, name, display_name, capabilities, category,
	requires_approval, auto_approve_on_check, notify_mode, webhook_url,
	webhook_secret, platform_url, notify_prompt, public, owner_id,
	created_at, last_seen_at`

// Register inserts a new agent record.
func (s *Service) Register(ctx context.Context, a *models.Agent) (*models.Agent, error) {
	if err := normalize(a); err != nil {
		return nil, err
	}
	a.CreatedAt = s.now()
	a.LastSeenAt = a.CreatedAt

	caps, _ := json.Marshal(orEmpty(a.Capabilities))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Platform, a.Name, a.DisplayName, string(caps), string(a.Category),
		a.RequiresApproval, a.AutoApproveOnCheck, string(a.NotifyMode), a.WebhookURL,
		a.WebhookSecret, a.PlatformURL, a.NotifyPrompt, a.Public, a.OwnerID,
		a.CreatedAt, a.LastSeenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("agent %s: %w", a.ID, models.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return a, nil
}

// Get returns an agent by platform and name.
func (s *Service) Get(ctx context.Context, platform, name string) (*models.Agent, error) {
	return s.GetByID(ctx, strings.ToLower(platform)+"/"+strings.ToLower(name))
}

// GetByID returns an agent by its "platform/name" identifier.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, strings.ToLower(id))
	return scanAgent(row)
}

// GetByPlatform returns the first agent registered under a platform root.
// The routing policy resolves senders and destinations this way.
func (s *Service) GetByPlatform(ctx context.Context, platform string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE platform = ? ORDER BY created_at LIMIT 1`,
		strings.ToLower(platform))
	return scanAgent(row)
}

// List returns agents, optionally including private ones.
func (s *Service) List(ctx context.Context, includePrivate bool) ([]*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	if !includePrivate {
		query += ` WHERE public = 1`
	}
	query += ` ORDER BY platform, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update replaces the mutable fields of an agent record.
func (s *Service) Update(ctx context.Context, a *models.Agent) (*models.Agent, error) {
	if err := normalize(a); err != nil {
		return nil, err
	}
	caps, _ := json.Marshal(orEmpty(a.Capabilities))
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET display_name = ?, capabilities = ?, category = ?,
			requires_approval = ?, auto_approve_on_check = ?, notify_mode = ?,
			webhook_url = ?, webhook_secret = ?, platform_url = ?,
			notify_prompt = ?, public = ?, owner_id = ?
		WHERE id = ?`,
		a.DisplayName, string(caps), string(a.Category),
		a.RequiresApproval, a.AutoApproveOnCheck, string(a.NotifyMode),
		a.WebhookURL, a.WebhookSecret, a.PlatformURL,
		a.NotifyPrompt, a.Public, a.OwnerID, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("agent %s: %w", a.ID, models.ErrNotFound)
	}
	return s.GetByID(ctx, a.ID)
}

// Delete removes an agent record.
func (s *Service) Delete(ctx context.Context, platform, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`,
		strings.ToLower(platform)+"/"+strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s/%s: %w", platform, name, models.ErrNotFound)
	}
	return nil
}

// Ping bumps an agent's last-seen timestamp and returns the fresh record.
func (s *Service) Ping(ctx context.Context, id string) (*models.Agent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen_at = ? WHERE id = ?`, s.now(), strings.ToLower(id))
	if err != nil {
		return nil, fmt.Errorf("failed to ping agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("agent %s: %w", id, models.ErrNotFound)
	}
	return s.GetByID(ctx, id)
}

// UpdateLastActivity bumps last-seen for every agent under a platform root.
func (s *Service) UpdateLastActivity(ctx context.Context, platform string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen_at = ? WHERE platform = ?`,
		s.now(), strings.ToLower(platform))
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

func normalize(a *models.Agent) error {
	a.Platform = strings.ToLower(strings.TrimSpace(a.Platform))
	a.Name = strings.ToLower(strings.TrimSpace(a.Name))
	if a.Platform == "" || a.Name == "" {
		return models.NewValidationError("id", "agent identifier requires platform and name")
	}
	a.ID = a.Platform + "/" + a.Name
	if !ValidAgentID(a.ID) {
		return models.NewValidationError("id", "agent identifier must look like platform/name")
	}
	if a.Category == "" {
		a.Category = models.CategoryAutonomous
	}
	switch a.Category {
	case models.CategoryConversational, models.CategoryAutonomous, models.CategorySupervised:
	default:
		return models.NewValidationError("category", "unknown category: "+string(a.Category))
	}
	if a.NotifyMode == "" {
		a.NotifyMode = models.NotifyPolling
	}
	switch a.NotifyMode {
	case models.NotifyPolling, models.NotifyWebhook, models.NotifyWebsocket:
	default:
		return models.NewValidationError("notifyMode", "unknown notify mode: "+string(a.NotifyMode))
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var caps string
	var category, notifyMode string
	var lastSeen sql.NullTime
	err := row.Scan(
		&a.ID, &a.Platform, &a.Name, &a.DisplayName, &caps, &category,
		&a.RequiresApproval, &a.AutoApproveOnCheck, &notifyMode, &a.WebhookURL,
		&a.WebhookSecret, &a.PlatformURL, &a.NotifyPrompt, &a.Public, &a.OwnerID,
		&a.CreatedAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}
	a.Category = models.AgentCategory(category)
	a.NotifyMode = models.NotifyMode(notifyMode)
	if lastSeen.Valid {
		a.LastSeenAt = lastSeen.Time
	}
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		a.Capabilities = nil
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
