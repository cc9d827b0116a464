// Package keys issues and verifies API keys. Only the SHA-256 of the key
// material is stored; the plaintext is returned once at creation.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/models"
)

// Prefix identifies Quack API keys on the wire.
const Prefix = "quack_"

// Service is the SQL-backed key store.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a key service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// generate returns a fresh plaintext key: the prefix plus 24 base64url
// characters (18 random bytes).
func generate() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Create issues a new key for owner with the given permissions. The second
// return value is the plaintext key, shown exactly once.
func (s *Service) Create(ctx context.Context, owner string, permissions []string) (*models.APIKey, string, error) {
	if owner == "" {
		return nil, "", models.NewValidationError("owner", "owner is required")
	}
	if len(permissions) == 0 {
		permissions = []string{models.PermRead, models.PermWrite}
	}
	for _, p := range permissions {
		switch p {
		case models.PermRead, models.PermWrite, models.PermAdmin:
		default:
			return nil, "", models.NewValidationError("permissions", "unknown permission: "+p)
		}
	}

	plaintext, err := generate()
	if err != nil {
		return nil, "", err
	}

	key := &models.APIKey{
		ID:          uuid.NewString(),
		Hash:        hashKey(plaintext),
		Owner:       owner,
		Permissions: permissions,
		CreatedAt:   s.now(),
	}
	perms, _ := json.Marshal(permissions)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, owner, permissions, revoked, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		key.ID, key.Hash, key.Owner, string(perms), key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store api key: %w", err)
	}
	return key, plaintext, nil
}

// List returns all keys (without hashes usable for authentication).
func (s *Service) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, permissions, revoked, created_at, last_used_at
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var perms string
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Owner, &perms, &k.Revoked, &k.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			k.LastUsedAt = &t
		}
		_ = json.Unmarshal([]byte(perms), &k.Permissions)
		out = append(out, &k)
	}
	return out, rows.Err()
}

// Revoke marks a key unusable. Revocation is permanent.
func (s *Service) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Verify authenticates a plaintext key, returning its record. Unknown or
// revoked keys are unauthorized. The last-used stamp is best-effort.
func (s *Service) Verify(ctx context.Context, plaintext string) (*models.APIKey, error) {
	if !strings.HasPrefix(plaintext, Prefix) {
		return nil, models.ErrUnauthorized
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, permissions, revoked, created_at, last_used_at
		FROM api_keys WHERE key_hash = ?`, hashKey(plaintext))

	var k models.APIKey
	var perms string
	var lastUsed sql.NullTime
	err := row.Scan(&k.ID, &k.Owner, &perms, &k.Revoked, &k.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify api key: %w", err)
	}
	if k.Revoked {
		return nil, models.ErrUnauthorized
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	_ = json.Unmarshal([]byte(perms), &k.Permissions)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, s.now(), k.ID); err != nil {
		slog.Warn("Failed to stamp api key usage", "key_id", k.ID, "error", err)
	}
	return &k, nil
}
