// Package blob stores message attachments. Metadata lives in a JSON index,
// payloads in one file per blob, so listing and TTL sweeps never read content.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// MaxPayloadSize caps a single upload at 10 MB.
const MaxPayloadSize = 10 << 20

const indexFile = "blobs.json"

// Store is the attachment store rooted at a data directory.
type Store struct {
	mu    sync.Mutex
	dir   string
	index map[string]*models.Blob
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens (or creates) a blob store under dir, restoring the index
// from a previous run when present.
func NewStore(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:   dir,
		index: make(map[string]*models.Blob),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}

	var snap map[string]*models.Blob
	ok, err := mailbox.ReadSnapshot(filepath.Join(dir, indexFile), &snap)
	if err != nil {
		return nil, err
	}
	if ok {
		s.index = snap
	}
	return s, nil
}

func (s *Store) payloadPath(id string) string {
	return filepath.Join(s.dir, id+".bin")
}

func (s *Store) persistLocked() error {
	return mailbox.WriteSnapshot(filepath.Join(s.dir, indexFile), s.index)
}

func validType(t models.BlobType) bool {
	switch t {
	case models.BlobCode, models.BlobDoc, models.BlobImage, models.BlobData:
		return true
	}
	return false
}

// Upload stores a payload and returns its metadata. An empty type defaults
// to data.
func (s *Store) Upload(name string, payload []byte, typ models.BlobType, mimeType string) (*models.Blob, error) {
	if name == "" {
		return nil, models.NewValidationError("name", "name is required")
	}
	if len(payload) == 0 {
		return nil, models.NewValidationError("content", "content is required")
	}
	if len(payload) > MaxPayloadSize {
		return nil, models.NewValidationError("content",
			fmt.Sprintf("payload exceeds %d bytes", MaxPayloadSize))
	}
	if typ == "" {
		typ = models.BlobData
	}
	if !validType(typ) {
		return nil, models.NewValidationError("type", "unknown blob type: "+string(typ))
	}

	now := s.now()
	b := &models.Blob{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      typ,
		MimeType:  mimeType,
		Size:      int64(len(payload)),
		CreatedAt: now,
		ExpiresAt: now.Add(models.BlobTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.payloadPath(b.ID), payload, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write blob payload: %w", err)
	}
	s.index[b.ID] = b
	if err := s.persistLocked(); err != nil {
		delete(s.index, b.ID)
		_ = os.Remove(s.payloadPath(b.ID))
		return nil, err
	}
	return b, nil
}

// GetMeta returns a blob's metadata without touching the payload. Expired
// blobs are not found.
func (s *Store) GetMeta(id string) (*models.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.index[id]
	if !ok || !s.now().Before(b.ExpiresAt) {
		return nil, fmt.Errorf("blob %s: %w", id, models.ErrNotFound)
	}
	copied := *b
	return &copied, nil
}

// Get returns a blob's metadata and payload.
func (s *Store) Get(id string) (*models.Blob, []byte, error) {
	meta, err := s.GetMeta(id)
	if err != nil {
		return nil, nil, err
	}
	payload, err := os.ReadFile(s.payloadPath(id))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("blob %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read blob payload: %w", err)
	}
	return meta, payload, nil
}

// Delete removes a blob and its payload.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("blob %s: %w", id, models.ErrNotFound)
	}
	delete(s.index, id)
	if err := s.persistLocked(); err != nil {
		return err
	}
	if err := os.Remove(s.payloadPath(id)); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove blob payload", "blob_id", id, "error", err)
	}
	return nil
}

// Count returns the number of live index entries.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Sweep drops expired blobs and their payload files, returning the number
// removed.
func (s *Store) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []string
	for id, b := range s.index {
		if !now.Before(b.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	for _, id := range expired {
		delete(s.index, id)
	}
	if err := s.persistLocked(); err != nil {
		slog.Error("Failed to persist blob index after sweep", "error", err)
	}
	for _, id := range expired {
		if err := os.Remove(s.payloadPath(id)); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove expired blob payload", "blob_id", id, "error", err)
		}
	}
	slog.Info("Blob sweep complete", "removed", len(expired))
	return len(expired)
}
