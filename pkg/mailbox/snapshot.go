package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quackhq/quack/pkg/models"
)

// snapshot is the on-disk shape of the mailbox.
type snapshot struct {
	Inboxes map[string][]*models.Message `json:"inboxes"`
}

// persistLocked rewrites the snapshot atomically (temp file + rename) so a
// crash mid-write never leaves a truncated snapshot. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	return WriteSnapshot(s.snapshotPath, snapshot{Inboxes: s.inboxes})
}

// loadSnapshot restores the store from disk. A missing file is a fresh start.
func (s *Store) loadSnapshot() error {
	var snap snapshot
	ok, err := ReadSnapshot(s.snapshotPath, &snap)
	if err != nil || !ok {
		return err
	}
	for path, msgs := range snap.Inboxes {
		s.inboxes[path] = msgs
		for _, m := range msgs {
			s.byID[m.ID] = m
			s.inboxOf[m.ID] = path
		}
	}
	return nil
}

// WriteSnapshot marshals v and atomically replaces the file at path. Shared
// by every JSON-snapshot store in the relay (mailbox, webhooks, sessions,
// blob index).
func WriteSnapshot(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot unmarshals the file at path into v. Returns (false, nil)
// when the file does not exist.
func ReadSnapshot(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return true, nil
}
