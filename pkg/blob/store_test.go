package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/models"
)

func TestUploadAndGet(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte("package main\n\nfunc main() {}\n")
	b, err := s.Upload("main.go", payload, models.BlobCode, "text/x-go")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.EqualValues(t, len(payload), b.Size)
	assert.Equal(t, models.BlobTTL, b.ExpiresAt.Sub(b.CreatedAt))

	meta, got, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
	assert.Equal(t, "main.go", meta.Name)

	meta, err = s.GetMeta(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BlobCode, meta.Type)
}

func TestUpload_Validation(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Upload("", []byte("x"), models.BlobDoc, "")
	assert.True(t, models.IsValidationError(err))

	_, err = s.Upload("empty.txt", nil, models.BlobDoc, "")
	assert.True(t, models.IsValidationError(err))

	_, err = s.Upload("huge.bin", make([]byte, MaxPayloadSize+1), models.BlobData, "")
	assert.True(t, models.IsValidationError(err))

	_, err = s.Upload("odd.txt", []byte("x"), models.BlobType("video"), "")
	assert.True(t, models.IsValidationError(err))

	// Empty type defaults to data.
	b, err := s.Upload("raw", []byte("x"), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.BlobData, b.Type)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	b, err := s.Upload("notes.md", []byte("# notes"), models.BlobDoc, "text/markdown")
	require.NoError(t, err)

	require.NoError(t, s.Delete(b.ID))
	_, err = s.GetMeta(b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, statErr := os.Stat(filepath.Join(dir, b.ID+".bin"))
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, s.Delete(b.ID), models.ErrNotFound)
}

func TestSweep_RemovesExpired(t *testing.T) {
	now := time.Now()
	clock := &now
	dir := t.TempDir()
	s, err := NewStore(dir, WithClock(func() time.Time { return *clock }))
	require.NoError(t, err)

	old, err := s.Upload("old.txt", []byte("old"), models.BlobDoc, "")
	require.NoError(t, err)

	later := now.Add(models.BlobTTL - time.Minute)
	clock = &later
	fresh, err := s.Upload("fresh.txt", []byte("fresh"), models.BlobDoc, "")
	require.NoError(t, err)

	// One second past the first blob's expiry.
	past := now.Add(models.BlobTTL + time.Second)
	clock = &past

	assert.Equal(t, 1, s.Sweep(context.Background()))
	assert.Equal(t, 1, s.Count())

	_, err = s.GetMeta(old.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, _, err = s.Get(fresh.ID)
	assert.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, old.ID+".bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	b, err := s.Upload("keep.txt", []byte("keep"), models.BlobDoc, "")
	require.NoError(t, err)

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	meta, payload, err := reopened.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep.txt", meta.Name)
	assert.Equal(t, []byte("keep"), payload)
}
