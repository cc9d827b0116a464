package keys

import (
	"context"
	"strings"
	"testing"

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

func TestCreateAndVerify(t *testing.T) {
	s := newTestService(t)

	key, plaintext, err := s.Create(context.Background(), "ops", []string{models.PermAdmin})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "quack_"))
	assert.Len(t, strings.TrimPrefix(plaintext, "quack_"), 24)

	verified, err := s.Verify(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, verified.ID)
	assert.True(t, verified.HasPermission(models.PermWrite), "admin implies write")
}

func TestVerify_Rejections(t *testing.T) {
	s := newTestService(t)

	_, err := s.Verify(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = s.Verify(context.Background(), "quack_AAAAAAAAAAAAAAAAAAAAAAAA")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	key, plaintext, err := s.Create(context.Background(), "ops", nil)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(context.Background(), key.ID))

	_, err = s.Verify(context.Background(), plaintext)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestListAndRevoke(t *testing.T) {
	s := newTestService(t)

	_, _, err := s.Create(context.Background(), "a", nil)
	require.NoError(t, err)
	_, _, err = s.Create(context.Background(), "b", nil)
	require.NoError(t, err)

	listed, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	assert.ErrorIs(t, s.Revoke(context.Background(), "missing"), models.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	s := newTestService(t)

	_, _, err := s.Create(context.Background(), "", nil)
	assert.True(t, models.IsValidationError(err))

	_, _, err = s.Create(context.Background(), "ops", []string{"superuser"})
	assert.True(t, models.IsValidationError(err))
}
