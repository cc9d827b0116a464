package registry

import (
	"context"
	"testing"
	"time"

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

func TestRegisterAndGet(t *testing.T) {
	s := newTestService(t)

	a, err := s.Register(context.Background(), &models.Agent{
		Platform: "Replit", Name: "Main",
		Category:   models.CategoryAutonomous,
		NotifyMode: models.NotifyWebhook,
		Public:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "replit/main", a.ID)

	got, err := s.Get(context.Background(), "replit", "main")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryAutonomous, got.Category)
	assert.Equal(t, models.NotifyWebhook, got.NotifyMode)

	// Duplicate registration is a conflict.
	_, err = s.Register(context.Background(), &models.Agent{Platform: "replit", Name: "main"})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestService(t)

	_, err := s.Register(context.Background(), &models.Agent{Platform: "", Name: "x"})
	assert.True(t, models.IsValidationError(err))

	_, err = s.Register(context.Background(), &models.Agent{
		Platform: "a", Name: "b", Category: "weird",
	})
	assert.True(t, models.IsValidationError(err))
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestService(t)
	a, err := s.Register(context.Background(), &models.Agent{Platform: "cursor", Name: "dev"})
	require.NoError(t, err)

	a.WebhookURL = "https://hooks.example.com/cursor"
	a.NotifyMode = models.NotifyWebhook
	updated, err := s.Update(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/cursor", updated.WebhookURL)

	require.NoError(t, s.Delete(context.Background(), "cursor", "dev"))
	_, err = s.Get(context.Background(), "cursor", "dev")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "cursor", "dev"), models.ErrNotFound)
}

func TestPing_OnlineWindow(t *testing.T) {
	s := newTestService(t)
	_, err := s.Register(context.Background(), &models.Agent{Platform: "replit", Name: "main"})
	require.NoError(t, err)

	a, err := s.Ping(context.Background(), "replit/main")
	require.NoError(t, err)
	assert.True(t, a.Online(time.Now()))
	assert.False(t, a.Online(time.Now().Add(6*time.Minute)))

	_, err = s.Ping(context.Background(), "ghost/none")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestShouldAutoApprove_PolicyTable(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Neither registered → approve.
	assert.True(t, s.ShouldAutoApprove(ctx, "mystery/a", "unknown/b"))

	_, err := s.Register(ctx, &models.Agent{
		Platform: "claude", Name: "main",
		Category: models.CategoryConversational, RequiresApproval: true,
	})
	require.NoError(t, err)
	_, err = s.Register(ctx, &models.Agent{
		Platform: "replit", Name: "main", Category: models.CategoryAutonomous,
	})
	require.NoError(t, err)
	_, err = s.Register(ctx, &models.Agent{
		Platform: "cursor", Name: "main", Category: models.CategoryAutonomous,
	})
	require.NoError(t, err)

	// Destination requires approval → hold.
	assert.False(t, s.ShouldAutoApprove(ctx, "replit/dev", "claude/web"))

	// Conversational sender → hold even for an autonomous destination.
	assert.False(t, s.ShouldAutoApprove(ctx, "claude/web", "replit/main"))

	// Autonomous pair → approve.
	assert.True(t, s.ShouldAutoApprove(ctx, "cursor/dev", "replit/main"))

	// Unregistered sender to autonomous destination → approve.
	assert.True(t, s.ShouldAutoApprove(ctx, "mystery/a", "replit/main"))
}

func TestSeed(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx, nil))

	claude, err := s.GetByPlatform(ctx, "claude")
	require.NoError(t, err)
	assert.True(t, claude.RequiresApproval)
	assert.Equal(t, models.CategoryConversational, claude.Category)
	assert.NotEmpty(t, claude.PlatformURL)
	assert.NotEmpty(t, claude.NotifyPrompt)

	replit, err := s.GetByPlatform(ctx, "replit")
	require.NoError(t, err)
	assert.False(t, replit.RequiresApproval)
	assert.Equal(t, models.NotifyWebhook, replit.NotifyMode)

	// Second seed is a no-op: operator edits survive restarts.
	claude.RequiresApproval = false
	_, err = s.Update(ctx, claude)
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, nil))
	again, err := s.GetByPlatform(ctx, "claude")
	require.NoError(t, err)
	assert.False(t, again.RequiresApproval)
}

func TestValidAgentID(t *testing.T) {
	assert.True(t, ValidAgentID("claude/web"))
	assert.True(t, ValidAgentID("replit/agent-1"))
	assert.False(t, ValidAgentID("claude"))
	assert.False(t, ValidAgentID("/web"))
	assert.False(t, ValidAgentID("claude/web/extra"))
	assert.False(t, ValidAgentID("Claude/Web"))
}
