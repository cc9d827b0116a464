package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quackhq/quack/pkg/models"
)

// defaultAgents are registered on first start so routing decisions work out
// of the box. Conversational platforms hold messages for human review;
// autonomous pairs flow straight through.
func defaultAgents() []models.Agent {
	conversational := []struct{ platform, url string }{
		{"claude", "https://claude.ai"},
		{"gpt", "https://chatgpt.com"},
		{"gemini", "https://gemini.google.com"},
		{"grok", "https://grok.com"},
		{"copilot", "https://copilot.microsoft.com"},
	}
	autonomous := []struct{ platform, url string }{
		{"replit", "https://replit.com"},
		{"cursor", "https://cursor.com"},
		{"antigravity", "https://antigravity.dev"},
	}

	var agents []models.Agent
	for _, c := range conversational {
		agents = append(agents, models.Agent{
			Platform:         c.platform,
			Name:             "main",
			DisplayName:      c.platform,
			Category:         models.CategoryConversational,
			RequiresApproval: true,
			NotifyMode:       models.NotifyPolling,
			PlatformURL:      c.url,
			NotifyPrompt: fmt.Sprintf(
				"Check your Quack inbox at /%s and reply to any pending messages.", c.platform),
			Public: true,
		})
	}
	for _, a := range autonomous {
		agents = append(agents, models.Agent{
			Platform:         a.platform,
			Name:             "main",
			DisplayName:      a.platform,
			Category:         models.CategoryAutonomous,
			RequiresApproval: false,
			NotifyMode:       models.NotifyWebhook,
			PlatformURL:      a.url,
			NotifyPrompt: fmt.Sprintf(
				"New task available in your /%s inbox.", a.platform),
			Public: true,
		})
	}
	return agents
}

// Seed registers the default agents plus any extras from configuration, but
// only when the registry is empty. Re-seeding on every start would clobber
// operator edits.
func (s *Service) Seed(ctx context.Context, extra []models.Agent) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count agents: %w", err)
	}
	if count > 0 {
		return nil
	}

	seeded := 0
	for _, a := range append(defaultAgents(), extra...) {
		agent := a
		if _, err := s.Register(ctx, &agent); err != nil {
			slog.Warn("Failed to seed agent", "agent", a.Platform+"/"+a.Name, "error", err)
			continue
		}
		seeded++
	}
	slog.Info("Seeded agent registry", "count", seeded)
	return nil
}
