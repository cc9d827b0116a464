package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quackhq/quack/pkg/models"
)

// seedFile is the YAML shape of an agent seed file.
type seedFile struct {
	Agents []seedAgent `yaml:"agents"`
}

type seedAgent struct {
	Platform         string   `yaml:"platform"`
	Name             string   `yaml:"name"`
	DisplayName      string   `yaml:"displayName"`
	Capabilities     []string `yaml:"capabilities"`
	Category         string   `yaml:"category"`
	RequiresApproval bool     `yaml:"requiresApproval"`
	NotifyMode       string   `yaml:"notifyMode"`
	WebhookURL       string   `yaml:"webhookUrl"`
	WebhookSecret    string   `yaml:"webhookSecret"`
	PlatformURL      string   `yaml:"platformUrl"`
	NotifyPrompt     string   `yaml:"notifyPrompt"`
	Public           *bool    `yaml:"public"`
}

// LoadAgentSeed parses a YAML agent seed file. An empty path returns no
// agents; a missing file is an error because the operator asked for it.
func LoadAgentSeed(path string) ([]models.Agent, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse agent seed file %s: %w", path, err)
	}

	agents := make([]models.Agent, 0, len(f.Agents))
	for i, a := range f.Agents {
		if a.Platform == "" || a.Name == "" {
			return nil, fmt.Errorf("agent seed entry %d: platform and name are required", i)
		}
		category := models.AgentCategory(a.Category)
		if category == "" {
			category = models.CategoryAutonomous
		}
		notifyMode := models.NotifyMode(a.NotifyMode)
		if notifyMode == "" {
			notifyMode = models.NotifyPolling
		}
		public := true
		if a.Public != nil {
			public = *a.Public
		}
		agents = append(agents, models.Agent{
			Platform:         a.Platform,
			Name:             a.Name,
			DisplayName:      a.DisplayName,
			Capabilities:     a.Capabilities,
			Category:         category,
			RequiresApproval: a.RequiresApproval,
			NotifyMode:       notifyMode,
			WebhookURL:       a.WebhookURL,
			WebhookSecret:    a.WebhookSecret,
			PlatformURL:      a.PlatformURL,
			NotifyPrompt:     a.NotifyPrompt,
			Public:           public,
		})
	}
	return agents, nil
}
