// Package config assembles the relay's runtime configuration from the
// environment, with an optional YAML file seeding the agent registry.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is everything the process needs to start.
type Config struct {
	// HTTPPort is the listen port for the API server.
	HTTPPort string

	// DataDir holds the JSON snapshots, blob payloads, and (by default)
	// the SQLite database.
	DataDir string

	// DatabasePath is the SQLite file. Defaults to quack.db under DataDir.
	DatabasePath string

	// AuthDevBypass grants admin to every HTTP request. Development only.
	AuthDevBypass bool

	// BridgeSecret signs bridge connection tokens. BridgeDevBypass accepts
	// any token.
	BridgeSecret    string
	BridgeDevBypass bool

	// DispatchInterval is the dispatcher poll cadence.
	DispatchInterval time.Duration

	// AgentSeedFile optionally adds agents to the first-start seed.
	AgentSeedFile string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// Load reads the configuration from the environment.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnv("QUACK_HTTP_PORT", "8080"),
		DataDir:          getEnv("QUACK_DATA_DIR", "./data"),
		DatabasePath:     os.Getenv("QUACK_DB_PATH"),
		AuthDevBypass:    getBool("QUACK_AUTH_DEV_BYPASS"),
		BridgeSecret:     os.Getenv("QUACK_BRIDGE_SECRET"),
		BridgeDevBypass:  getBool("QUACK_BRIDGE_DEV_BYPASS"),
		DispatchInterval: getDuration("QUACK_DISPATCH_INTERVAL", 5*time.Second),
		AgentSeedFile:    os.Getenv("QUACK_AGENT_SEED_FILE"),
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "quack.db")
	}
	return cfg
}

// MailboxSnapshotPath is the mailbox JSON snapshot file.
func (c *Config) MailboxSnapshotPath() string {
	return filepath.Join(c.DataDir, "mailbox.json")
}

// WebhookSnapshotPath is the webhook subscription snapshot file.
func (c *Config) WebhookSnapshotPath() string {
	return filepath.Join(c.DataDir, "webhooks.json")
}

// SessionSnapshotPath is the conversation session snapshot file.
func (c *Config) SessionSnapshotPath() string {
	return filepath.Join(c.DataDir, "sessions.json")
}

// BlobDir holds the attachment index and payloads.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}
