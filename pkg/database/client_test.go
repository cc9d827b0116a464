package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_MigratesSchema(t *testing.T) {
	client, err := NewClient(context.Background(), Config{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	defer client.Close()

	// All core tables must exist after migration.
	for _, table := range []string{
		"audit_entries", "archived_threads", "agents",
		"api_keys", "recorder_sessions", "journal_entries",
	} {
		var name string
		err := client.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestHealth(t *testing.T) {
	client, err := NewClient(context.Background(), Config{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	defer client.Close()

	health, err := Health(context.Background(), client.DB())
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])
}
