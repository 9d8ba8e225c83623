package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesAndReadsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, 5*time.Minute, cfg.DedupTTL)

	// The default file was materialized.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: \":9999\"\nmax_message_bytes: 128\ntyping_ttl: 3s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 128, cfg.MaxMessageBytes)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
	// Untouched keys keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
}

func TestUpdateFromOverridesNonZero(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7777", RedisAddr: "localhost:6379"})

	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "bonfire.db", cfg.DatabasePath)
}
