package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err, "explicit missing file is fatal")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8008", cfg.HomeserverURL)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.SyncTimeout)
	assert.Equal(t, "tokens.csv", cfg.TokensPath)
}

func TestLoadExplicitFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[homeserver]
url = "https://matrix.example.com"

[master]
workers = 4

[run]
sync_timeout = "45s"
spawn_rate = 10.0
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://matrix.example.com", cfg.HomeserverURL)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 45*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 10.0, cfg.SpawnRate)
	// Untouched keys keep their defaults.
	assert.Equal(t, "users.csv", cfg.RosterPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[master]
workers = 0
`), 0o600))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
}
