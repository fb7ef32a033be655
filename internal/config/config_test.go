package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehandhq/stagehand/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultCoalesceWindowSeconds, cfg.Coalesce.WindowSeconds)
	assert.Equal(t, config.DefaultTurnTimeoutSeconds, cfg.Coalesce.TurnTimeoutSeconds)
	assert.Equal(t, config.DefaultSweepIntervalSeconds, cfg.Coalesce.SweepSeconds)
	assert.Equal(t, config.DefaultPGDatabase, cfg.Postgres.Database)
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[auth]
jwt_secret = "shh"

[postgres]
host = "db.internal"
password = "pw"

[dialogue]
base_url = "http://llm.internal/v1"
model = "local-8b"

[coalesce]
window_seconds = 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "shh", cfg.Auth.JWTSecret)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "pw", cfg.Postgres.Password)
	// Unset keys keep their defaults.
	assert.Equal(t, config.DefaultPGPort, cfg.Postgres.Port)
	assert.Equal(t, "local-8b", cfg.Dialogue.Model)
	assert.Equal(t, 7, cfg.Coalesce.WindowSeconds)
	assert.Equal(t, config.DefaultSweepIntervalSeconds, cfg.Coalesce.SweepSeconds)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[coalesce]
window_seconds = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()
	dsn := config.PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}.DSN()
	assert.Equal(t, "postgres://u:p@db:5433/d?sslmode=disable", dsn)
}
