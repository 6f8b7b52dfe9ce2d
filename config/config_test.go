package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file::memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Server.IdempotencyTTL)
	assert.Equal(t, 3, cfg.Capacity.DefaultLimit)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.Sync.MaxDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.SettleDelay)
	assert.Equal(t, "http://localhost:8080", cfg.Sync.BaseURL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "warn", cfg.Database.LogLevel)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_ReadsValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  admin_token: s3cret
database:
  driver: Postgres
  dsn: "host=localhost dbname=timeoff"
capacity:
  default_limit: 4
sync:
  base_delay_ms: 100
  max_delay_ms: 400
push:
  vapid_public_key: pub
  vapid_private_key: priv
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Capacity.DefaultLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.BaseDelay)
	assert.True(t, cfg.Push.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TIMEOFF_DATABASE_DSN", "file:override.db")
	t.Setenv("TIMEOFF_ADMIN_TOKEN", "from-env")
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file:original.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:override.db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: oracle
  dsn: "x"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "Driver")
}

func TestValidate_DelayOrdering(t *testing.T) {
	cfg := Default()
	cfg.Sync.BaseDelayMillis = 500
	cfg.Sync.MaxDelayMillis = 100

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxDelayMillis")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Capacity.DefaultLimit)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.SettleDelay)
	assert.False(t, cfg.Push.Enabled())
}
