package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8089", cfg.App.Addr)
	assert.Equal(t, 403, cfg.App.DenialStatus)
	assert.Equal(t, 15*time.Minute, cfg.Jwt.AccessTTL)
	assert.Equal(t, "memory", cfg.Throttle.Storage)
	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_file_then_env(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  addr: 127.0.0.1:9000
  dev: true
pgsql:
  host: db.internal
  port: 6543
throttle:
  limit: 5
  ttl: 30s
`), 0o600))

	t.Setenv("GNEST_PGSQL_HOST", "db.override")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.App.Addr)
	assert.True(t, cfg.App.Dev)
	assert.Equal(t, "db.override", cfg.PgSQL.Host)
	assert.Equal(t, 6543, cfg.PgSQL.Port)
	assert.Equal(t, 5, cfg.Throttle.Limit)
	assert.Equal(t, 30*time.Second, cfg.Throttle.TTL)
}

func TestLoadConfig_rejects_invalid_values(t *testing.T) {
	t.Setenv("GNEST_THROTTLE_STORAGE", "etcd")
	t.Setenv("GNEST_APP_DENIALSTATUS", "200")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle.storage")
	assert.Contains(t, err.Error(), "app.denialstatus")
}

func TestLoadConfig_missing_file(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
