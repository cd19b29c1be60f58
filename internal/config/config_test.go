package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("RELITRACK_DATABASE__URL", "postgres://localhost:5432/relitrack")
	t.Setenv("RELITRACK_JWT__SECRET_KEY", "test-secret")
	t.Setenv("RELITRACK_SERVER__PORT", "8181")
	t.Setenv("RELITRACK_JWT__ACCESS_TOKEN_DURATION", "30m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/relitrack", cfg.Database.URL)
	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenDuration)

	// Defaults survive partial overrides.
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, "0 6 * * *", cfg.Notifications.Reminders.Schedule)
	assert.False(t, cfg.Lifecycle.RCAOverdueAfterDeadline)
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("RELITRACK_JWT__SECRET_KEY", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
database:
  url: postgres://db:5432/relitrack
log:
  level: debug
  format: text
lifecycle:
  rca_overdue_after_deadline: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Lifecycle.RCAOverdueAfterDeadline)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
	assert.Contains(t, err.Error(), "jwt.secret_key is required")
}
