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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: secret
database:
  url: postgres://localhost/moderation
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Assignment.SkipCooldownPulls)
	assert.Equal(t, 4*time.Hour, cfg.WarningThreshold())
	assert.Equal(t, 5*time.Second, cfg.StatsCacheTTL())
	assert.Equal(t, 3, cfg.Notifications.MaxAttempts)
	assert.False(t, cfg.Sweeper.Enabled)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("MODERATION_JWT_SECRET", "from-env")
	t.Setenv("MODERATION_BOT_TOKEN", "bot-token")
	path := writeConfig(t, `
auth:
  jwt_secret: ${MODERATION_JWT_SECRET}
sla:
  warning_threshold_hours: 2
  hours_by_priority:
    urgent: 1
notifications:
  telegram:
    enabled: true
    bot_token: ${MODERATION_BOT_TOKEN}
    chat_ids:
      42: 1001
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "bot-token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, int64(1001), cfg.Notifications.Telegram.ChatIDs[42])
	assert.Equal(t, 2*time.Hour, cfg.WarningThreshold())
	assert.Equal(t, 1, cfg.SLA.HoursByPriority["urgent"])
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \":9000\"\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
