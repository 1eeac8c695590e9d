package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSecrets_FromFile(t *testing.T) {
	path := writeFile(t, ".env", `
# conductor secrets
TELEGRAM_BOT_TOKEN=123:abc
TELEGRAM_USER_ID=42
ANTHROPIC_API_KEY="sk-ant-test"
`)
	s, err := LoadSecrets(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", s.TelegramBotToken)
	assert.Equal(t, int64(42), s.TelegramUserID)
	assert.Equal(t, "sk-ant-test", s.AnthropicAPIKey)
	assert.Equal(t, "info", s.LogLevel)
	assert.Empty(t, s.Validate())
}

func TestLoadSecrets_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, ".env", "TELEGRAM_BOT_TOKEN=from-file\n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	s, err := LoadSecrets(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.TelegramBotToken)
}

func TestLoadSecrets_MissingFileIsNotFatal(t *testing.T) {
	s, err := LoadSecrets(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	missing := s.Validate()
	assert.Contains(t, missing, "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, missing, "TELEGRAM_USER_ID")
	assert.Contains(t, missing, "ANTHROPIC_API_KEY")
}

func TestLoadSecrets_BadUserID(t *testing.T) {
	path := writeFile(t, ".env", "TELEGRAM_USER_ID=not-a-number\n")
	_, err := LoadSecrets(path)
	assert.Error(t, err)
}

func TestLoadPreferences_Defaults(t *testing.T) {
	prefs, err := LoadPreferences(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 5, prefs.Sessions.MaxConcurrent)
	assert.Equal(t, "pro", prefs.Tokens.PlanTier)
	assert.Equal(t, 500, prefs.Monitor.PollIntervalMs)
	assert.Equal(t, 5, prefs.Notifications.BatchWindowS)
	assert.Equal(t, 10, prefs.AI.TimeoutSeconds)
	assert.True(t, prefs.AutoResponder.Enabled)
}

func TestLoadPreferences_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
[sessions]
max_concurrent = 3

[tokens]
plan_tier = "max_5x"

[notifications.quiet_hours]
enabled = true
start = "23:00"
end = "07:00"

[[auto_responder.default_rules]]
pattern = "Overwrite?"
response = "n"
match_type = "contains"
`)
	prefs, err := LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 3, prefs.Sessions.MaxConcurrent)
	assert.Equal(t, "max_5x", prefs.Tokens.PlanTier)
	assert.True(t, prefs.Notifications.QuietHours.Enabled)
	assert.Equal(t, "23:00", prefs.Notifications.QuietHours.Start)
	require.Len(t, prefs.AutoResponder.DefaultRules, 1)
	assert.Equal(t, "Overwrite?", prefs.AutoResponder.DefaultRules[0].Pattern)
	// Untouched sections keep defaults.
	assert.Equal(t, 500, prefs.Monitor.PollIntervalMs)
}
