package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fede-assistant/fede/internal/biz/usecase"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Claude.Model)
	assert.Equal(t, 4096, cfg.Claude.MaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.Claude.Timeout)
	assert.Equal(t, 8, cfg.Claude.MaxToolRounds)
	assert.Equal(t, "./data/fede.db", cfg.Session.DBPath)
	assert.Equal(t, 20, cfg.Session.HistoryLimit)
	assert.Equal(t, 0, cfg.Session.TimeoutHours)
	assert.True(t, cfg.Actions.RequireConfirmation)
	assert.True(t, cfg.Actions.LearningEnabled)
	assert.Equal(t, 3, cfg.Actions.LearningThreshold)
	assert.True(t, cfg.MCP.CalendarEnabled)
	assert.True(t, cfg.MCP.GmailEnabled)
	assert.False(t, cfg.MCP.WhatsAppEnabled)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Empty(t, cfg.StatusAddr)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_USER_ID", "424242")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CLAUDE_TIMEOUT", "90s")
	t.Setenv("SESSION_TIMEOUT_HOURS", "6")
	t.Setenv("REQUIRE_EXPLICIT_CONFIRMATION", "false")
	t.Setenv("MCP_WHATSAPP_ARGS", "run --directory /opt/wa main.py")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, int64(424242), cfg.Telegram.UserID)
	assert.Equal(t, 90*time.Second, cfg.Claude.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Session.ToSessionConfig().IdleTimeout)
	assert.False(t, cfg.Actions.RequireConfirmation)
	assert.Equal(t, []string{"run", "--directory", "/opt/wa", "main.py"}, cfg.MCP.WhatsAppArgs)
	assert.True(t, cfg.LogOptions().Debug)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HISTORY_LIMIT=12\n"), 0o644))
	t.Setenv("HISTORY_LIMIT", "")
	os.Unsetenv("HISTORY_LIMIT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Session.HistoryLimit)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "TELEGRAM_USER_ID")
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestToPromptConfig(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, usecase.DefaultPromptConfig, cfg.ToPromptConfig())

	cfg.Prompts = DefaultPromptsConfig()
	cfg.Prompts.Commands.CalendarQuery = "What's next?"
	pc := cfg.ToPromptConfig()
	assert.Equal(t, "What's next?", pc.CalendarQuery)
	assert.Equal(t, usecase.DefaultPromptConfig.SystemPrompt, pc.SystemPrompt)
}

func TestLoadPromptsConfig_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assistant:
  system_prompt: "You are a terse assistant."
`), 0o644))

	cfg, err := LoadPromptsConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "You are a terse assistant.", cfg.Assistant.SystemPrompt)
	assert.Equal(t, usecase.DefaultPromptConfig.ActionInstructions, cfg.Assistant.ActionInstructions)
	assert.Equal(t, usecase.DefaultPromptConfig.CalendarQuery, cfg.Commands.CalendarQuery)

	_, err = LoadPromptsConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMCPServers(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	cfg.MCP.GoogleCredentials = "/secrets/gcp-oauth.keys.json"

	servers, err := cfg.MCPServers()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "calendar", servers[0].Name)
	assert.Equal(t, []string{"-y", CalendarServerPackage}, servers[0].Args)
	assert.Equal(t, "/secrets/gcp-oauth.keys.json", servers[0].Env["GOOGLE_OAUTH_CREDENTIALS"])
	assert.Equal(t, "gmail", servers[1].Name)

	cfg.MCP.WhatsAppEnabled = true
	_, err = cfg.MCPServers()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "MCP_WHATSAPP_COMMAND", cfgErr.Field)

	cfg.MCP.WhatsAppCommand = "uv"
	servers, err = cfg.MCPServers()
	require.NoError(t, err)
	assert.Len(t, servers, 3)
}

func TestMCPServers_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: gmail
    disabled: true
  - name: whatsapp
    command: /opt/whatsapp-mcp/run.sh
    write_tools: [send_message]
`), 0o644))

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	cfg.MCP.ConfigPath = path

	servers, err := cfg.MCPServers()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "calendar", servers[0].Name)
	assert.Equal(t, "whatsapp", servers[1].Name)
	assert.Equal(t, []string{"send_message"}, servers[1].WriteTools)
}
