package conf

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/usecase"
	"github.com/fede-assistant/fede/internal/logutil"
)

// Config represents application configuration
type Config struct {
	Telegram TelegramConfig
	Claude   ClaudeConfig
	Session  SessionConfig
	Actions  ActionsConfig
	MCP      MCPConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	// StatusAddr is the listen address of the status API, empty disables it
	StatusAddr string

	Log   LogConfig
	Debug bool
}

// TelegramConfig contains Telegram configuration
type TelegramConfig struct {
	BotToken string
	UserID   int64 // The only user the bot answers
}

// ClaudeConfig contains model configuration
type ClaudeConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	MaxToolRounds int
	Timeout       time.Duration
}

// SessionConfig contains session configuration
type SessionConfig struct {
	DBPath       string
	TimeoutHours int // 0 disables expiry
	HistoryLimit int
}

// ActionsConfig contains action staging and learning configuration
type ActionsConfig struct {
	RequireConfirmation bool
	LearningEnabled     bool
	LearningThreshold   int
}

// MCPConfig contains MCP server toggles
type MCPConfig struct {
	CalendarEnabled   bool
	GmailEnabled      bool
	WhatsAppEnabled   bool
	GoogleCredentials string
	WhatsAppCommand   string
	WhatsAppArgs      []string
	ConfigPath        string // Optional YAML overriding server definitions
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CLAUDE_MODEL", "claude-3-5-sonnet-20241022")
	v.SetDefault("CLAUDE_MAX_TOKENS", 4096)
	v.SetDefault("CLAUDE_BASE_URL", "https://api.anthropic.com/v1/")
	v.SetDefault("CLAUDE_TIMEOUT", 5*time.Minute)
	v.SetDefault("CLAUDE_MAX_TOOL_ROUNDS", 8)
	v.SetDefault("DATABASE_PATH", "./data/fede.db")
	v.SetDefault("SESSION_TIMEOUT_HOURS", 0)
	v.SetDefault("HISTORY_LIMIT", domain.DefaultHistoryLimit)
	v.SetDefault("REQUIRE_EXPLICIT_CONFIRMATION", true)
	v.SetDefault("ENABLE_LEARNING_MODE", true)
	v.SetDefault("LEARNING_THRESHOLD", usecase.DefaultLearningThreshold)
	v.SetDefault("MCP_CALENDAR_ENABLED", true)
	v.SetDefault("MCP_GMAIL_ENABLED", true)
	v.SetDefault("MCP_WHATSAPP_ENABLED", false)
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DEBUG", false)
}

// Load reads a .env file when present, then the environment
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, &ConfigError{Field: envFile, Message: err.Error()}
			}
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	prompts, err := LoadPromptsConfig(v.GetString("PROMPTS_CONFIG_PATH"))
	if err != nil {
		return nil, &ConfigError{Field: "PROMPTS_CONFIG_PATH", Message: err.Error()}
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
			UserID:   v.GetInt64("TELEGRAM_USER_ID"),
		},
		Claude: ClaudeConfig{
			APIKey:        v.GetString("ANTHROPIC_API_KEY"),
			BaseURL:       v.GetString("CLAUDE_BASE_URL"),
			Model:         v.GetString("CLAUDE_MODEL"),
			MaxTokens:     v.GetInt("CLAUDE_MAX_TOKENS"),
			MaxToolRounds: v.GetInt("CLAUDE_MAX_TOOL_ROUNDS"),
			Timeout:       v.GetDuration("CLAUDE_TIMEOUT"),
		},
		Session: SessionConfig{
			DBPath:       v.GetString("DATABASE_PATH"),
			TimeoutHours: v.GetInt("SESSION_TIMEOUT_HOURS"),
			HistoryLimit: v.GetInt("HISTORY_LIMIT"),
		},
		Actions: ActionsConfig{
			RequireConfirmation: v.GetBool("REQUIRE_EXPLICIT_CONFIRMATION"),
			LearningEnabled:     v.GetBool("ENABLE_LEARNING_MODE"),
			LearningThreshold:   v.GetInt("LEARNING_THRESHOLD"),
		},
		MCP: MCPConfig{
			CalendarEnabled:   v.GetBool("MCP_CALENDAR_ENABLED"),
			GmailEnabled:      v.GetBool("MCP_GMAIL_ENABLED"),
			WhatsAppEnabled:   v.GetBool("MCP_WHATSAPP_ENABLED"),
			GoogleCredentials: v.GetString("GOOGLE_OAUTH_CREDENTIALS"),
			WhatsAppCommand:   v.GetString("MCP_WHATSAPP_COMMAND"),
			WhatsAppArgs:      strings.Fields(v.GetString("MCP_WHATSAPP_ARGS")),
			ConfigPath:        v.GetString("MCP_CONFIG_PATH"),
		},
		Prompts:    prompts,
		StatusAddr: v.GetString("STATUS_ADDR"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Debug: v.GetBool("DEBUG"),
	}
	return cfg, nil
}

// ToSessionConfig converts to domain session configuration
func (c *SessionConfig) ToSessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		IdleTimeout:  time.Duration(c.TimeoutHours) * time.Hour,
		HistoryLimit: c.HistoryLimit,
	}
}

// ToPromptConfig converts to prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	if c.Prompts == nil {
		return usecase.DefaultPromptConfig
	}
	return usecase.PromptConfig{
		SystemPrompt:               c.Prompts.Assistant.SystemPrompt,
		ActionInstructions:         c.Prompts.Assistant.ActionInstructions,
		ConversationAnalysisPrompt: c.Prompts.Images.ConversationAnalysis,
		GeneralImagePrompt:         c.Prompts.Images.General,
		CalendarQuery:              c.Prompts.Commands.CalendarQuery,
	}
}

// LogOptions converts to logger options
func (c *Config) LogOptions() logutil.Options {
	return logutil.Options{Level: c.Log.Level, Format: c.Log.Format, Debug: c.Debug}
}

// Validate validates the configuration. Only the bot needs the
// credentials; the CLI's read-only commands validate nothing.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" {
		errs = append(errs, &ConfigError{Field: "TELEGRAM_BOT_TOKEN", Message: "required"})
	}
	if c.Telegram.UserID <= 0 {
		errs = append(errs, &ConfigError{Field: "TELEGRAM_USER_ID", Message: "required, must be a positive user id"})
	}
	if c.Claude.APIKey == "" {
		errs = append(errs, &ConfigError{Field: "ANTHROPIC_API_KEY", Message: "required"})
	}
	if c.Claude.MaxTokens <= 0 {
		errs = append(errs, &ConfigError{Field: "CLAUDE_MAX_TOKENS", Message: "must be positive"})
	}
	if c.Claude.MaxToolRounds <= 0 {
		errs = append(errs, &ConfigError{Field: "CLAUDE_MAX_TOOL_ROUNDS", Message: "must be positive"})
	}
	if c.Session.TimeoutHours < 0 {
		errs = append(errs, &ConfigError{Field: "SESSION_TIMEOUT_HOURS", Message: "must not be negative"})
	}
	if c.Session.HistoryLimit <= 0 {
		errs = append(errs, &ConfigError{Field: "HISTORY_LIMIT", Message: "must be positive"})
	}
	if c.Actions.LearningThreshold <= 0 {
		errs = append(errs, &ConfigError{Field: "LEARNING_THRESHOLD", Message: "must be positive"})
	}
	if c.Session.DBPath == "" {
		errs = append(errs, &ConfigError{Field: "DATABASE_PATH", Message: "required"})
	}
	return errors.Join(errs...)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
