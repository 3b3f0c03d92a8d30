package data

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/infra/telegram"
	"github.com/fede-assistant/fede/internal/metrics"
)

// Repositories contains all repositories
type Repositories struct {
	Session repo.SessionRepo
	Message repo.MessageRepo
	Action  repo.ActionRepo
	Pattern repo.PatternRepo
	LLM     repo.LLMRepo
	Chat    repo.ChatRepo
}

// NewStoreRepositories creates the SQLite-backed repositories only
func NewStoreRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Session: NewSessionRepo(db),
		Message: NewMessageRepo(db),
		Action:  NewActionRepo(db),
		Pattern: NewPatternRepo(db),
	}
}

// NewRepositories creates all repositories. tools may be nil when no MCP
// server is configured.
func NewRepositories(
	db *sql.DB,
	llm Completer,
	tools ToolProvider,
	telegramClient *telegram.Client,
	observer *metrics.Observer,
	llmTimeout time.Duration,
	logger *slog.Logger,
) *Repositories {
	repos := NewStoreRepositories(db)
	repos.LLM = NewLLMRepo(llm, tools, observer, llmTimeout, logger)
	if telegramClient != nil {
		repos.Chat = NewTelegramRepo(telegramClient)
	}
	return repos
}
