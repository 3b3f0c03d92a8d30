package biz

import (
	"log/slog"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/biz/usecase"
	"github.com/fede-assistant/fede/internal/logutil"
)

// Usecases contains all usecases
type Usecases struct {
	Session      *usecase.SessionUsecase
	Action       *usecase.ActionUsecase
	Learning     *usecase.LearningUsecase
	Conversation *usecase.ConversationUsecase
	Prompts      *usecase.PromptBuilder
}

// Options configure the usecases
type Options struct {
	Session             domain.SessionConfig
	Prompts             usecase.PromptConfig
	RequireConfirmation bool
	LearningEnabled     bool
	LearningThreshold   int
}

// Repos is the set of repositories the usecases need
type Repos struct {
	Session repo.SessionRepo
	Message repo.MessageRepo
	Action  repo.ActionRepo
	Pattern repo.PatternRepo
	LLM     repo.LLMRepo
}

// NewUsecases wires all usecases
func NewUsecases(r Repos, opts Options, logger *slog.Logger) *Usecases {
	if logger == nil {
		logger = slog.Default()
	}
	sessionUC := usecase.NewSessionUsecase(r.Session, r.Message, opts.Session, logutil.Component(logger, "session"))
	actionUC := usecase.NewActionUsecase(r.Action, opts.RequireConfirmation, logutil.Component(logger, "actions"))
	learningUC := usecase.NewLearningUsecase(r.Pattern, opts.LearningEnabled, opts.LearningThreshold, logutil.Component(logger, "learning"))
	extractor := usecase.NewActionExtractor(logutil.Component(logger, "extractor"))
	prompts := usecase.NewPromptBuilder(opts.Prompts)

	return &Usecases{
		Session:  sessionUC,
		Action:   actionUC,
		Learning: learningUC,
		Conversation: usecase.NewConversationUsecase(
			sessionUC, actionUC, learningUC, extractor, prompts, r.LLM,
			logutil.Component(logger, "conversation"),
		),
		Prompts: prompts,
	}
}
