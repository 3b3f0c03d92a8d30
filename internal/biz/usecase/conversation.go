package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// Fallback replies for an empty model answer
const (
	EmptyTextReply  = "I understand. How can I help?"
	EmptyImageReply = "Analysis complete."
)

// ConversationUsecase handles conversation logic (aggregate)
type ConversationUsecase struct {
	sessionUC  *SessionUsecase
	actionUC   *ActionUsecase
	learningUC *LearningUsecase
	extractor  *ActionExtractor
	prompts    *PromptBuilder
	llmRepo    repo.LLMRepo
	logger     *slog.Logger
}

// NewConversationUsecase creates a new conversation usecase
func NewConversationUsecase(
	sessionUC *SessionUsecase,
	actionUC *ActionUsecase,
	learningUC *LearningUsecase,
	extractor *ActionExtractor,
	prompts *PromptBuilder,
	llmRepo repo.LLMRepo,
	logger *slog.Logger,
) *ConversationUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationUsecase{
		sessionUC:  sessionUC,
		actionUC:   actionUC,
		learningUC: learningUC,
		extractor:  extractor,
		prompts:    prompts,
		llmRepo:    llmRepo,
		logger:     logger,
	}
}

// TurnRequest represents one inbound user turn
type TurnRequest struct {
	UserID   int64
	UserName string
	Text     string

	// Photo turns
	Image          []byte
	ImageMediaType string
	Caption        string
}

// TurnResult is the outcome of a turn
type TurnResult struct {
	Session    *domain.Session
	Reply      string
	Actions    []*domain.PendingAction // Staged for confirmation
	Completion *repo.Completion
}

// HandleText runs a text turn: store, ask the model with history, store the reply, stage actions
func (uc *ConversationUsecase) HandleText(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	return uc.runTurn(ctx, req, req.Text, req.Text, false)
}

// HandleCalendar answers the canned upcoming-events query through the calendar tools
func (uc *ConversationUsecase) HandleCalendar(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	query := uc.prompts.CalendarQuery()
	return uc.runTurn(ctx, req, query, query, false)
}

// HandleImage runs a photo turn. The stored user message is a placeholder,
// and implicit extraction runs on the analysis.
func (uc *ConversationUsecase) HandleImage(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	caption := strings.TrimSpace(req.Caption)
	if caption == "" {
		caption = DefaultCaption
	}
	return uc.runTurn(ctx, req, uc.prompts.ImagePrompt(caption), domain.ImagePlaceholder(caption), true)
}

func (uc *ConversationUsecase) runTurn(ctx context.Context, req *TurnRequest, prompt, stored string, isImage bool) (*TurnResult, error) {
	decision, err := uc.sessionUC.ResolveSession(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	session := decision.Session

	if err := uc.sessionUC.UpdateContext(ctx, session, map[string]string{domain.ContextUserName: req.UserName}); err != nil {
		uc.logger.Warn("failed to update session context", "session_id", session.ID, "error", err)
	}

	history, err := uc.sessionUC.History(ctx, session.ID, 0)
	if err != nil {
		return nil, err
	}

	if _, err := uc.sessionUC.AppendMessage(ctx, session, domain.RoleUser, stored); err != nil {
		return nil, err
	}

	llmReq := &repo.CompletionRequest{
		SystemPrompt: uc.systemPrompt(ctx, session),
		History:      history,
		Text:         prompt,
	}
	if isImage {
		llmReq.Image = req.Image
		llmReq.ImageMediaType = req.ImageMediaType
	}

	uc.logger.Debug("calling model", "session_id", session.ID, "history", len(history), "image", isImage)
	comp, err := uc.llmRepo.Complete(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	reply := strings.TrimSpace(comp.Text)
	if reply == "" {
		reply = EmptyTextReply
		if isImage {
			reply = EmptyImageReply
		}
	}

	if _, err := uc.sessionUC.AppendMessage(ctx, session, domain.RoleAssistant, reply); err != nil {
		return nil, err
	}

	result := &TurnResult{Session: session, Reply: reply, Completion: comp}
	result.Actions = uc.stageActions(ctx, session, reply, comp.Deferred, isImage)
	return result, nil
}

// stageActions stores what the reply proposes. Failures are logged, the reply already went through.
func (uc *ConversationUsecase) stageActions(ctx context.Context, session *domain.Session, reply string, deferred []repo.DeferredCall, implicit bool) []*domain.PendingAction {
	var staged []*domain.PendingAction

	extracted := uc.extractor.Extract(reply, implicit)
	if len(extracted) > 0 {
		actions, err := uc.actionUC.Stage(ctx, session.ID, extracted)
		if err != nil {
			uc.logger.Error("failed to stage actions", "session_id", session.ID, "error", err)
		}
		staged = append(staged, actions...)
	}

	if len(deferred) > 0 {
		actions, err := uc.actionUC.StageDeferred(ctx, session.ID, deferred)
		if err != nil {
			uc.logger.Error("failed to stage deferred tool calls", "session_id", session.ID, "error", err)
		}
		staged = append(staged, actions...)
	}

	return staged
}

// ExecutionResult is the outcome of carrying out a confirmed action
type ExecutionResult struct {
	Action      *domain.PendingAction
	Reply       string
	Suggestions []*domain.UserPattern // Patterns that just reached the learning threshold
}

// ConfirmAndExecute confirms an action from a user event, then carries it out.
// Held-back tool calls are replayed directly; other actions are handed back to
// the model with write tools enabled. When execution fails the action is
// returned to pending.
func (uc *ConversationUsecase) ConfirmAndExecute(ctx context.Context, actionID string, c *domain.Confirmation) (*ExecutionResult, error) {
	action, err := uc.actionUC.Confirm(ctx, actionID, c)
	if err != nil {
		return nil, err
	}

	reply, err := uc.execute(ctx, action, c.UserID)
	if err != nil {
		// Nothing was carried out, so the user decides again
		if rerr := uc.actionUC.Reopen(ctx, action); rerr != nil {
			uc.logger.Error("failed to reopen action", "action_id", action.ID, "error", rerr)
		}
		return &ExecutionResult{Action: action}, fmt.Errorf("execute action %s: %w", action.ID, err)
	}

	if err := uc.actionUC.MarkExecuted(ctx, action); err != nil {
		return nil, err
	}

	result := &ExecutionResult{Action: action, Reply: reply}
	if uc.learningUC != nil {
		suggestions, err := uc.learningUC.ObserveConfirmed(ctx, c.UserID, action)
		if err != nil {
			uc.logger.Warn("failed to track patterns", "action_id", action.ID, "error", err)
		}
		result.Suggestions = suggestions
	}
	return result, nil
}

func (uc *ConversationUsecase) execute(ctx context.Context, action *domain.PendingAction, userID int64) (string, error) {
	if tool, args, ok := ToolCall(action); ok {
		out, err := uc.llmRepo.CallTool(ctx, tool, args)
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("✅ Done: %s\n\n%s", tool, strings.TrimSpace(out))
		uc.recordExecution(ctx, action, reply)
		return reply, nil
	}

	session, err := uc.sessionUC.Get(ctx, action.SessionID)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		session = &domain.Session{ID: action.SessionID, UserID: userID}
	}
	history, err := uc.sessionUC.History(ctx, action.SessionID, 0)
	if err != nil {
		return "", err
	}

	comp, err := uc.llmRepo.Complete(ctx, &repo.CompletionRequest{
		SystemPrompt: uc.systemPrompt(ctx, session),
		History:      history,
		Text:         ConfirmedActionTurn(action),
		AllowWrites:  true,
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(comp.Text)
	if reply == "" {
		reply = EmptyTextReply
	}
	uc.recordExecution(ctx, action, reply)
	return reply, nil
}

func (uc *ConversationUsecase) recordExecution(ctx context.Context, action *domain.PendingAction, reply string) {
	session, err := uc.sessionUC.Get(ctx, action.SessionID)
	if err != nil || session == nil {
		return
	}
	if _, err := uc.sessionUC.AppendMessage(ctx, session, domain.RoleAssistant, reply); err != nil {
		uc.logger.Warn("failed to record execution", "action_id", action.ID, "error", err)
	}
}

// Reject rejects an action from a user event
func (uc *ConversationUsecase) Reject(ctx context.Context, actionID string, c *domain.Confirmation) (*domain.PendingAction, error) {
	return uc.actionUC.Reject(ctx, actionID, c)
}

func (uc *ConversationUsecase) systemPrompt(ctx context.Context, session *domain.Session) string {
	var defaults []*domain.UserPattern
	if uc.learningUC != nil {
		var err error
		defaults, err = uc.learningUC.Defaults(ctx, session.UserID)
		if err != nil {
			uc.logger.Warn("failed to load defaults", "error", err)
		}
	}
	return uc.prompts.SystemPrompt(session, defaults, uc.llmRepo.Integrations())
}
