package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// SourceTool marks actions created from a held-back tool call
const SourceTool = "tool"

// Parameter keys of tool-call actions
const (
	ParamTool      = "tool"
	ParamArguments = "arguments"
)

// ActionUsecase stages extracted actions and moves them through their
// confirmation states
type ActionUsecase struct {
	actionRepo          repo.ActionRepo
	requireConfirmation bool
	logger              *slog.Logger
	now                 func() time.Time
	newID               func() string
}

// NewActionUsecase creates a new action usecase.
// With requireConfirmation off, extracted actions are not staged at all;
// they are never executed without confirmation either way.
func NewActionUsecase(actionRepo repo.ActionRepo, requireConfirmation bool, logger *slog.Logger) *ActionUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionUsecase{
		actionRepo:          actionRepo,
		requireConfirmation: requireConfirmation,
		logger:              logger,
		now:                 time.Now,
		newID:               shortID,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Stage stores extracted actions as pending
func (uc *ActionUsecase) Stage(ctx context.Context, sessionID int64, actions []*domain.PendingAction) ([]*domain.PendingAction, error) {
	if !uc.requireConfirmation || len(actions) == 0 {
		return nil, nil
	}
	return uc.save(ctx, sessionID, actions)
}

// StageDeferred stores held-back tool calls as pending actions.
// These are always staged since the call did not happen.
func (uc *ActionUsecase) StageDeferred(ctx context.Context, sessionID int64, calls []repo.DeferredCall) ([]*domain.PendingAction, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	actions := make([]*domain.PendingAction, 0, len(calls))
	for _, call := range calls {
		kind, ok := domain.ParseActionKind(call.Server)
		if !ok {
			kind = domain.ActionTask
		}
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		actions = append(actions, &domain.PendingAction{
			Kind: kind,
			Parameters: map[string]any{
				ParamTool:      call.Tool,
				ParamArguments: args,
			},
			Context:    map[string]string{ActionContextSource: SourceTool},
			Confidence: 1,
			State:      domain.ActionPending,
		})
	}
	return uc.save(ctx, sessionID, actions)
}

func (uc *ActionUsecase) save(ctx context.Context, sessionID int64, actions []*domain.PendingAction) ([]*domain.PendingAction, error) {
	now := uc.now()
	staged := make([]*domain.PendingAction, 0, len(actions))
	for _, a := range actions {
		a.ID = uc.newID()
		a.SessionID = sessionID
		a.State = domain.ActionPending
		a.CreatedAt = now
		if err := uc.actionRepo.Save(ctx, a); err != nil {
			return staged, fmt.Errorf("stage action: %w", err)
		}
		uc.logger.Info("action staged", "action_id", a.ID, "kind", a.Kind, "confidence", a.Confidence)
		staged = append(staged, a)
	}
	return staged, nil
}

// Get gets an action by ID
func (uc *ActionUsecase) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	return uc.actionRepo.Get(ctx, strings.TrimSpace(id))
}

// Pending lists the pending actions of a session
func (uc *ActionUsecase) Pending(ctx context.Context, sessionID int64) ([]*domain.PendingAction, error) {
	return uc.actionRepo.ListBySession(ctx, sessionID, domain.ActionPending)
}

// Recent lists recent actions across sessions
func (uc *ActionUsecase) Recent(ctx context.Context, limit int) ([]*domain.PendingAction, error) {
	return uc.actionRepo.ListRecent(ctx, limit)
}

// Confirm resolves a pending action as confirmed by an explicit user event
func (uc *ActionUsecase) Confirm(ctx context.Context, id string, c *domain.Confirmation) (*domain.PendingAction, error) {
	return uc.resolve(ctx, id, c, (*domain.PendingAction).Confirm)
}

// Reject resolves a pending action as rejected by an explicit user event
func (uc *ActionUsecase) Reject(ctx context.Context, id string, c *domain.Confirmation) (*domain.PendingAction, error) {
	return uc.resolve(ctx, id, c, (*domain.PendingAction).Reject)
}

func (uc *ActionUsecase) resolve(ctx context.Context, id string, c *domain.Confirmation, transition func(*domain.PendingAction, *domain.Confirmation) error) (*domain.PendingAction, error) {
	a, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c != nil && c.At.IsZero() {
		c.At = uc.now()
	}
	from := a.State
	if err := transition(a, c); err != nil {
		return a, err
	}
	if err := uc.actionRepo.Transition(ctx, a, from); err != nil {
		if IsTransitionError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("save action: %w", err)
	}
	uc.logger.Info("action resolved", "action_id", a.ID, "state", a.State, "by", a.ResolvedBy)
	return a, nil
}

// MarkExecuted records that a confirmed action was carried out
func (uc *ActionUsecase) MarkExecuted(ctx context.Context, a *domain.PendingAction) error {
	stored, err := uc.actionRepo.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	// Check the persisted state, not the caller's copy
	if err := stored.MarkExecuted(uc.now()); err != nil {
		return err
	}
	if err := uc.actionRepo.Transition(ctx, stored, domain.ActionConfirmed); err != nil {
		if IsTransitionError(err) {
			return err
		}
		return fmt.Errorf("save action: %w", err)
	}
	*a = *stored
	return nil
}

// Reopen puts a confirmed action whose execution failed back to pending
func (uc *ActionUsecase) Reopen(ctx context.Context, a *domain.PendingAction) error {
	stored, err := uc.actionRepo.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	if err := stored.Reopen(); err != nil {
		return err
	}
	if err := uc.actionRepo.Transition(ctx, stored, domain.ActionConfirmed); err != nil {
		if IsTransitionError(err) {
			return err
		}
		return fmt.Errorf("save action: %w", err)
	}
	uc.logger.Info("action reopened", "action_id", a.ID)
	*a = *stored
	return nil
}

// IsTransitionError reports whether err is an invalid state transition
func IsTransitionError(err error) bool {
	return errors.Is(err, domain.ErrActionNotPending) ||
		errors.Is(err, domain.ErrActionNotConfirmed) ||
		errors.Is(err, domain.ErrActionNotFound) ||
		errors.Is(err, domain.ErrNoConfirmation)
}

// ToolCall returns the tool name and arguments of an action created from a held-back call
func ToolCall(a *domain.PendingAction) (string, map[string]any, bool) {
	if a.Context[ActionContextSource] != SourceTool {
		return "", nil, false
	}
	tool := a.StringParam(ParamTool)
	if tool == "" {
		return "", nil, false
	}
	args, _ := a.Parameters[ParamArguments].(map[string]any)
	return tool, args, true
}
