package repo

import (
	"context"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// ActionRepo persists pending actions and their state transitions
type ActionRepo interface {
	// Save inserts a newly staged action
	Save(ctx context.Context, action *domain.PendingAction) error

	// Transition stores the action's new state only if the stored state is
	// still from. Returns domain.ErrActionNotPending when another event got
	// there first and domain.ErrActionNotFound when the action is missing.
	Transition(ctx context.Context, action *domain.PendingAction, from domain.ActionState) error

	// Get gets an action by ID, returns domain.ErrActionNotFound when missing
	Get(ctx context.Context, id string) (*domain.PendingAction, error)

	// ListBySession lists actions of a session, filtered by state unless state is empty
	ListBySession(ctx context.Context, sessionID int64, state domain.ActionState) ([]*domain.PendingAction, error)

	// ListRecent lists the most recent actions across sessions
	ListRecent(ctx context.Context, limit int) ([]*domain.PendingAction, error)
}
