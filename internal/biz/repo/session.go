package repo

import (
	"context"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// SessionRepo is the session repository interface
// Responsible for session persistence (SQLite)
type SessionRepo interface {
	// GetActive gets the active session of a user, nil when there is none
	GetActive(ctx context.Context, userID int64) (*domain.Session, error)

	// Get gets a session by ID, nil when it does not exist
	Get(ctx context.Context, id int64) (*domain.Session, error)

	// Create inserts a new session and assigns its ID
	Create(ctx context.Context, session *domain.Session) error

	// Save updates activity, state and context of an existing session
	Save(ctx context.Context, session *domain.Session) error

	// List lists the most recently active sessions
	List(ctx context.Context, limit int) ([]*domain.Session, error)
}
