package repo

import (
	"context"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// MessageRepo is the conversation history repository interface
// Messages are append-only within a session
type MessageRepo interface {
	// Append stores a message and assigns its ID
	Append(ctx context.Context, msg *domain.Message) error

	// Recent returns the last limit messages of a session in chronological order
	Recent(ctx context.Context, sessionID int64, limit int) ([]*domain.Message, error)

	// Count counts the messages of a session
	Count(ctx context.Context, sessionID int64) (int, error)
}
