package repo

import (
	"context"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// PatternRepo stores learned user patterns
type PatternRepo interface {
	// Track increments the occurrence count of a value and returns the updated pattern
	Track(ctx context.Context, userID int64, key, value string, at time.Time) (*domain.UserPattern, error)

	// Frequent lists values of a key seen at least minCount times, most frequent first
	Frequent(ctx context.Context, userID int64, key string, minCount int) ([]*domain.UserPattern, error)

	// SetDefault marks a pattern as the user's confirmed default for its key,
	// returns domain.ErrPatternNotFound when it does not belong to the user
	SetDefault(ctx context.Context, userID, patternID int64) (*domain.UserPattern, error)

	// Defaults lists all confirmed defaults of a user
	Defaults(ctx context.Context, userID int64) ([]*domain.UserPattern, error)
}
