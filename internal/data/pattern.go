package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// patternRepo implements the learned pattern repository
type patternRepo struct {
	db *sql.DB
}

// NewPatternRepo creates a new pattern repository
func NewPatternRepo(db *sql.DB) repo.PatternRepo {
	return &patternRepo{db: db}
}

const patternColumns = `id, user_id, pattern_key, pattern_value, count, last_seen, is_default`

// Track increments the count of a value
func (r *patternRepo) Track(ctx context.Context, userID int64, key, value string, at time.Time) (*domain.UserPattern, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_patterns (user_id, pattern_key, pattern_value, count, last_seen)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, pattern_key, pattern_value) DO UPDATE SET
			count = count + 1,
			last_seen = excluded.last_seen
	`, userID, key, value, at.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to track pattern: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+` FROM user_patterns WHERE user_id = ? AND pattern_key = ? AND pattern_value = ?
	`, userID, key, value)
	return scanPattern(row)
}

// Frequent lists frequent values of a key
func (r *patternRepo) Frequent(ctx context.Context, userID int64, key string, minCount int) ([]*domain.UserPattern, error) {
	return r.list(ctx, `
		SELECT `+patternColumns+` FROM user_patterns
		WHERE user_id = ? AND pattern_key = ? AND count >= ?
		ORDER BY count DESC, last_seen DESC
	`, userID, key, minCount)
}

// SetDefault marks a pattern as the default for its key, clearing any previous default
func (r *patternRepo) SetDefault(ctx context.Context, userID, patternID int64) (*domain.UserPattern, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM user_patterns WHERE id = ? AND user_id = ?`, patternID, userID)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPatternNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE user_patterns SET is_default = 0 WHERE user_id = ? AND pattern_key = ?`, userID, p.Key); err != nil {
		return nil, fmt.Errorf("failed to clear default: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_patterns SET is_default = 1 WHERE id = ?`, patternID); err != nil {
		return nil, fmt.Errorf("failed to set default: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	p.IsDefault = true
	return p, nil
}

// Defaults lists the confirmed defaults of a user
func (r *patternRepo) Defaults(ctx context.Context, userID int64) ([]*domain.UserPattern, error) {
	return r.list(ctx, `
		SELECT `+patternColumns+` FROM user_patterns
		WHERE user_id = ? AND is_default = 1
		ORDER BY pattern_key
	`, userID)
}

func (r *patternRepo) list(ctx context.Context, query string, args ...any) ([]*domain.UserPattern, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*domain.UserPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func scanPattern(row rowScanner) (*domain.UserPattern, error) {
	var p domain.UserPattern
	var lastSeen int64
	var isDefault int

	err := row.Scan(&p.ID, &p.UserID, &p.Key, &p.Value, &p.Count, &lastSeen, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pattern: %w", err)
	}
	p.LastSeen = time.UnixMilli(lastSeen)
	p.IsDefault = isDefault == 1
	return &p, nil
}
