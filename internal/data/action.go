package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// actionRepo implements the pending action repository
type actionRepo struct {
	db *sql.DB
}

// NewActionRepo creates a new action repository
func NewActionRepo(db *sql.DB) repo.ActionRepo {
	return &actionRepo{db: db}
}

const actionColumns = `id, session_id, kind, parameters, context, confidence, state, created_at, resolved_at, resolved_by, executed_at`

// Save inserts a newly staged action
func (r *actionRepo) Save(ctx context.Context, a *domain.PendingAction) error {
	params, err := json.Marshal(nonNilParams(a.Parameters))
	if err != nil {
		return fmt.Errorf("failed to encode action parameters: %w", err)
	}
	actx, err := json.Marshal(nonNilContext(a.Context))
	if err != nil {
		return fmt.Errorf("failed to encode action context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.SessionID,
		string(a.Kind),
		string(params),
		string(actx),
		a.Confidence,
		string(a.State),
		a.CreatedAt.UnixMilli(),
		unixMilliOrZero(a.ResolvedAt),
		a.ResolvedBy,
		unixMilliOrZero(a.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}
	return nil
}

// Transition updates the state columns only while the stored state is still from
func (r *actionRepo) Transition(ctx context.Context, a *domain.PendingAction, from domain.ActionState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE actions SET state = ?, resolved_at = ?, resolved_by = ?, executed_at = ?
		WHERE id = ? AND state = ?
	`,
		string(a.State),
		unixMilliOrZero(a.ResolvedAt),
		a.ResolvedBy,
		unixMilliOrZero(a.ExecutedAt),
		a.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := r.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", domain.ErrActionNotPending, a.ID, current.State)
}

// Get gets an action by ID
func (r *actionRepo) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotFound, id)
	}
	return a, err
}

// ListBySession lists actions of a session
func (r *actionRepo) ListBySession(ctx context.Context, sessionID int64, state domain.ActionState) ([]*domain.PendingAction, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE session_id = ?`
	args := []any{sessionID}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, args...)
}

// ListRecent lists the newest actions
func (r *actionRepo) ListRecent(ctx context.Context, limit int) ([]*domain.PendingAction, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+actionColumns+` FROM actions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (r *actionRepo) list(ctx context.Context, query string, args ...any) ([]*domain.PendingAction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PendingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanAction(row rowScanner) (*domain.PendingAction, error) {
	var a domain.PendingAction
	var kind, state, params, actx string
	var createdAt, resolvedAt, executedAt int64

	err := row.Scan(&a.ID, &a.SessionID, &kind, &params, &actx, &a.Confidence, &state, &createdAt, &resolvedAt, &a.ResolvedBy, &executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	a.Kind = domain.ActionKind(kind)
	a.State = domain.ActionState(state)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.ResolvedAt = timeOrZero(resolvedAt)
	a.ExecutedAt = timeOrZero(executedAt)

	if err := json.Unmarshal([]byte(params), &a.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode action parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(actx), &a.Context); err != nil {
		return nil, fmt.Errorf("failed to decode action context: %w", err)
	}
	return &a, nil
}

func nonNilParams(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilContext(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
