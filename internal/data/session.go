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

// sessionRepo implements the Session repository
type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new Session repository
func NewSessionRepo(db *sql.DB) repo.SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, user_id, created_at, updated_at, is_active, context`

// GetActive gets the newest active session of a user
func (r *sessionRepo) GetActive(ctx context.Context, userID int64) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = ? AND is_active = 1
		ORDER BY id DESC
		LIMIT 1
	`, userID)
	return scanSession(row)
}

// Get gets session by ID
func (r *sessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// Create inserts a session and assigns its ID
func (r *sessionRepo) Create(ctx context.Context, session *domain.Session) error {
	contextJSON, err := encodeContext(session.Context)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, created_at, updated_at, is_active, context)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.UserID,
		session.CreatedAt.UnixMilli(),
		session.UpdatedAt.UnixMilli(),
		boolToInt(session.Active),
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get session id: %w", err)
	}
	session.ID = id
	return nil
}

// Save updates a session
func (r *sessionRepo) Save(ctx context.Context, session *domain.Session) error {
	contextJSON, err := encodeContext(session.Context)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ?, is_active = ?, context = ? WHERE id = ?
	`,
		session.UpdatedAt.UnixMilli(),
		boolToInt(session.Active),
		contextJSON,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// List lists sessions, most recently active first
func (r *sessionRepo) List(ctx context.Context, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var createdAt, updatedAt int64
	var active int
	var contextJSON string

	err := row.Scan(&session.ID, &session.UserID, &createdAt, &updatedAt, &active, &contextJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.CreatedAt = time.UnixMilli(createdAt)
	session.UpdatedAt = time.UnixMilli(updatedAt)
	session.Active = active == 1
	session.Context = domain.SessionContext{}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &session.Context); err != nil {
			return nil, fmt.Errorf("failed to decode session context: %w", err)
		}
	}
	return &session, nil
}

func encodeContext(c domain.SessionContext) (string, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode session context: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
