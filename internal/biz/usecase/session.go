package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// SessionUsecase handles session logic
type SessionUsecase struct {
	sessionRepo repo.SessionRepo
	messageRepo repo.MessageRepo
	config      domain.SessionConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewSessionUsecase creates a new session usecase
func NewSessionUsecase(
	sessionRepo repo.SessionRepo,
	messageRepo repo.MessageRepo,
	config domain.SessionConfig,
	logger *slog.Logger,
) *SessionUsecase {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = domain.DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionUsecase{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// SessionDecision represents the session resolution result
type SessionDecision struct {
	Session *domain.Session
	IsNew   bool
}

// ResolveSession returns the user's active session, creating one when none
// is active or the active one has been idle past the timeout
func (uc *SessionUsecase) ResolveSession(ctx context.Context, userID int64) (*SessionDecision, error) {
	session, err := uc.sessionRepo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}

	now := uc.now()
	if session != nil && session.IsFresh(uc.config, now) {
		return &SessionDecision{Session: session}, nil
	}

	if session != nil {
		// Idle too long, close it so it is never resumed
		uc.logger.Info("session expired", "session_id", session.ID, "idle", now.Sub(session.UpdatedAt).Round(time.Second))
		session.End(now)
		if err := uc.sessionRepo.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("end expired session: %w", err)
		}
	}

	created, err := uc.create(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &SessionDecision{Session: created, IsNew: true}, nil
}

// NewSession ends the active session (if any) and starts a fresh one
func (uc *SessionUsecase) NewSession(ctx context.Context, userID int64) (*domain.Session, error) {
	if _, err := uc.EndSession(ctx, userID); err != nil {
		return nil, err
	}
	return uc.create(ctx, userID, uc.now())
}

// EndSession ends the active session and returns it, nil when none was active.
// A session idle past the timeout is closed too but reported as nil.
func (uc *SessionUsecase) EndSession(ctx context.Context, userID int64) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	now := uc.now()
	fresh := session.IsFresh(uc.config, now)
	session.End(now)
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if !fresh {
		uc.logger.Info("session expired", "session_id", session.ID)
		return nil, nil
	}
	uc.logger.Info("session ended", "session_id", session.ID)
	return session, nil
}

// Current returns the active session without creating one, nil when none
func (uc *SessionUsecase) Current(ctx context.Context, userID int64) (*domain.Session, error) {
	session, err := uc.sessionRepo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if session == nil || !session.IsFresh(uc.config, uc.now()) {
		return nil, nil
	}
	return session, nil
}

// Get gets any session by ID
func (uc *SessionUsecase) Get(ctx context.Context, id int64) (*domain.Session, error) {
	return uc.sessionRepo.Get(ctx, id)
}

// List lists recent sessions
func (uc *SessionUsecase) List(ctx context.Context, limit int) ([]*domain.Session, error) {
	return uc.sessionRepo.List(ctx, limit)
}

// AppendMessage stores a message and refreshes the session's activity time
func (uc *SessionUsecase) AppendMessage(ctx context.Context, session *domain.Session, role domain.Role, content string) (*domain.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	now := uc.now()
	msg := &domain.Message{
		SessionID: session.ID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if err := uc.messageRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	session.Touch(now)
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages of a session in chronological order.
// A non-positive limit uses the configured history limit.
func (uc *SessionUsecase) History(ctx context.Context, sessionID int64, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = uc.config.HistoryLimit
	}
	msgs, err := uc.messageRepo.Recent(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return msgs, nil
}

// MessageCount counts the messages of a session
func (uc *SessionUsecase) MessageCount(ctx context.Context, sessionID int64) (int, error) {
	return uc.messageRepo.Count(ctx, sessionID)
}

// UpdateContext merges values into the session context, saving only when something changed
func (uc *SessionUsecase) UpdateContext(ctx context.Context, session *domain.Session, values map[string]string) error {
	changed := false
	for k, v := range values {
		if v == "" {
			continue
		}
		if session.SetContextValue(k, v) {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	session.Touch(uc.now())
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		return fmt.Errorf("update session context: %w", err)
	}
	return nil
}

func (uc *SessionUsecase) create(ctx context.Context, userID int64, now time.Time) (*domain.Session, error) {
	session := &domain.Session{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
		Context:   domain.SessionContext{},
	}
	if err := uc.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	uc.logger.Info("session created", "session_id", session.ID, "user_id", userID)
	return session, nil
}
