package domain

import "time"

// Session represents a conversation session of the authorized user
type Session struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time // Last activity (message appended or context updated)
	Active    bool
	Context   SessionContext
}

// SessionContext holds per-session facts injected into the system prompt
type SessionContext map[string]string

// Well-known context keys
const (
	ContextUserName    = "user_name"
	ContextTimezone    = "timezone"
	ContextPreferences = "preferences"
)

// SessionConfig represents session configuration (value object)
type SessionConfig struct {
	IdleTimeout  time.Duration // Idle timeout, 0 disables expiry
	HistoryLimit int           // Number of recent messages sent to the LLM
}

// DefaultHistoryLimit is the number of history messages used when none is configured
const DefaultHistoryLimit = 20

// IsFresh checks if session can still be resumed at now
func (s *Session) IsFresh(cfg SessionConfig, now time.Time) bool {
	if !s.Active {
		return false
	}
	if cfg.IdleTimeout > 0 && now.Sub(s.UpdatedAt) > cfg.IdleTimeout {
		return false
	}
	return true
}

// Touch updates active time
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now
}

// End closes the session
func (s *Session) End(now time.Time) {
	s.Active = false
	s.UpdatedAt = now
}

// ContextValue returns a context value or "" when unset
func (s *Session) ContextValue(key string) string {
	if s.Context == nil {
		return ""
	}
	return s.Context[key]
}

// SetContextValue sets a context value, reporting whether it changed
func (s *Session) SetContextValue(key, value string) bool {
	if s.Context == nil {
		s.Context = SessionContext{}
	}
	if s.Context[key] == value {
		return false
	}
	s.Context[key] = value
	return true
}
