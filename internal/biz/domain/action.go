package domain

import (
	"errors"
	"fmt"
	"time"
)

// ActionKind is the type of operation an action would perform
type ActionKind string

const (
	ActionCalendar ActionKind = "calendar"
	ActionEmail    ActionKind = "email"
	ActionWhatsApp ActionKind = "whatsapp"
	ActionTask     ActionKind = "task"
)

// ParseActionKind maps the names the model uses onto a kind
func ParseActionKind(s string) (ActionKind, bool) {
	switch s {
	case "calendar", "calendar_event", "event", "meeting":
		return ActionCalendar, true
	case "email", "gmail", "mail":
		return ActionEmail, true
	case "whatsapp", "whatsapp_message", "message":
		return ActionWhatsApp, true
	case "task", "todo", "reminder":
		return ActionTask, true
	}
	return "", false
}

// ActionState is the confirmation state of a pending action
type ActionState string

const (
	ActionPending   ActionState = "pending"
	ActionConfirmed ActionState = "confirmed"
	ActionRejected  ActionState = "rejected"
	ActionExecuted  ActionState = "executed"
)

var (
	ErrActionNotFound     = errors.New("action not found")
	ErrActionNotPending   = errors.New("action is not pending")
	ErrActionNotConfirmed = errors.New("action has not been confirmed")
	ErrNoConfirmation     = errors.New("confirmation requires an explicit user event")
)

// Confirmation records the explicit user event that resolved an action
type Confirmation struct {
	UserID int64
	Source string // "button" or "command"
	At     time.Time
}

// PendingAction is an extracted candidate operation awaiting user approval
type PendingAction struct {
	ID         string
	SessionID  int64
	Kind       ActionKind
	Parameters map[string]any
	Context    map[string]string
	Confidence float64
	State      ActionState
	CreatedAt  time.Time
	ResolvedAt time.Time
	ResolvedBy string // Source of the resolving event, empty while pending
	ExecutedAt time.Time
}

// Confirm moves a pending action to confirmed. It requires the user event that caused it.
func (a *PendingAction) Confirm(c *Confirmation) error {
	return a.resolve(ActionConfirmed, c)
}

// Reject moves a pending action to rejected
func (a *PendingAction) Reject(c *Confirmation) error {
	return a.resolve(ActionRejected, c)
}

func (a *PendingAction) resolve(to ActionState, c *Confirmation) error {
	if c == nil || c.UserID == 0 || c.Source == "" {
		return ErrNoConfirmation
	}
	if a.State != ActionPending {
		return fmt.Errorf("%w: %s is %s", ErrActionNotPending, a.ID, a.State)
	}
	a.State = to
	a.ResolvedAt = c.At
	a.ResolvedBy = c.Source
	return nil
}

// MarkExecuted records that a confirmed action was handed off for execution
func (a *PendingAction) MarkExecuted(now time.Time) error {
	if a.State != ActionConfirmed || a.ResolvedBy == "" || a.ResolvedAt.IsZero() {
		return fmt.Errorf("%w: %s is %s", ErrActionNotConfirmed, a.ID, a.State)
	}
	a.State = ActionExecuted
	a.ExecutedAt = now
	return nil
}

// Reopen returns a confirmed action whose execution failed to pending, so the
// user can confirm it again or reject it
func (a *PendingAction) Reopen() error {
	if a.State != ActionConfirmed {
		return fmt.Errorf("%w: %s is %s", ErrActionNotConfirmed, a.ID, a.State)
	}
	a.State = ActionPending
	a.ResolvedAt = time.Time{}
	a.ResolvedBy = ""
	return nil
}

// StringParam returns a string parameter or ""
func (a *PendingAction) StringParam(key string) string {
	if v, ok := a.Parameters[key].(string); ok {
		return v
	}
	return ""
}

// StringsParam returns a string-list parameter, accepting []string or JSON-decoded []any
func (a *PendingAction) StringsParam(key string) []string {
	switch v := a.Parameters[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}
