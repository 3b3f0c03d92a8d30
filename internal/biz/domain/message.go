package domain

import (
	"fmt"
	"time"
)

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one we store
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a stored conversation turn (append-only)
type Message struct {
	ID        int64
	SessionID int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ImagePlaceholder is the history entry stored in place of an uploaded image
func ImagePlaceholder(caption string) string {
	return fmt.Sprintf("[Image uploaded] %s", caption)
}
