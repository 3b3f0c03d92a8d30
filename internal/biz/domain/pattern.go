package domain

import (
	"errors"
	"time"
)

// Pattern keys tracked by learning mode
const (
	PatternEmailRecipient   = "email_recipient"
	PatternCalendarAttendee = "calendar_attendee"
	PatternWhatsAppContact  = "whatsapp_contact"
)

var ErrPatternNotFound = errors.New("pattern not found")

// UserPattern is a repeated parameter value observed in confirmed actions
type UserPattern struct {
	ID        int64
	UserID    int64
	Key       string
	Value     string
	Count     int
	LastSeen  time.Time
	IsDefault bool
}
