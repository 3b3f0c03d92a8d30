package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
)

// DefaultLearningThreshold is the number of occurrences before a default is suggested
const DefaultLearningThreshold = 3

// LearningUsecase tracks repeated parameters of confirmed actions.
// It only ever suggests defaults; nothing is applied without the user's consent.
type LearningUsecase struct {
	patternRepo repo.PatternRepo
	enabled     bool
	threshold   int
	logger      *slog.Logger
	now         func() time.Time
}

// NewLearningUsecase creates a new learning usecase
func NewLearningUsecase(patternRepo repo.PatternRepo, enabled bool, threshold int, logger *slog.Logger) *LearningUsecase {
	if threshold <= 0 {
		threshold = DefaultLearningThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LearningUsecase{
		patternRepo: patternRepo,
		enabled:     enabled,
		threshold:   threshold,
		logger:      logger,
		now:         time.Now,
	}
}

// Enabled reports whether learning mode is on
func (uc *LearningUsecase) Enabled() bool {
	return uc.enabled
}

// Track records one occurrence of a value
func (uc *LearningUsecase) Track(ctx context.Context, userID int64, key, value string) (*domain.UserPattern, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty value for %s", key)
	}
	p, err := uc.patternRepo.Track(ctx, userID, key, value, uc.now())
	if err != nil {
		return nil, fmt.Errorf("track pattern: %w", err)
	}
	return p, nil
}

// Suggestions lists values of a key frequent enough to be offered as defaults
func (uc *LearningUsecase) Suggestions(ctx context.Context, userID int64, key string) ([]*domain.UserPattern, error) {
	patterns, err := uc.patternRepo.Frequent(ctx, userID, key, uc.threshold)
	if err != nil {
		return nil, fmt.Errorf("list frequent patterns: %w", err)
	}
	out := patterns[:0]
	for _, p := range patterns {
		if !p.IsDefault {
			out = append(out, p)
		}
	}
	return out, nil
}

// ConfirmDefault makes a pattern the default for its key after the user agreed
func (uc *LearningUsecase) ConfirmDefault(ctx context.Context, userID, patternID int64) (*domain.UserPattern, error) {
	p, err := uc.patternRepo.SetDefault(ctx, userID, patternID)
	if err != nil {
		return nil, fmt.Errorf("set default: %w", err)
	}
	uc.logger.Info("default confirmed", "key", p.Key, "value", p.Value)
	return p, nil
}

// Defaults lists the user's confirmed defaults
func (uc *LearningUsecase) Defaults(ctx context.Context, userID int64) ([]*domain.UserPattern, error) {
	if !uc.enabled {
		return nil, nil
	}
	return uc.patternRepo.Defaults(ctx, userID)
}

// ObserveConfirmed tracks the recipients of a confirmed action and returns the
// patterns that just reached the threshold
func (uc *LearningUsecase) ObserveConfirmed(ctx context.Context, userID int64, a *domain.PendingAction) ([]*domain.UserPattern, error) {
	if !uc.enabled {
		return nil, nil
	}

	key, values := patternValues(a)
	var reached []*domain.UserPattern
	for _, v := range values {
		p, err := uc.Track(ctx, userID, key, v)
		if err != nil {
			return reached, err
		}
		// Ask exactly once, when the count first reaches the threshold
		if p.Count == uc.threshold && !p.IsDefault {
			reached = append(reached, p)
		}
	}
	return reached, nil
}

// patternValues picks the recipient-like parameters of an action
func patternValues(a *domain.PendingAction) (string, []string) {
	params := a.Parameters
	if args, ok := a.Parameters["arguments"].(map[string]any); ok {
		params = args
	}
	view := &domain.PendingAction{Parameters: params}

	var key string
	var fields []string
	switch a.Kind {
	case domain.ActionEmail:
		key = PatternKeyFor(a.Kind)
		fields = []string{"to", "recipient", "recipients", "extracted_emails"}
	case domain.ActionCalendar:
		key = PatternKeyFor(a.Kind)
		fields = []string{"attendees", "attendee", "suggested_attendee"}
	case domain.ActionWhatsApp:
		key = PatternKeyFor(a.Kind)
		fields = []string{"recipient", "to", "contact", "chat", "suggested_recipient"}
	default:
		return "", nil
	}

	seen := map[string]bool{}
	var values []string
	for _, f := range fields {
		for _, v := range view.StringsParam(f) {
			v = strings.TrimSpace(v)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			values = append(values, v)
		}
	}
	return key, values
}

// PatternKeyFor maps an action kind to the pattern key tracked for it
func PatternKeyFor(kind domain.ActionKind) string {
	switch kind {
	case domain.ActionEmail:
		return domain.PatternEmailRecipient
	case domain.ActionCalendar:
		return domain.PatternCalendarAttendee
	case domain.ActionWhatsApp:
		return domain.PatternWhatsAppContact
	}
	return ""
}
