package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

func emailTo(to ...any) *domain.PendingAction {
	return &domain.PendingAction{Kind: domain.ActionEmail, Parameters: map[string]any{"to": to}}
}

func TestLearning_SuggestsExactlyAtThreshold(t *testing.T) {
	uc := NewLearningUsecase(&mockPatternRepo{}, true, 3, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		reached, err := uc.ObserveConfirmed(ctx, 42, emailTo("john@example.com"))
		require.NoError(t, err)
		if i == 3 {
			require.Len(t, reached, 1, "iteration %d", i)
			assert.Equal(t, domain.PatternEmailRecipient, reached[0].Key)
			assert.Equal(t, "john@example.com", reached[0].Value)
		} else {
			assert.Empty(t, reached, "iteration %d", i)
		}
	}
}

func TestLearning_DefaultsOnlyAfterConfirmation(t *testing.T) {
	uc := NewLearningUsecase(&mockPatternRepo{}, true, 2, nil)
	ctx := context.Background()

	var reached []*domain.UserPattern
	for i := 0; i < 2; i++ {
		reached, _ = uc.ObserveConfirmed(ctx, 42, emailTo("john@example.com"))
	}
	require.Len(t, reached, 1)

	defaults, err := uc.Defaults(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, defaults)

	suggestions, err := uc.Suggestions(ctx, 42, domain.PatternEmailRecipient)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)

	_, err = uc.ConfirmDefault(ctx, 42, reached[0].ID)
	require.NoError(t, err)

	defaults, _ = uc.Defaults(ctx, 42)
	require.Len(t, defaults, 1)
	assert.Equal(t, "john@example.com", defaults[0].Value)

	suggestions, _ = uc.Suggestions(ctx, 42, domain.PatternEmailRecipient)
	assert.Empty(t, suggestions)
}

func TestLearning_ConfirmDefaultOtherUser(t *testing.T) {
	uc := NewLearningUsecase(&mockPatternRepo{}, true, 1, nil)
	ctx := context.Background()

	reached, _ := uc.ObserveConfirmed(ctx, 42, emailTo("john@example.com"))
	require.Len(t, reached, 1)

	_, err := uc.ConfirmDefault(ctx, 7, reached[0].ID)
	require.ErrorIs(t, err, domain.ErrPatternNotFound)
}

func TestLearning_Disabled(t *testing.T) {
	patterns := &mockPatternRepo{}
	uc := NewLearningUsecase(patterns, false, 1, nil)

	reached, err := uc.ObserveConfirmed(context.Background(), 42, emailTo("john@example.com"))
	require.NoError(t, err)
	assert.Empty(t, reached)
	assert.Empty(t, patterns.patterns)
}

func TestPatternValues_ToolArguments(t *testing.T) {
	a := &domain.PendingAction{
		Kind: domain.ActionCalendar,
		Parameters: map[string]any{
			ParamTool:      "mcp__calendar__create-event",
			ParamArguments: map[string]any{"attendees": []any{"a@x.io", "A@x.io", "b@x.io"}},
		},
	}

	key, values := patternValues(a)
	assert.Equal(t, domain.PatternCalendarAttendee, key)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, values)

	key, values = patternValues(&domain.PendingAction{Kind: domain.ActionTask})
	assert.Empty(t, key)
	assert.Empty(t, values)
}
