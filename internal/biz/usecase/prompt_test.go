package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

func TestImagePrompt(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{})
	cfg := b.Config()

	tests := []struct {
		caption string
		want    string
	}{
		{"", cfg.ConversationAnalysisPrompt},
		{"What's in this image?", cfg.ConversationAnalysisPrompt},
		{"Check this WhatsApp thread", cfg.ConversationAnalysisPrompt},
		{"iMessage from mom", cfg.ConversationAnalysisPrompt},
		{"Translate this menu", "Translate this menu\n\n" + cfg.GeneralImagePrompt},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.ImagePrompt(tt.caption), tt.caption)
	}
}

func TestSystemPrompt_ContextAndDefaults(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{SystemPrompt: "You are a test bot."})
	session := &domain.Session{Context: domain.SessionContext{
		domain.ContextUserName: "Ambros",
		domain.ContextTimezone: "Europe/Madrid",
	}}
	defaults := []*domain.UserPattern{{Key: domain.PatternEmailRecipient, Value: "john@example.com"}}

	prompt := b.SystemPrompt(session, defaults, []string{"calendar", "gmail"})

	assert.True(t, strings.HasPrefix(prompt, "You are a test bot."))
	assert.Contains(t, prompt, "User's name: Ambros")
	assert.Contains(t, prompt, "User's timezone: Europe/Madrid")
	assert.Contains(t, prompt, "Known preferences: default email recipient is john@example.com")
	assert.Contains(t, prompt, "Connected integrations: calendar, gmail")
}

func TestSystemPrompt_NoFacts(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{})
	prompt := b.SystemPrompt(&domain.Session{}, nil, nil)

	assert.NotContains(t, prompt, "Known preferences")
	assert.NotContains(t, prompt, "User's name")
}
