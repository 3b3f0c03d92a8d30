package repo

import (
	"context"

	"github.com/fede-assistant/fede/internal/biz/domain"
)

// CompletionRequest is one conversation turn sent to the model
type CompletionRequest struct {
	SystemPrompt string
	History      []*domain.Message
	Text         string

	// Image is optional; when set the turn is multimodal
	Image          []byte
	ImageMediaType string

	// AllowWrites lets mutating tools run instead of being deferred.
	// Only set for turns that carry out a confirmed action.
	AllowWrites bool
}

// HasImage reports whether the turn carries an image
func (r *CompletionRequest) HasImage() bool {
	return len(r.Image) > 0
}

// DeferredCall is a mutating tool call held back for user confirmation
type DeferredCall struct {
	Server    string
	Tool      string
	Arguments map[string]any
}

// Completion is the model's final answer for a turn
type Completion struct {
	Text             string
	Rounds           int
	ToolCalls        int
	PromptTokens     int
	CompletionTokens int
	Deferred         []DeferredCall
}

// LLMRepo is the language model interface
type LLMRepo interface {
	// Complete runs a turn, including any tool calls, and returns the final text
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// CallTool invokes a tool directly, bypassing the model
	CallTool(ctx context.Context, tool string, args map[string]any) (string, error)

	// Model returns the configured model name
	Model() string

	// Integrations lists the names of the connected tool servers
	Integrations() []string
}
