package data

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/infra/claude"
	"github.com/fede-assistant/fede/internal/infra/mcp"
)

// scriptedCompleter calls the listed tools once, then answers with text
type scriptedCompleter struct {
	calls    []openai.FunctionCall
	text     string
	err      error
	messages []openai.ChatCompletionMessage
	tools    []openai.Tool
	results  []string
}

func (s *scriptedCompleter) Run(ctx context.Context, messages []openai.ChatCompletionMessage, tools claude.ToolSet) (*claude.Result, error) {
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	if tools != nil {
		s.tools = tools.Tools()
		for _, c := range s.calls {
			out, err := tools.Call(ctx, c.Name, c.Arguments)
			if err != nil {
				out = "Error: " + err.Error()
			}
			s.results = append(s.results, out)
		}
	}
	return &claude.Result{Text: s.text, Rounds: 1 + len(s.calls), ToolCalls: len(s.calls)}, nil
}

func (s *scriptedCompleter) Model() string { return "claude-test" }

type fakeProvider struct {
	tools  []mcp.Tool
	called []string
	args   []map[string]any
}

func (f *fakeProvider) Tools() []mcp.Tool { return f.tools }

func (f *fakeProvider) Lookup(name string) (mcp.Tool, error) {
	for _, t := range f.tools {
		if t.FullName() == name {
			return t, nil
		}
	}
	return mcp.Tool{}, mcp.ErrUnknownTool
}

func (f *fakeProvider) Call(_ context.Context, name string, args map[string]any) (string, error) {
	f.called = append(f.called, name)
	f.args = append(f.args, args)
	return "ok from " + name, nil
}

func (f *fakeProvider) Servers() []string { return []string{"calendar", "gmail"} }

func newProvider() *fakeProvider {
	return &fakeProvider{tools: []mcp.Tool{
		{Server: "calendar", Name: "list_events", InputSchema: map[string]any{"type": "object"}},
		{Server: "gmail", Name: "send_email", InputSchema: map[string]any{"type": "object"}, Write: true},
	}}
}

func TestLLMRepo_BuildsConversation(t *testing.T) {
	completer := &scriptedCompleter{text: "Hi!"}
	llm := NewLLMRepo(completer, nil, nil, 0, nil)

	comp, err := llm.Complete(context.Background(), &repo.CompletionRequest{
		SystemPrompt: "You are Fede",
		History: []*domain.Message{
			{Role: domain.RoleUser, Content: "hello"},
			{Role: domain.RoleAssistant, Content: "hey"},
		},
		Text: "how are you?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", comp.Text)

	require.Len(t, completer.messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, completer.messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, completer.messages[2].Role)
	assert.Equal(t, "how are you?", completer.messages[3].Content)
	assert.Nil(t, completer.tools)
}

func TestLLMRepo_ImageTurn(t *testing.T) {
	completer := &scriptedCompleter{text: "A chat screenshot"}
	llm := NewLLMRepo(completer, nil, nil, 0, nil)

	_, err := llm.Complete(context.Background(), &repo.CompletionRequest{
		Text:           "analyze",
		Image:          []byte{1, 2, 3},
		ImageMediaType: "image/png",
	})
	require.NoError(t, err)

	last := completer.messages[len(completer.messages)-1]
	require.Len(t, last.MultiContent, 2)
	assert.Contains(t, last.MultiContent[0].ImageURL.URL, "data:image/png;base64,")
}

func TestLLMRepo_DefersWriteTools(t *testing.T) {
	provider := newProvider()
	completer := &scriptedCompleter{
		text: "Drafted the email, waiting for your confirmation.",
		calls: []openai.FunctionCall{
			{Name: "mcp__calendar__list_events", Arguments: `{"days": 7}`},
			{Name: "mcp__gmail__send_email", Arguments: `{"to": ["john@example.com"], "subject": "Hi",}`},
		},
	}
	llm := NewLLMRepo(completer, provider, nil, 0, nil)

	comp, err := llm.Complete(context.Background(), &repo.CompletionRequest{Text: "email john"})
	require.NoError(t, err)

	assert.Equal(t, []string{"mcp__calendar__list_events"}, provider.called)
	require.Len(t, comp.Deferred, 1)
	assert.Equal(t, "gmail", comp.Deferred[0].Server)
	assert.Equal(t, "mcp__gmail__send_email", comp.Deferred[0].Tool)
	assert.Equal(t, "Hi", comp.Deferred[0].Arguments["subject"])
	assert.Equal(t, deferredNotice, completer.results[1])

	require.Len(t, completer.tools, 2)
	assert.Contains(t, completer.tools[1].Function.Description, "queued until the user confirms")
}

func TestLLMRepo_AllowWritesRunsTools(t *testing.T) {
	provider := newProvider()
	completer := &scriptedCompleter{
		text:  "Sent.",
		calls: []openai.FunctionCall{{Name: "mcp__gmail__send_email", Arguments: `{"to": ["john@example.com"]}`}},
	}
	llm := NewLLMRepo(completer, provider, nil, 0, nil)

	comp, err := llm.Complete(context.Background(), &repo.CompletionRequest{Text: "CONFIRMED ACTION x", AllowWrites: true})
	require.NoError(t, err)

	assert.Empty(t, comp.Deferred)
	assert.Equal(t, []string{"mcp__gmail__send_email"}, provider.called)
}

func TestLLMRepo_CallToolAndIntegrations(t *testing.T) {
	provider := newProvider()
	llm := NewLLMRepo(&scriptedCompleter{}, provider, nil, 0, nil)

	out, err := llm.CallTool(context.Background(), "mcp__gmail__send_email", map[string]any{"to": "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, "ok from mcp__gmail__send_email", out)
	assert.Equal(t, []string{"calendar", "gmail"}, llm.Integrations())
	assert.Equal(t, "claude-test", llm.Model())

	noTools := NewLLMRepo(&scriptedCompleter{}, nil, nil, 0, nil)
	_, err = noTools.CallTool(context.Background(), "mcp__gmail__send_email", nil)
	assert.ErrorIs(t, err, mcp.ErrUnknownTool)
	assert.Nil(t, noTools.Integrations())
}

func TestLLMRepo_PropagatesErrors(t *testing.T) {
	boom := errors.New("overloaded")
	llm := NewLLMRepo(&scriptedCompleter{err: boom}, nil, nil, 0, nil)

	_, err := llm.Complete(context.Background(), &repo.CompletionRequest{Text: "hi"})
	assert.ErrorIs(t, err, boom)
}
