package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	replies  []openai.ChatCompletionResponse
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	resp := f.replies[idx]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func textReply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text},
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
}

func toolReply(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       id,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

type fakeTools struct {
	calls []string
}

func (f *fakeTools) Tools() []openai.Tool {
	return []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:       "mcp__calendar__list_events",
			Parameters: map[string]any{"type": "object"},
		},
	}}
}

func (f *fakeTools) Call(_ context.Context, name, arguments string) (string, error) {
	f.calls = append(f.calls, name+" "+arguments)
	return "no events", nil
}

func newTestClient(t *testing.T, api *fakeAPI, rounds int) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/v1/", Model: "claude-test", MaxToolRounds: rounds}, nil)
}

func TestClient_RunPlainText(t *testing.T) {
	api := &fakeAPI{replies: []openai.ChatCompletionResponse{textReply("Hello there")}}
	client := newTestClient(t, api, 3)

	result, err := client.Run(context.Background(), []openai.ChatCompletionMessage{
		SystemMessage("be helpful"),
		TextMessage(openai.ChatMessageRoleUser, "hi"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", result.Text)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 10, result.PromptTokens)
	require.Len(t, api.requests, 1)
	assert.Equal(t, "claude-test", api.requests[0].Model)
	assert.Empty(t, api.requests[0].Tools)
}

func TestClient_RunToolLoop(t *testing.T) {
	api := &fakeAPI{replies: []openai.ChatCompletionResponse{
		toolReply("call_1", "mcp__calendar__list_events", `{"days":1}`),
		textReply("You have no events today."),
	}}
	client := newTestClient(t, api, 3)
	tools := &fakeTools{}

	result, err := client.Run(context.Background(), []openai.ChatCompletionMessage{
		TextMessage(openai.ChatMessageRoleUser, "what's on today?"),
	}, tools)
	require.NoError(t, err)

	assert.Equal(t, "You have no events today.", result.Text)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Equal(t, []string{`mcp__calendar__list_events {"days":1}`}, tools.calls)

	require.Len(t, api.requests, 2)
	second := api.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, openai.ChatMessageRoleTool, second[2].Role)
	assert.Equal(t, "call_1", second[2].ToolCallID)
	assert.Equal(t, "no events", second[2].Content)
}

func TestClient_RunStopsAtRoundLimit(t *testing.T) {
	api := &fakeAPI{replies: []openai.ChatCompletionResponse{
		toolReply("call_1", "mcp__calendar__list_events", `{}`),
		toolReply("call_2", "mcp__calendar__list_events", `{}`),
		toolReply("call_3", "mcp__calendar__list_events", `{}`),
	}}
	client := newTestClient(t, api, 2)
	tools := &fakeTools{}

	result, err := client.Run(context.Background(), []openai.ChatCompletionMessage{
		TextMessage(openai.ChatMessageRoleUser, "loop"),
	}, tools)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Rounds)
	assert.Len(t, tools.calls, 2)
	require.Len(t, api.requests, 3)
	assert.Equal(t, "none", api.requests[2].ToolChoice)
}

func TestClient_RunEmptyChoices(t *testing.T) {
	api := &fakeAPI{replies: []openai.ChatCompletionResponse{{}}}
	client := newTestClient(t, api, 1)

	_, err := client.Run(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestImageMessage(t *testing.T) {
	msg := ImageMessage("describe", []byte{0xff, 0xd8}, "")

	require.Len(t, msg.MultiContent, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, msg.Role)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", msg.MultiContent[0].ImageURL.URL)
	assert.Equal(t, "describe", msg.MultiContent[1].Text)
}
