package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is Anthropic's OpenAI-compatible endpoint
	DefaultBaseURL   = "https://api.anthropic.com/v1/"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 4096
	DefaultMaxRounds = 8
)

// ErrEmptyResponse is returned when the API answers without choices
var ErrEmptyResponse = errors.New("no response choices")

// ToolSet provides tools to the model and executes its calls
type ToolSet interface {
	Tools() []openai.Tool
	Call(ctx context.Context, name, arguments string) (string, error)
}

// Config configures the client
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	MaxToolRounds int
	HTTPClient    *http.Client
}

// Client talks to Claude through the OpenAI-compatible chat completions API
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	maxRounds int
	logger    *slog.Logger
}

// NewClient creates a new Claude client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxRounds
	}
	if logger == nil {
		logger = slog.Default()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		maxRounds: cfg.MaxToolRounds,
		logger:    logger,
	}
}

// Model returns the model name
func (c *Client) Model() string {
	return c.model
}

// Result is the outcome of a turn
type Result struct {
	Text             string
	Rounds           int
	ToolCalls        int
	PromptTokens     int
	CompletionTokens int
}

// Run sends the messages and keeps answering tool calls until the model
// replies with text or the round limit is reached
func (c *Client) Run(ctx context.Context, messages []openai.ChatCompletionMessage, tools ToolSet) (*Result, error) {
	var defs []openai.Tool
	if tools != nil {
		defs = tools.Tools()
	}

	result := &Result{}
	for {
		req := openai.ChatCompletionRequest{
			Model:     c.model,
			Messages:  messages,
			MaxTokens: c.maxTokens,
		}
		if len(defs) > 0 {
			req.Tools = defs
			if result.Rounds >= c.maxRounds {
				// Out of rounds: ask for a final answer from what it has
				req.ToolChoice = "none"
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		result.Rounds++
		result.PromptTokens += resp.Usage.PromptTokens
		result.CompletionTokens += resp.Usage.CompletionTokens

		if len(resp.Choices) == 0 {
			return nil, ErrEmptyResponse
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 || tools == nil || result.Rounds > c.maxRounds {
			result.Text = msg.Content
			return result, nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, tc := range msg.ToolCalls {
			result.ToolCalls++
			c.logger.Debug("tool call", "tool", tc.Function.Name, "round", result.Rounds)

			out, err := tools.Call(ctx, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				c.logger.Warn("tool call failed", "tool", tc.Function.Name, "error", err)
				out = "Error: " + err.Error()
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: tc.ID,
			})
		}
	}
}

// SystemMessage builds a system message
func SystemMessage(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: text}
}

// TextMessage builds a plain message for the given role
func TextMessage(role, text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: role, Content: text}
}

// ImageMessage builds a user message with an inline image followed by text
func ImageMessage(text string, image []byte, mediaType string) openai.ChatCompletionMessage {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(image)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
			},
			{
				Type: openai.ChatMessagePartTypeText,
				Text: text,
			},
		},
	}
}
