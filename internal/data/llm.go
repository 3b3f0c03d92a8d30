package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fede-assistant/fede/internal/biz/domain"
	"github.com/fede-assistant/fede/internal/biz/repo"
	"github.com/fede-assistant/fede/internal/infra/claude"
	"github.com/fede-assistant/fede/internal/infra/mcp"
	"github.com/fede-assistant/fede/internal/metrics"
)

// deferredNotice is the tool result the model sees for a held-back call
const deferredNotice = "Not executed yet: this call changes data, so it was queued for the user's confirmation. " +
	"Do not call it again. Tell the user what you prepared and that it is waiting for their confirmation."

// Completer runs a chat turn with tools
type Completer interface {
	Run(ctx context.Context, messages []openai.ChatCompletionMessage, tools claude.ToolSet) (*claude.Result, error)
	Model() string
}

// ToolProvider exposes MCP tools
type ToolProvider interface {
	Tools() []mcp.Tool
	Lookup(fullName string) (mcp.Tool, error)
	Call(ctx context.Context, fullName string, args map[string]any) (string, error)
	Servers() []string
}

// llmRepo implements repo.LLMRepo
type llmRepo struct {
	client  Completer
	tools   ToolProvider
	metrics *metrics.Observer
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMRepo creates the language model repository. tools may be nil.
func NewLLMRepo(client Completer, tools ToolProvider, observer *metrics.Observer, timeout time.Duration, logger *slog.Logger) repo.LLMRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &llmRepo{
		client:  client,
		tools:   tools,
		metrics: observer,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *llmRepo) Complete(ctx context.Context, req *repo.CompletionRequest) (*repo.Completion, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	messages := buildMessages(req)

	var toolset *gatedToolSet
	var ts claude.ToolSet
	if r.tools != nil && len(r.tools.Tools()) > 0 {
		toolset = &gatedToolSet{provider: r.tools, allowWrites: req.AllowWrites, logger: r.logger}
		ts = toolset
	}

	start := time.Now()
	result, err := r.client.Run(ctx, messages, ts)
	rounds := 0
	if result != nil {
		rounds = result.Rounds
	}
	r.metrics.RecordLLM(time.Since(start), rounds, err)
	if err != nil {
		return nil, err
	}

	comp := &repo.Completion{
		Text:             result.Text,
		Rounds:           result.Rounds,
		ToolCalls:        result.ToolCalls,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}
	if toolset != nil {
		comp.Deferred = toolset.deferredCalls()
	}

	r.logger.Info("model turn complete",
		"rounds", comp.Rounds,
		"tool_calls", comp.ToolCalls,
		"deferred", len(comp.Deferred),
		"prompt_tokens", comp.PromptTokens,
		"completion_tokens", comp.CompletionTokens,
		"duration", time.Since(start))
	return comp, nil
}

func buildMessages(req *repo.CompletionRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, claude.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, claude.TextMessage(role, m.Content))
	}
	if req.HasImage() {
		messages = append(messages, claude.ImageMessage(req.Text, req.Image, req.ImageMediaType))
	} else {
		messages = append(messages, claude.TextMessage(openai.ChatMessageRoleUser, req.Text))
	}
	return messages
}

func (r *llmRepo) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	if r.tools == nil {
		return "", fmt.Errorf("%w: %s", mcp.ErrUnknownTool, tool)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.tools.Call(ctx, tool, args)
}

func (r *llmRepo) Model() string {
	return r.client.Model()
}

func (r *llmRepo) Integrations() []string {
	if r.tools == nil {
		return nil
	}
	return r.tools.Servers()
}

// gatedToolSet exposes MCP tools to the model and holds back mutating
// calls unless the turn carries out a confirmed action
type gatedToolSet struct {
	provider    ToolProvider
	allowWrites bool
	logger      *slog.Logger

	mu       sync.Mutex
	deferred []repo.DeferredCall
}

func (g *gatedToolSet) Tools() []openai.Tool {
	var defs []openai.Tool
	for _, t := range g.provider.Tools() {
		desc := t.Description
		if t.Write && !g.allowWrites {
			desc += " (Changes data: the call is queued until the user confirms it.)"
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.FullName(),
				Description: desc,
				Parameters:  t.InputSchema,
			},
		})
	}
	return defs
}

func (g *gatedToolSet) Call(ctx context.Context, name, arguments string) (string, error) {
	tool, err := g.provider.Lookup(name)
	if err != nil {
		return "", err
	}
	args, err := decodeArguments(arguments)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
	}

	if tool.Write && !g.allowWrites {
		g.mu.Lock()
		g.deferred = append(g.deferred, repo.DeferredCall{Server: tool.Server, Tool: name, Arguments: args})
		g.mu.Unlock()
		g.logger.Info("write tool call deferred", "tool", name)
		return deferredNotice, nil
	}
	return g.provider.Call(ctx, name, args)
}

func (g *gatedToolSet) deferredCalls() []repo.DeferredCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]repo.DeferredCall(nil), g.deferred...)
}

// decodeArguments parses the model's JSON arguments, repairing them when needed
func decodeArguments(arguments string) (map[string]any, error) {
	args := map[string]any{}
	if arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err == nil {
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(arguments)
	if err != nil {
		return nil, err
	}
	args = map[string]any{}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, err
	}
	return args, nil
}
