package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	ErrUnknownServer = errors.New("unknown mcp server")
	ErrUnknownTool   = errors.New("unknown mcp tool")
)

// Recorder receives per-call timings
type Recorder interface {
	RecordTool(server string, duration time.Duration, err error)
}

// Dialer opens a transport to a configured server
type Dialer func(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error)

// CommandDialer starts the server as a subprocess speaking stdio
func CommandDialer(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
	}
	cmd.Stderr = os.Stderr
	return &sdkmcp.CommandTransport{Command: cmd}, nil
}

// Options configure a Manager
type Options struct {
	Dialer      Dialer
	Recorder    Recorder
	CallTimeout time.Duration
	// MaxConnectTime bounds the retries for one server
	MaxConnectTime time.Duration
	Version        string
}

type server struct {
	cfg     ServerConfig
	session *sdkmcp.ClientSession
	tools   []Tool
}

// Manager holds the sessions to every connected MCP server
type Manager struct {
	mu      sync.RWMutex
	configs []ServerConfig
	servers map[string]*server
	client  *sdkmcp.Client
	opts    Options
	logger  *slog.Logger
}

// NewManager creates a manager for the given servers. Nothing is
// connected until Start.
func NewManager(configs []ServerConfig, opts Options, logger *slog.Logger) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = CommandDialer
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.MaxConnectTime <= 0 {
		opts.MaxConnectTime = 30 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		configs: configs,
		servers: make(map[string]*server),
		client:  sdkmcp.NewClient(&sdkmcp.Implementation{Name: "fede", Version: opts.Version}, nil),
		opts:    opts,
		logger:  logger,
	}
}

// Start connects to every configured server. A server that cannot be
// reached is logged and left out; the bot keeps working without it.
func (m *Manager) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cfg := range m.configs {
		wg.Add(1)
		go func(cfg ServerConfig) {
			defer wg.Done()
			if err := m.connect(ctx, cfg); err != nil {
				m.logger.Warn("mcp server unavailable", "server", cfg.Name, "error", err)
			}
		}(cfg)
	}
	wg.Wait()
}

func (m *Manager) connect(ctx context.Context, cfg ServerConfig) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = m.opts.MaxConnectTime

	var session *sdkmcp.ClientSession
	attempt := 0
	operation := func() error {
		attempt++
		transport, err := m.opts.Dialer(ctx, cfg)
		if err != nil {
			return backoff.Permanent(err)
		}
		s, err := m.client.Connect(ctx, transport, nil)
		if err != nil {
			m.logger.Debug("mcp connect failed", "server", cfg.Name, "attempt", attempt, "error", err)
			return err
		}
		session = s
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Name, err)
	}

	tools, err := listTools(ctx, session, cfg)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("list tools on %s: %w", cfg.Name, err)
	}

	m.mu.Lock()
	m.servers[cfg.Name] = &server{cfg: cfg, session: session, tools: tools}
	m.mu.Unlock()

	m.logger.Info("mcp server connected", "server", cfg.Name, "tools", len(tools))
	return nil
}

func listTools(ctx context.Context, session *sdkmcp.ClientSession, cfg ServerConfig) ([]Tool, error) {
	var tools []Tool
	params := &sdkmcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			tools = append(tools, Tool{
				Server:      cfg.Name,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaMap(t.InputSchema),
				Write:       cfg.isWrite(t.Name),
			})
		}
		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}
	return tools, nil
}

// schemaMap normalizes whatever the SDK holds into a JSON object
func schemaMap(schema any) map[string]any {
	out := map[string]any{"type": "object"}
	if schema == nil {
		return out
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return out
	}
	if _, ok := decoded["type"]; !ok {
		decoded["type"] = "object"
	}
	return decoded
}

// Servers returns the names of connected servers, sorted
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNames()
}

// Tools returns every discovered tool across connected servers
func (m *Manager) Tools() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tools []Tool
	for _, name := range m.sortedNames() {
		tools = append(tools, m.servers[name].tools...)
	}
	return tools
}

func (m *Manager) sortedNames() []string {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup finds a tool by its exposed name
func (m *Manager) Lookup(fullName string) (Tool, error) {
	serverName, toolName, ok := ParseToolName(fullName)
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, fullName)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[serverName]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverName)
	}
	for _, t := range srv.tools {
		if t.Name == toolName {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, fullName)
}

// Call invokes a tool by its exposed name and flattens the result to text.
// A tool-reported failure comes back as an error carrying its text.
func (m *Manager) Call(ctx context.Context, fullName string, args map[string]any) (string, error) {
	tool, err := m.Lookup(fullName)
	if err != nil {
		return "", err
	}

	m.mu.RLock()
	srv := m.servers[tool.Server]
	m.mu.RUnlock()
	if srv == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, tool.Server)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	start := time.Now()
	res, err := srv.session.CallTool(callCtx, &sdkmcp.CallToolParams{Name: tool.Name, Arguments: args})
	if err == nil && res.IsError {
		err = fmt.Errorf("tool %s failed: %s", fullName, flatten(res))
	}
	if m.opts.Recorder != nil {
		m.opts.Recorder.RecordTool(tool.Server, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("call %s: %w", fullName, err)
	}
	return flatten(res), nil
}

func flatten(res *sdkmcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		case *sdkmcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case *sdkmcp.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			}
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

// Close ends every session
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, srv := range m.servers {
		if err := srv.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	m.servers = make(map[string]*server)
	return errors.Join(errs...)
}
