package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ListEventsInput struct {
	Days int `json:"days,omitempty" jsonschema:"number of days to look ahead"`
}

type CreateEventInput struct {
	Title string `json:"title,omitempty"`
	Start string `json:"start,omitempty"`
}

type EventOutput struct {
	Summary string `json:"summary"`
}

func newCalendarServer() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "calendar-test", Version: "0.0.1"}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_events",
		Description: "List upcoming events",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ListEventsInput) (*sdkmcp.CallToolResult, EventOutput, error) {
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "Standup at 09:00"}},
		}, EventOutput{Summary: "Standup at 09:00"}, nil
	})
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_event",
		Description: "Create an event",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in CreateEventInput) (*sdkmcp.CallToolResult, EventOutput, error) {
		if in.Title == "" {
			return nil, EventOutput{}, errors.New("title is required")
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "created " + in.Title}},
		}, EventOutput{Summary: in.Title}, nil
	})
	return server
}

func inMemoryDialer(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	if _, err := newCalendarServer().Connect(ctx, serverTransport, nil); err != nil {
		return nil, err
	}
	return clientTransport, nil
}

type recorded struct {
	server string
	err    error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *fakeRecorder) RecordTool(server string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recorded{server: server, err: err})
}

func startManager(t *testing.T, rec Recorder) *Manager {
	t.Helper()
	m := NewManager([]ServerConfig{{Name: "calendar", Command: "unused"}}, Options{
		Dialer:   inMemoryDialer,
		Recorder: rec,
	}, nil)
	m.Start(context.Background())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_DiscoversTools(t *testing.T) {
	m := startManager(t, nil)

	assert.Equal(t, []string{"calendar"}, m.Servers())

	tools := m.Tools()
	require.Len(t, tools, 2)
	byName := map[string]Tool{}
	for _, tool := range tools {
		byName[tool.FullName()] = tool
	}

	list, ok := byName["mcp__calendar__list_events"]
	require.True(t, ok)
	assert.False(t, list.Write)
	assert.Equal(t, "object", list.InputSchema["type"])

	create, ok := byName["mcp__calendar__create_event"]
	require.True(t, ok)
	assert.True(t, create.Write)
}

func TestManager_Call(t *testing.T) {
	rec := &fakeRecorder{}
	m := startManager(t, rec)

	out, err := m.Call(context.Background(), "mcp__calendar__list_events", map[string]any{"days": 1})
	require.NoError(t, err)
	assert.Equal(t, "Standup at 09:00", out)

	_, err = m.Call(context.Background(), "mcp__calendar__create_event", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")

	require.Len(t, rec.calls, 2)
	assert.Equal(t, "calendar", rec.calls[0].server)
	assert.NoError(t, rec.calls[0].err)
	assert.Error(t, rec.calls[1].err)
}

func TestManager_CallUnknown(t *testing.T) {
	m := startManager(t, nil)

	_, err := m.Call(context.Background(), "mcp__gmail__send_email", nil)
	assert.ErrorIs(t, err, ErrUnknownServer)

	_, err = m.Call(context.Background(), "mcp__calendar__nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = m.Call(context.Background(), "list_events", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestManager_UnreachableServerIsSkipped(t *testing.T) {
	m := NewManager([]ServerConfig{{Name: "gmail", Command: "unused"}}, Options{
		Dialer: func(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
			return nil, errors.New("no such binary")
		},
		MaxConnectTime: 50 * time.Millisecond,
	}, nil)
	m.Start(context.Background())

	assert.Empty(t, m.Servers())
	assert.Empty(t, m.Tools())
}

func TestToolNames(t *testing.T) {
	name := ToolName("gmail", "send_email")
	assert.Equal(t, "mcp__gmail__send_email", name)

	server, tool, ok := ParseToolName(name)
	require.True(t, ok)
	assert.Equal(t, "gmail", server)
	assert.Equal(t, "send_email", tool)

	_, _, ok = ParseToolName("mcp__gmail")
	assert.False(t, ok)
	_, _, ok = ParseToolName("send_email")
	assert.False(t, ok)
}

func TestIsWriteTool(t *testing.T) {
	tests := map[string]bool{
		"send_email":          true,
		"create_event":        true,
		"deleteEvent":         true,
		"batch-modify":        true,
		"send_message":        true,
		"mark_as_read":        true,
		"edit_event":          true,
		"insert_event":        true,
		"schedule_message":    true,
		"set_reminder":        true,
		"post_message":        true,
		"patch_event":         true,
		"invite_attendees":    true,
		"get_or_create_label": true,
		"frobnicate":          true,
		"":                    true,
		"list_events":         false,
		"search_emails":       false,
		"get_chat":            false,
		"read_email":          false,
		"list_chats":          false,
		"get_address_book":    false,
		"get-current-time":    false,
		"getFreeBusy":         false,
		"download_attachment": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsWriteTool(name), name)
	}
}

func TestServerConfig_WriteToolsOverride(t *testing.T) {
	cfg := ServerConfig{Name: "whatsapp", WriteTools: []string{"send_message"}}
	assert.True(t, cfg.isWrite("send_message"))
	assert.False(t, cfg.isWrite("send_file"))

	assert.True(t, ServerConfig{Name: "whatsapp"}.isWrite("send_file"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: calendar
    command: npx
    args: ["-y", "@cocal/google-calendar-mcp"]
    env:
      GOOGLE_OAUTH_CREDENTIALS: /secrets/gcp.json
  - name: whatsapp
    command: uv
    args: ["run", "main.py"]
    write_tools: [send_message, send_file]
  - name: gmail
    command: gmail-mcp
    disabled: true
`), 0o644))

	servers, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, "calendar", servers[0].Name)
	assert.Equal(t, []string{"-y", "@cocal/google-calendar-mcp"}, servers[0].Args)
	assert.Equal(t, "/secrets/gcp.json", servers[0].Env["GOOGLE_OAUTH_CREDENTIALS"])
	assert.Equal(t, []string{"send_message", "send_file"}, servers[1].WriteTools)
	assert.True(t, servers[2].Disabled)

	servers, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: mcp__bad
    command: x
`), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := []ServerConfig{
		{Name: "calendar", Command: "npx", Env: map[string]string{"GOOGLE_OAUTH_CREDENTIALS": "/a.json"}},
		{Name: "gmail", Command: "npx"},
	}
	overrides := []ServerConfig{
		{Name: "calendar", Command: "/usr/local/bin/calendar-mcp"},
		{Name: "gmail", Disabled: true},
		{Name: "whatsapp", Command: "uv"},
	}

	merged := Merge(base, overrides)
	require.Len(t, merged, 2)
	assert.Equal(t, "/usr/local/bin/calendar-mcp", merged[0].Command)
	assert.Equal(t, "/a.json", merged[0].Env["GOOGLE_OAUTH_CREDENTIALS"])
	assert.Equal(t, "whatsapp", merged[1].Name)
}
