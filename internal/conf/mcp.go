package conf

import (
	"strings"

	"github.com/fede-assistant/fede/internal/infra/mcp"
)

// Built-in server commands
const (
	CalendarServerPackage = "@cocal/google-calendar-mcp"
	GmailServerPackage    = "@gongrzhe/server-gmail-autoauth-mcp"
)

// MCPServers returns the enabled server definitions: the built-in ones
// toggled by env, overlaid with MCP_CONFIG_PATH
func (c *Config) MCPServers() ([]mcp.ServerConfig, error) {
	base := []mcp.ServerConfig{
		{
			Name:     "calendar",
			Command:  "npx",
			Args:     []string{"-y", CalendarServerPackage},
			Disabled: !c.MCP.CalendarEnabled,
		},
		{
			Name:     "gmail",
			Command:  "npx",
			Args:     []string{"-y", GmailServerPackage},
			Disabled: !c.MCP.GmailEnabled,
		},
		{
			Name:     "whatsapp",
			Command:  c.MCP.WhatsAppCommand,
			Args:     c.MCP.WhatsAppArgs,
			Disabled: !c.MCP.WhatsAppEnabled,
		},
	}
	if c.MCP.GoogleCredentials != "" {
		base[0].Env = map[string]string{"GOOGLE_OAUTH_CREDENTIALS": c.MCP.GoogleCredentials}
	}

	overrides, err := mcp.LoadConfig(c.MCP.ConfigPath)
	if err != nil {
		return nil, &ConfigError{Field: "MCP_CONFIG_PATH", Message: err.Error()}
	}

	servers := mcp.Merge(base, overrides)
	for _, s := range servers {
		if s.Command == "" {
			return nil, &ConfigError{Field: "MCP_" + strings.ToUpper(s.Name) + "_COMMAND", Message: "required when the server is enabled"}
		}
	}
	return servers, nil
}

