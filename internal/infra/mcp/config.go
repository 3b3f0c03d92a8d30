package mcp

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes one stdio MCP server
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	// WriteTools overrides the name heuristic when set
	WriteTools []string `yaml:"write_tools"`
	Disabled   bool     `yaml:"disabled"`
}

// isWrite reports whether the tool needs confirmation before it runs
func (c ServerConfig) isWrite(tool string) bool {
	if c.WriteTools != nil {
		for _, name := range c.WriteTools {
			if name == tool {
				return true
			}
		}
		return false
	}
	return IsWriteTool(tool)
}

type fileConfig struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadConfig reads server definitions from a YAML file. A missing file
// yields no servers. Disabled entries are kept so they can switch off a
// default in Merge.
func LoadConfig(path string) ([]ServerConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mcp config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}

	seen := make(map[string]bool)
	servers := make([]ServerConfig, 0, len(cfg.Servers))
	for i, s := range cfg.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("mcp server %d: name is required", i)
		}
		if s.Command == "" && !s.Disabled {
			return nil, fmt.Errorf("mcp server %q: command is required", s.Name)
		}
		if strings.Contains(s.Name, "__") {
			return nil, fmt.Errorf("mcp server %q: name must not contain \"__\"", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("mcp server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		servers = append(servers, s)
	}
	return servers, nil
}

// Merge overlays overrides on base by name and drops disabled servers.
// Servers only present in overrides are appended in their order.
func Merge(base, overrides []ServerConfig) []ServerConfig {
	byName := make(map[string]ServerConfig, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}

	var merged []ServerConfig
	used := make(map[string]bool)
	for _, b := range base {
		if o, ok := byName[b.Name]; ok {
			if o.Command == "" {
				o.Command, o.Args = b.Command, b.Args
			}
			if len(o.Env) == 0 {
				o.Env = b.Env
			}
			b = o
			used[b.Name] = true
		}
		if !b.Disabled {
			merged = append(merged, b)
		}
	}
	for _, o := range overrides {
		if !used[o.Name] && !o.Disabled {
			merged = append(merged, o)
		}
	}
	return merged
}
