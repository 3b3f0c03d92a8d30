package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fede-assistant/fede/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Assistant AssistantPrompts `yaml:"assistant"`
	Images    ImagePrompts     `yaml:"images"`
	Commands  CommandPrompts   `yaml:"commands"`

	// Source is the file the prompts were read from, empty for defaults
	Source string `yaml:"-"`
}

// AssistantPrompts contains the system prompt parts
type AssistantPrompts struct {
	SystemPrompt       string `yaml:"system_prompt"`
	ActionInstructions string `yaml:"action_instructions"`
}

// ImagePrompts contains the prompts used for photos
type ImagePrompts struct {
	ConversationAnalysis string `yaml:"conversation_analysis"`
	General              string `yaml:"general"`
}

// CommandPrompts contains canned turns sent by commands
type CommandPrompts struct {
	CalendarQuery string `yaml:"calendar_query"`
}

// LoadPromptsConfig loads prompts configuration from a YAML file. With no
// explicit path the usual locations are tried; finding none yields defaults.
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/fede/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
		if configPath != "" {
			return nil, fmt.Errorf("read prompts config: %w", err)
		}
	}

	if data == nil {
		return DefaultPromptsConfig(), nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.Source = loadedPath

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if c.Assistant.SystemPrompt == "" {
		c.Assistant.SystemPrompt = defaults.Assistant.SystemPrompt
	}
	if c.Assistant.ActionInstructions == "" {
		c.Assistant.ActionInstructions = defaults.Assistant.ActionInstructions
	}
	if c.Images.ConversationAnalysis == "" {
		c.Images.ConversationAnalysis = defaults.Images.ConversationAnalysis
	}
	if c.Images.General == "" {
		c.Images.General = defaults.Images.General
	}
	if c.Commands.CalendarQuery == "" {
		c.Commands.CalendarQuery = defaults.Commands.CalendarQuery
	}
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	d := usecase.DefaultPromptConfig
	return &PromptsConfig{
		Assistant: AssistantPrompts{
			SystemPrompt:       d.SystemPrompt,
			ActionInstructions: d.ActionInstructions,
		},
		Images: ImagePrompts{
			ConversationAnalysis: d.ConversationAnalysisPrompt,
			General:              d.GeneralImagePrompt,
		},
		Commands: CommandPrompts{
			CalendarQuery: d.CalendarQuery,
		},
	}
}
