package mcp

import (
	"strings"
)

const toolPrefix = "mcp__"

// ToolName builds the name a tool is exposed under to the model
func ToolName(server, tool string) string {
	return toolPrefix + server + "__" + tool
}

// ParseToolName splits an exposed tool name into server and tool
func ParseToolName(name string) (server, tool string, ok bool) {
	rest, found := strings.CutPrefix(name, toolPrefix)
	if !found {
		return "", "", false
	}
	server, tool, found = strings.Cut(rest, "__")
	if !found || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// Leading verbs of tools that only read
var readVerbs = []string{
	"list", "get", "search", "read", "find", "query", "download", "fetch",
	"show", "view", "lookup", "check", "describe", "count", "retrieve",
}

// Words that mark a tool as changing state even after a read verb
var writeVerbs = []string{
	"create", "send", "delete", "update", "modify", "remove", "add",
	"reply", "move", "respond", "write", "trash", "batch", "draft",
	"forward", "archive", "accept", "decline", "cancel", "mark", "set",
	"edit", "insert", "post", "patch", "invite", "schedule", "upload",
}

// IsWriteTool guesses from the tool name whether calling it mutates
// external state. Names are split on '_', '-' and camel case. Only a name
// that starts with a read verb and carries no write verb counts as a read.
func IsWriteTool(tool string) bool {
	words := splitWords(tool)
	if len(words) == 0 || !contains(readVerbs, words[0]) {
		return true
	}
	for _, word := range words[1:] {
		if contains(writeVerbs, word) {
			return true
		}
	}
	return false
}

func contains(list []string, word string) bool {
	for _, w := range list {
		if w == word {
			return true
		}
	}
	return false
}

func splitWords(name string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				flush()
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

// Tool is a tool discovered on a connected server
type Tool struct {
	Server      string
	Name        string
	Description string
	InputSchema map[string]any
	Write       bool
}

// FullName returns the exposed name of the tool
func (t Tool) FullName() string {
	return ToolName(t.Server, t.Name)
}
