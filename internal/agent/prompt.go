package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultSystemPrompt steers the oracle toward correct tool usage. The
// concrete-values rule matters: models otherwise echo schema fragments
// ("{type: string}") instead of actual argument values, and forget that
// identifiers returned by earlier tool results are meant to be reused.
const defaultSystemPrompt = `You are a helpful assistant with access to external tools.

When calling tools:
- Pass concrete argument values, never schema definitions or placeholders.
- When a previous tool result returned an identifier, reuse that exact identifier in later calls that need it.
- If a tool call fails, read the error, correct the arguments, and retry or explain the failure.
- Answer directly when no tool is needed.`

// promptFrontmatter is the optional YAML header of a workspace PROMPT.md.
type promptFrontmatter struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"` // "replace" or "append" (default)
	Enabled *bool  `yaml:"enabled"`
}

// LoadSystemPrompt returns the system prompt for a turn. A PROMPT.md in the
// workspace overlays the built-in prompt: its body is appended by default,
// or replaces the default entirely when its frontmatter says mode: replace.
func LoadSystemPrompt(workspace string) string {
	if workspace == "" {
		return defaultSystemPrompt
	}

	path := filepath.Join(workspace, "PROMPT.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSystemPrompt
	}

	fm, body, err := parseFrontmatter(string(data))
	if err != nil {
		slog.Warn("ignoring malformed PROMPT.md frontmatter", "path", path, "err", err)
		return defaultSystemPrompt
	}
	if fm.Enabled != nil && !*fm.Enabled {
		return defaultSystemPrompt
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return defaultSystemPrompt
	}
	if fm.Mode == "replace" {
		return body
	}
	return defaultSystemPrompt + "\n\n" + body
}

// parseFrontmatter splits an optional leading "---" YAML block from the
// markdown body. Content without a frontmatter block is all body.
func parseFrontmatter(content string) (promptFrontmatter, string, error) {
	var fm promptFrontmatter

	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return fm, content, nil
	}

	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, "", fmt.Errorf("unterminated frontmatter block")
	}

	header := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}
