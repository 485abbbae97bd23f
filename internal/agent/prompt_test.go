package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePrompt(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "PROMPT.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write PROMPT.md: %v", err)
	}
}

func TestLoadSystemPromptDefault(t *testing.T) {
	got := LoadSystemPrompt(t.TempDir())
	if got != defaultSystemPrompt {
		t.Errorf("expected default prompt when no PROMPT.md exists")
	}
}

func TestLoadSystemPromptAppend(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "Always answer in French.")

	got := LoadSystemPrompt(dir)
	if !strings.HasPrefix(got, defaultSystemPrompt) {
		t.Error("append mode must keep the default prompt")
	}
	if !strings.Contains(got, "Always answer in French.") {
		t.Error("append mode must include the PROMPT.md body")
	}
}

func TestLoadSystemPromptReplace(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "---\nmode: replace\n---\nYou are a pirate.")

	got := LoadSystemPrompt(dir)
	if got != "You are a pirate." {
		t.Errorf("got %q, want replaced prompt", got)
	}
}

func TestLoadSystemPromptDisabled(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "---\nenabled: false\n---\nIgnored body.")

	if got := LoadSystemPrompt(dir); got != defaultSystemPrompt {
		t.Errorf("disabled PROMPT.md must fall back to the default, got %q", got)
	}
}

func TestParseFrontmatterMalformed(t *testing.T) {
	_, _, err := parseFrontmatter("---\nname: [unclosed\n---\nbody")
	if err == nil {
		t.Error("expected error for malformed YAML frontmatter")
	}
}
