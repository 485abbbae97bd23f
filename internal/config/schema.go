// Package config defines the fastgate configuration schema and loader.
//
// The config lives at ~/.fastgate/config.json; JSON keys use camelCase.
package config

import (
	"os"
	"path/filepath"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
}

// ProvidersConfig holds credentials for all supported LLM providers.
type ProvidersConfig struct {
	Custom     ProviderConfig `json:"custom"`
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	VLLM       ProviderConfig `json:"vllm"`
}

// AgentDefaults holds default values for the conversation engine.
type AgentDefaults struct {
	Workspace      string  `json:"workspace"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"maxTokens"`
	Temperature    float64 `json:"temperature"`
	MaxToolIter    int     `json:"maxToolIterations"`
	MemoryWindow   int     `json:"memoryWindow"`
	RequestTimeout int     `json:"requestTimeoutSeconds"`
}

func defaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Workspace:      "~/.fastgate/workspace",
		Model:          "openai/gpt-4.1-mini",
		MaxTokens:      8192,
		Temperature:    0.7,
		MaxToolIter:    20,
		MemoryWindow:   50,
		RequestTimeout: 120,
	}
}

// AgentsConfig wraps agent defaults.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

func defaultAgentsConfig() AgentsConfig {
	return AgentsConfig{Defaults: defaultAgentDefaults()}
}

// MCPServerConfig describes one MCP server connection (stdio or HTTP).
// Command/Args/Env configure a subprocess server; URL/Headers an HTTP one.
type MCPServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ToolsConfig groups tool-level settings.
type ToolsConfig struct {
	MCPServers    map[string]MCPServerConfig `json:"mcpServers"`
	InvokeTimeout int                        `json:"invokeTimeoutSeconds"`
}

func defaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		MCPServers:    map[string]MCPServerConfig{},
		InvokeTimeout: 60,
	}
}

// Config is the root configuration object, loaded from ~/.fastgate/config.json.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Providers ProvidersConfig `json:"providers"`
	Tools     ToolsConfig     `json:"tools"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agents:    defaultAgentsConfig(),
		Providers: ProvidersConfig{},
		Tools:     defaultToolsConfig(),
	}
}

// WorkspacePath returns the expanded absolute path to the agent workspace.
func (c *Config) WorkspacePath() string {
	ws := c.Agents.Defaults.Workspace
	if ws == "" {
		ws = "~/.fastgate/workspace"
	}
	if len(ws) >= 2 && ws[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			ws = filepath.Join(home, ws[2:])
		}
	}
	return ws
}

// ProviderByName returns a pointer to the ProviderConfig field matching the
// given registry name (e.g. "openrouter", "anthropic"). Returns nil if unknown.
func (c *Config) ProviderByName(name string) *ProviderConfig {
	switch name {
	case "custom":
		return &c.Providers.Custom
	case "anthropic":
		return &c.Providers.Anthropic
	case "openai":
		return &c.Providers.OpenAI
	case "openrouter":
		return &c.Providers.OpenRouter
	case "deepseek":
		return &c.Providers.DeepSeek
	case "groq":
		return &c.Providers.Groq
	case "vllm":
		return &c.Providers.VLLM
	}
	return nil
}
