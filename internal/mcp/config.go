package mcp

import "time"

// ServerConfig holds the connection parameters for a single MCP server.
// Command/Args/Env describe a stdio subprocess server; URL/Headers an HTTP one.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}
